package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"ojbox/internal/cli/command"
	httpclient "ojbox/internal/cli/http"
	"ojbox/internal/cli/state"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

// errExit ends the session.
var errExit = errors.New("exit")

// LineReader reads one line of input per call.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	lastBuild  *state.LastBuild
	statePath  string
	prettyJSON bool
	input      LineReader
	output     io.Writer
}

func New(client *httpclient.Client, commands map[string]command.Command, lastBuild *state.LastBuild, statePath string, prettyJSON bool, input LineReader, output io.Writer) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		lastBuild:  lastBuild,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		input:      input,
		output:     output,
	}
}

// NewReadline creates a readline instance with history and tab completion for commands.
func NewReadline(historyFile string, commands map[string]command.Command) (*readline.Instance, error) {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands)+4)
	for _, name := range command.Names(commands) {
		items = append(items, readline.PcItem(name))
	}
	items = append(items,
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout")),
		readline.PcItem("show", readline.PcItem("config"), readline.PcItem("build")),
	)
	return readline.NewEx(&readline.Config{
		Prompt:          "ojbox> ",
		HistoryFile:     historyFile,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}

func (s *Session) Run(ctx context.Context) {
	for {
		s.input.SetPrompt("ojbox> ")
		line, err := s.input.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.printLine("read input failed: %v", err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := s.Exec(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				s.printLine("bye")
				return
			}
			s.printLine("error: %v", err)
		}
	}
}

// Exec runs one input line.
func (s *Session) Exec(ctx context.Context, line string) error {
	switch line {
	case "exit", "quit":
		return errExit
	case "help":
		s.printHelp()
		return nil
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return nil
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return nil
	}
	return s.handleCommand(ctx, line)
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|timeout")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8080")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 60s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "build":
		if s.lastBuild.Empty() {
			s.printLine("build: <none>")
			return
		}
		s.printLine("build: %s from %s at %s (%d bytes)", s.lastBuild.Language, s.lastBuild.SourceFile,
			s.lastBuild.BuiltAt.Format(time.RFC3339), len(s.lastBuild.Executable))
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("statePath: %s", s.statePath)
	default:
		s.printLine("usage: show build|config")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	cmd, ok := s.commands[tokens[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s", tokens[0])
	}
	params, err := command.ParseArgs(tokens[1:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}

	var executable json.RawMessage
	if cmd.NeedsBuild && !s.lastBuild.Empty() {
		executable = s.lastBuild.Executable
	}
	req, err := command.BuildRequest(cmd, params, executable)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	if cmd.Name == "compile" && resp.StatusCode == 200 {
		s.rememberBuild(params, resp.Body)
	}
	return nil
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		s.input.SetPrompt(field.Prompt + ": ")
		value, err := s.input.Readline()
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		params.Set(field.Name, strings.TrimSpace(value))
	}
	return nil
}

func (s *Session) rememberBuild(params command.Params, body []byte) {
	var resp struct {
		Executable json.RawMessage `json:"executable"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return
	}
	build := state.LastBuild{
		Language:   params.Get("language"),
		SourceFile: params.Get("source_file"),
		BuiltAt:    time.Now(),
		Executable: resp.Executable,
	}
	if build.Empty() {
		s.printLine("compile failed, keeping previous build")
		return
	}
	*s.lastBuild = build
	if err := state.Save(s.statePath, build); err != nil {
		s.printLine("save build failed: %v", err)
	}
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw map[string]interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			// Bundles are opaque base64 and only clutter the terminal.
			if exe, ok := raw["executable"].(map[string]interface{}); ok {
				if files, ok := exe["files"].(string); ok {
					exe["files"] = fmt.Sprintf("<%d bytes base64>", len(files))
				}
			}
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) printHelp() {
	s.printLine("system: help | exit | set base|timeout | show build|config")
	s.printLine("commands:")
	for _, name := range command.Names(s.commands) {
		s.printLine("  %s", s.commands[name].Usage)
	}
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.output, format+"\n", args...)
}
