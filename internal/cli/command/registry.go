package command

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
)

const defaultTimeoutMs = 5000

var (
	languageField = Field{Name: "language", Aliases: []string{"lang"}, Prompt: "language (cpp|java21|py11)", Type: FieldString, Required: true}
	sourceField   = Field{Name: "source_file", Aliases: []string{"src"}, Prompt: "source file", Type: FieldFile, Required: true}
	flagsField    = Field{Name: "compiler_options", Aliases: []string{"flags"}, Prompt: "compiler options", Type: FieldString}
	runFields     = []Field{
		{Name: "stdin", Prompt: "stdin", Type: FieldString},
		{Name: "stdin_file", Prompt: "stdin file", Type: FieldFile},
		{Name: "timeout_ms", Aliases: []string{"timeout"}, Prompt: "timeout (ms)", Type: FieldUint},
		{Name: "file_io_name", Aliases: []string{"fileio"}, Prompt: "file I/O name", Type: FieldString},
	}
)

// Registry returns all CLI commands keyed by name.
func Registry() map[string]Command {
	commands := []Command{
		{
			Name:   "compile",
			Usage:  "compile lang=cpp src=./main.cpp [flags=\"-O2 -std=c++17\"]",
			Method: http.MethodPost,
			Path:   "/compile",
			Fields: []Field{languageField, sourceField, flagsField},
		},
		{
			Name:       "execute",
			Usage:      "execute [stdin=...|stdin_file=./in.txt] [timeout=2000] [fileio=name]",
			Method:     http.MethodPost,
			Path:       "/execute",
			Fields:     runFields,
			NeedsBuild: true,
		},
		{
			Name:   "run",
			Usage:  "run lang=py11 src=./main.py [stdin=...] [timeout=2000]",
			Method: http.MethodPost,
			Path:   "/compile-and-execute",
			Fields: append([]Field{languageField, sourceField, flagsField}, runFields...),
		},
		{
			Name:   "health",
			Usage:  "health",
			Method: http.MethodGet,
			Path:   "/healthz",
		},
	}
	out := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		out[cmd.Name] = cmd
	}
	return out
}

// Names returns command names in a stable order.
func Names(commands map[string]Command) []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildRequest converts params into an HTTP request. executable is the last
// compiled bundle and is only used by commands that need one.
func BuildRequest(cmd Command, params Params, executable json.RawMessage) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	spec := RequestSpec{Method: cmd.Method, Path: cmd.Path}
	payload, err := buildPayload(cmd, params, executable)
	if err != nil {
		return spec, err
	}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return spec, fmt.Errorf("encode request failed: %w", err)
		}
		spec.Body = body
	}
	return spec, nil
}

func buildPayload(cmd Command, params Params, executable json.RawMessage) (interface{}, error) {
	switch cmd.Name {
	case "compile":
		return buildCompilePayload(params)
	case "execute":
		if len(executable) == 0 {
			return nil, fmt.Errorf("nothing to execute, run compile first")
		}
		options, err := buildRunOptions(params)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"executable": executable,
			"options":    options,
		}, nil
	case "run":
		compile, err := buildCompilePayload(params)
		if err != nil {
			return nil, err
		}
		options, err := buildRunOptions(params)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"compile": compile,
			"execute": options,
		}, nil
	}
	return nil, nil
}

func buildCompilePayload(params Params) (map[string]interface{}, error) {
	language := params.Get("language")
	if language == "" {
		return nil, fmt.Errorf("language is required")
	}
	if params.Get("source_file") == "" {
		return nil, fmt.Errorf("source_file is required")
	}
	source, err := ReadFile(params.Get("source_file"))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"source_code":      source,
		"compiler_options": params.Get("compiler_options"),
		"language":         language,
	}, nil
}

func buildRunOptions(params Params) (map[string]interface{}, error) {
	stdin := params.Get("stdin")
	if path := params.Get("stdin_file"); path != "" {
		data, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		stdin = data
	}
	timeout := uint32(defaultTimeoutMs)
	if raw := params.Get("timeout_ms"); raw != "" {
		n, err := ParseUint32(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout_ms: %w", err)
		}
		timeout = n
	}
	options := map[string]interface{}{
		"stdin":      stdin,
		"timeout_ms": timeout,
	}
	if name := params.Get("file_io_name"); name != "" {
		options["file_io_name"] = name
	}
	return options, nil
}
