// Package runner executes bundles produced by the compiler.
package runner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"ojbox/internal/judge/sandbox/bundle"
	"ojbox/internal/judge/sandbox/engine"
	"ojbox/internal/judge/sandbox/observer"
	"ojbox/internal/judge/sandbox/result"
	"ojbox/internal/judge/sandbox/spec"
	"ojbox/internal/judge/sandbox/workspace"
	appErr "ojbox/pkg/errors"
	"ojbox/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	runScriptName  = "run"
	runScriptShell = "#!/bin/sh\n"
)

// RunOptions controls one execution.
type RunOptions struct {
	Stdin     string `json:"stdin"`
	TimeoutMs uint32 `json:"timeout_ms"`
	// FileIOName enables <name>.in / <name>.out file I/O, e.g. "cowdating".
	FileIOName *string `json:"file_io_name"`
}

// Config controls execution.
type Config struct {
	// WorkRoot holds per-request workspaces. Empty uses os.TempDir.
	WorkRoot string
	// MaxTimeoutMs rejects longer limits. Zero disables the check.
	MaxTimeoutMs     uint32
	MaxUnpackedBytes int64
}

// Runner executes bundles through the sandbox engine.
type Runner struct {
	cfg     Config
	engine  engine.Engine
	metrics observer.MetricsRecorder
}

// New creates a runner. metrics may be nil.
func New(cfg Config, eng engine.Engine, metrics observer.MetricsRecorder) *Runner {
	if metrics == nil {
		metrics = observer.NoopRecorder{}
	}
	return &Runner{cfg: cfg, engine: eng, metrics: metrics}
}

// Run unpacks b into a fresh workspace and executes its run command.
// Program failures and timeouts are reported through the verdict.
func (r *Runner) Run(ctx context.Context, b *bundle.Bundle, opts RunOptions) (result.RunResult, error) {
	if err := r.validate(b, opts); err != nil {
		return result.RunResult{}, err
	}

	ws, err := workspace.Acquire(r.cfg.WorkRoot, "run")
	if err != nil {
		return result.RunResult{}, err
	}
	defer ws.Release(ctx)

	if err := b.Unpack(ws.Dir(), r.cfg.MaxUnpackedBytes); err != nil {
		return result.RunResult{}, err
	}
	if opts.FileIOName != nil {
		if err := ws.WriteFile(*opts.FileIOName+".in", []byte(opts.Stdin), 0o644); err != nil {
			return result.RunResult{}, err
		}
	}
	// Running through a script makes the shell report crashes such as
	// "Segmentation fault" on stderr.
	script := runScriptShell + b.RunCommand + "\n"
	if err := ws.WriteFile(runScriptName, []byte(script), 0o755); err != nil {
		return result.RunResult{}, err
	}

	tel, err := r.engine.Run(ctx, spec.RunSpec{
		WorkDir:   ws.Dir(),
		Cmd:       []string{"./" + runScriptName},
		Stdin:     []byte(opts.Stdin),
		TimeoutMs: opts.TimeoutMs,
	})
	if err != nil {
		logger.Error(ctx, "bundle run failed", zap.Error(err))
		return result.RunResult{}, err
	}

	res := result.FromTelemetry(tel)
	if opts.FileIOName != nil {
		out, err := readFileOutput(ws, *opts.FileIOName+".out")
		if err != nil {
			return result.RunResult{}, err
		}
		res.FileOutput = out
	}
	logger.Debug(ctx, "bundle run finished",
		zap.String("verdict", string(res.Verdict)),
		zap.Int("waitStatus", res.ExitCode),
		zap.Int64("wallTimeMs", res.WallTimeMs),
		zap.Int64("memoryKB", res.MemoryKB),
	)
	r.metrics.ObserveRun(ctx, string(res.Verdict), res.WallTimeMs, res.MemoryKB)
	return res, nil
}

func (r *Runner) validate(b *bundle.Bundle, opts RunOptions) error {
	if opts.FileIOName != nil && !ValidFileIOName(*opts.FileIOName) {
		return appErr.New(appErr.InvalidFileIOName).WithDetail("file_io_name", *opts.FileIOName)
	}
	if r.cfg.MaxTimeoutMs > 0 && opts.TimeoutMs > r.cfg.MaxTimeoutMs {
		return appErr.ValidationError("options.timeout_ms", "exceeds the server limit")
	}
	return b.Validate()
}

// ValidFileIOName reports whether name is non-empty ASCII alphanumeric.
func ValidFileIOName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if !(ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9') {
			return false
		}
	}
	return true
}

// readFileOutput returns nil when the program never created the file.
func readFileOutput(ws *workspace.Workspace, name string) (*string, error) {
	path, err := ws.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.WorkspaceFailed, "read %s", name)
	}
	out := strings.ToValidUTF8(string(data), "\uFFFD")
	return &out, nil
}
