//go:build linux

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"unicode/utf8"

	"ojbox/internal/judge/sandbox/result"
	"ojbox/internal/judge/sandbox/spec"
	appErr "ojbox/pkg/errors"
	"ojbox/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

type linuxEngine struct {
	cfg Config
}

// NewEngine creates a Linux sandbox engine.
func NewEngine(cfg Config) (Engine, error) {
	cfg = cfg.withDefaults()
	return &linuxEngine{cfg: cfg}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.ProcessTelemetry, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.ProcessTelemetry{}, err
	}

	cmd := exec.CommandContext(ctx, e.cfg.ShellPath, wrapCommand(e.cfg, runSpec.Cmd, runSpec.TimeoutMs)...)
	cmd.Dir = runSpec.WorkDir
	switch {
	case len(runSpec.Env) > 0:
		cmd.Env = runSpec.Env
	case len(e.cfg.BaseEnv) > 0:
		cmd.Env = e.cfg.BaseEnv
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		killProcessGroup(cmd.Process.Pid)
		return nil
	}
	cmd.WaitDelay = e.cfg.WaitDelay

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return result.ProcessTelemetry{}, appErr.Wrapf(err, appErr.SandboxSpawnFailed, "open stdin pipe")
	}
	if err := cmd.Start(); err != nil {
		return result.ProcessTelemetry{}, appErr.Wrapf(err, appErr.SandboxSpawnFailed, "start %s", e.cfg.ShellPath)
	}

	go feedStdin(ctx, stdinPipe, runSpec.Stdin)

	waitErr := cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result.ProcessTelemetry{}, appErr.Wrapf(ctxErr, appErr.Timeout, "sandbox run canceled")
	}
	state := cmd.ProcessState
	if state == nil {
		return result.ProcessTelemetry{}, appErr.Wrapf(waitErr, appErr.SandboxSpawnFailed, "wait for sandbox process")
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			// Typically exec.ErrWaitDelay: a descendant kept the output pipes open.
			logger.Warn(ctx, "sandbox wait returned non-exit error", zap.Error(waitErr))
		}
	}

	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return result.ProcessTelemetry{}, appErr.Newf(appErr.SandboxSpawnFailed, "unexpected wait status type %T", state.Sys())
	}

	if !utf8.Valid(stdout.Bytes()) {
		return result.ProcessTelemetry{}, appErr.New(appErr.OutputEncodingInvalid).WithMessage("stdout is not valid UTF-8")
	}
	if !utf8.Valid(stderr.Bytes()) {
		return result.ProcessTelemetry{}, appErr.New(appErr.OutputEncodingInvalid).WithMessage("stderr is not valid UTF-8")
	}

	var signalName *string
	if ws.Signaled() {
		signalName = nameSignal(int(ws.Signal()))
	}

	telemetry, err := buildTelemetry(stdout.String(), stderr.String(), int(ws), signalName)
	if err != nil {
		logger.Warn(ctx, "parse time report failed",
			zap.Int("waitStatus", int(ws)),
			zap.Int("stderrBytes", stderr.Len()),
			zap.Error(err),
		)
		return result.ProcessTelemetry{}, err
	}
	return telemetry, nil
}

// feedStdin writes the input and closes the pipe. A child that exits
// without reading everything is not an error.
func feedStdin(ctx context.Context, w io.WriteCloser, data []byte) {
	defer w.Close()
	if len(data) == 0 {
		return
	}
	if _, err := w.Write(data); err != nil {
		if errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) {
			logger.Debug(ctx, "sandbox stdin closed early", zap.Int("bytes", len(data)))
			return
		}
		logger.Warn(ctx, "write sandbox stdin failed", zap.Error(err))
	}
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func nameSignal(sig int) *string {
	name := unix.SignalName(syscall.Signal(sig))
	if name == "" {
		name = fmt.Sprintf("signal %d", sig)
	}
	return &name
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.WorkDir == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("work dir is required")
	}
	if len(runSpec.Cmd) == 0 || runSpec.Cmd[0] == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("command is required")
	}
	return nil
}
