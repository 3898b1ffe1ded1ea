//go:build linux

package engine_test

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"ojbox/internal/judge/sandbox/engine"
	"ojbox/internal/judge/sandbox/result"
	"ojbox/internal/judge/sandbox/spec"
	appErr "ojbox/pkg/errors"
)

func requireGNUTools(t *testing.T) {
	t.Helper()
	for _, path := range []string{"/bin/sh", "/usr/bin/time", "/usr/bin/timeout"} {
		if _, err := os.Stat(path); err != nil {
			t.Skipf("%s not available: %v", path, err)
		}
	}
	out, err := exec.Command("/usr/bin/time", "--version").CombinedOutput()
	if err != nil || !strings.Contains(string(out), "GNU") {
		t.Skip("/usr/bin/time is not GNU time")
	}
}

func newEngine(t *testing.T) engine.Engine {
	t.Helper()
	eng, err := engine.NewEngine(engine.Config{})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	return eng
}

func TestLinuxEngineRun(t *testing.T) {
	requireGNUTools(t)
	eng := newEngine(t)

	cases := []struct {
		name   string
		spec   spec.RunSpec
		verify func(t *testing.T, tel result.ProcessTelemetry, err error)
	}{
		{
			name: "hello",
			spec: spec.RunSpec{Cmd: []string{"sh", "-c", "echo hello"}, TimeoutMs: 5000},
			verify: func(t *testing.T, tel result.ProcessTelemetry, err error) {
				if err != nil {
					t.Fatalf("run failed: %v", err)
				}
				if tel.Stdout != "hello\n" {
					t.Fatalf("unexpected stdout %q", tel.Stdout)
				}
				if tel.ExitCode != 0 || tel.ExitSignal != nil {
					t.Fatalf("unexpected exit %d", tel.ExitCode)
				}
				if strings.Contains(tel.Stderr, "Command being timed") {
					t.Fatalf("time report leaked into stderr: %q", tel.Stderr)
				}
				if tel.WallTime == "" || tel.MemoryUsage == "" || tel.MemoryKB <= 0 {
					t.Fatalf("telemetry missing: %+v", tel)
				}
			},
		},
		{
			name: "stdin_is_fed",
			spec: spec.RunSpec{
				Cmd:       []string{"sh", "-c", "read x; echo $((x * 2))"},
				Stdin:     []byte("21\n"),
				TimeoutMs: 5000,
			},
			verify: func(t *testing.T, tel result.ProcessTelemetry, err error) {
				if err != nil {
					t.Fatalf("run failed: %v", err)
				}
				if tel.Stdout != "42\n" {
					t.Fatalf("unexpected stdout %q", tel.Stdout)
				}
			},
		},
		{
			name: "timeout",
			spec: spec.RunSpec{Cmd: []string{"sh", "-c", "while :; do :; done"}, TimeoutMs: 1000},
			verify: func(t *testing.T, tel result.ProcessTelemetry, err error) {
				if err != nil {
					t.Fatalf("run failed: %v", err)
				}
				if tel.ExitCode != result.TimeoutWaitStatus {
					t.Fatalf("expected wait status %d, got %d", result.TimeoutWaitStatus, tel.ExitCode)
				}
				if result.ClassifyWaitStatus(tel.ExitCode) != result.VerdictTimeLimitExceeded {
					t.Fatalf("expected TLE")
				}
			},
		},
		{
			name: "unread_stdin_is_ignored",
			spec: spec.RunSpec{
				Cmd:       []string{"true"},
				Stdin:     bytes.Repeat([]byte("x"), 8<<20),
				TimeoutMs: 5000,
			},
			verify: func(t *testing.T, tel result.ProcessTelemetry, err error) {
				if err != nil {
					t.Fatalf("broken pipe should not fail the run: %v", err)
				}
				if tel.ExitCode != 0 {
					t.Fatalf("unexpected exit %d", tel.ExitCode)
				}
			},
		},
		{
			name: "non_zero_exit",
			spec: spec.RunSpec{Cmd: []string{"sh", "-c", "echo oops >&2; exit 3"}, TimeoutMs: 5000},
			verify: func(t *testing.T, tel result.ProcessTelemetry, err error) {
				if err != nil {
					t.Fatalf("run failed: %v", err)
				}
				if tel.ExitCode != 3<<8 {
					t.Fatalf("expected wait status %d, got %d", 3<<8, tel.ExitCode)
				}
				if tel.Stderr != "oops\n" {
					t.Fatalf("unexpected stderr %q", tel.Stderr)
				}
			},
		},
		{
			name: "argv_is_not_interpreted",
			spec: spec.RunSpec{Cmd: []string{"echo", "$(id)", "a;b"}, TimeoutMs: 5000},
			verify: func(t *testing.T, tel result.ProcessTelemetry, err error) {
				if err != nil {
					t.Fatalf("run failed: %v", err)
				}
				if tel.Stdout != "$(id) a;b\n" {
					t.Fatalf("argv was interpreted: %q", tel.Stdout)
				}
			},
		},
		{
			name: "core_dumps_disabled",
			spec: spec.RunSpec{Cmd: []string{"sh", "-c", "ulimit -c"}, TimeoutMs: 5000},
			verify: func(t *testing.T, tel result.ProcessTelemetry, err error) {
				if err != nil {
					t.Fatalf("run failed: %v", err)
				}
				if strings.TrimSpace(tel.Stdout) != "0" {
					t.Fatalf("unexpected core limit %q", tel.Stdout)
				}
			},
		},
		{
			name: "invalid_utf8",
			spec: spec.RunSpec{Cmd: []string{"printf", `\377`}, TimeoutMs: 5000},
			verify: func(t *testing.T, tel result.ProcessTelemetry, err error) {
				if !appErr.Is(err, appErr.OutputEncodingInvalid) {
					t.Fatalf("expected OutputEncodingInvalid, got %v", err)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runSpec := tc.spec
			runSpec.WorkDir = t.TempDir()
			tel, err := eng.Run(context.Background(), runSpec)
			tc.verify(t, tel, err)
		})
	}
}

func TestLinuxEngineSpawnFailure(t *testing.T) {
	eng, err := engine.NewEngine(engine.Config{ShellPath: "/nonexistent/sh"})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	_, err = eng.Run(context.Background(), spec.RunSpec{WorkDir: t.TempDir(), Cmd: []string{"true"}, TimeoutMs: 1000})
	if !appErr.Is(err, appErr.SandboxSpawnFailed) {
		t.Fatalf("expected SandboxSpawnFailed, got %v", err)
	}
}

func TestLinuxEngineValidatesSpec(t *testing.T) {
	eng := newEngine(t)
	if _, err := eng.Run(context.Background(), spec.RunSpec{Cmd: []string{"true"}}); !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("expected InvalidParams for missing work dir, got %v", err)
	}
	if _, err := eng.Run(context.Background(), spec.RunSpec{WorkDir: t.TempDir()}); !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("expected InvalidParams for missing command, got %v", err)
	}
}

func TestLinuxEngineContextCancel(t *testing.T) {
	requireGNUTools(t)
	eng := newEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := eng.Run(ctx, spec.RunSpec{WorkDir: t.TempDir(), Cmd: []string{"sleep", "30"}, TimeoutMs: 30000})
	if !appErr.Is(err, appErr.Timeout) {
		t.Fatalf("expected Timeout, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatalf("cancel took too long")
	}
}
