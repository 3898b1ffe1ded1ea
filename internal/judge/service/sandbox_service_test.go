package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ojbox/internal/judge/sandbox"
	"ojbox/internal/judge/sandbox/bundle"
	"ojbox/internal/judge/sandbox/compiler"
	"ojbox/internal/judge/sandbox/result"
	"ojbox/internal/judge/sandbox/runner"
	appErr "ojbox/pkg/errors"
)

type fakeBuilder struct {
	resp  *compiler.CompileResponse
	err   error
	calls int
	block chan struct{}
}

func (f *fakeBuilder) Compile(ctx context.Context, req compiler.BuildRequest) (*compiler.CompileResponse, error) {
	f.calls++
	if f.block != nil {
		<-f.block
	}
	return f.resp, f.err
}

type fakeExecutor struct {
	res    result.RunResult
	err    error
	calls  int
	bundle *bundle.Bundle
	opts   runner.RunOptions
}

func (f *fakeExecutor) Run(ctx context.Context, b *bundle.Bundle, opts runner.RunOptions) (result.RunResult, error) {
	f.calls++
	f.bundle = b
	f.opts = opts
	return f.res, f.err
}

type fakeGuard struct {
	err   error
	calls int
}

func (f *fakeGuard) Apply(ctx context.Context, res result.RunResult) (result.RunResult, error) {
	f.calls++
	if f.err != nil {
		return result.RunResult{}, f.err
	}
	url := "https://blobs.example/full.json"
	res.FullOutputURL = &url
	return res, nil
}

func newTestService(t *testing.T, b *fakeBuilder, e *fakeExecutor, g *fakeGuard) *Service {
	t.Helper()
	svc, err := NewService(Config{Builder: b, Executor: e, Guard: g})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	b, e, g := &fakeBuilder{}, &fakeExecutor{}, &fakeGuard{}
	cases := []Config{
		{Executor: e, Guard: g},
		{Builder: b, Guard: g},
		{Builder: b, Executor: e},
	}
	for i, cfg := range cases {
		if _, err := NewService(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestExecuteAppliesGuard(t *testing.T) {
	exec := &fakeExecutor{res: result.RunResult{Stdout: "42\n", Verdict: result.VerdictAccepted}}
	guard := &fakeGuard{}
	svc := newTestService(t, &fakeBuilder{}, exec, guard)

	bin := &bundle.Bundle{Files: []byte("x"), RunCommand: "./program"}
	got, err := svc.Execute(context.Background(), sandbox.ExecuteRequest{
		Executable: bin,
		Options:    runner.RunOptions{Stdin: "21", TimeoutMs: 1000},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if exec.bundle != bin || exec.opts.Stdin != "21" {
		t.Fatalf("executor received unexpected input")
	}
	if guard.calls != 1 || got.FullOutputURL == nil || got.Stdout != "42\n" {
		t.Fatalf("guard was not applied: %+v", got)
	}
}

func TestExecutePropagatesErrors(t *testing.T) {
	runErr := appErr.New(appErr.InvalidFileIOName)
	svc := newTestService(t, &fakeBuilder{}, &fakeExecutor{err: runErr}, &fakeGuard{})
	if _, err := svc.Execute(context.Background(), sandbox.ExecuteRequest{}); !errors.Is(err, runErr) {
		t.Fatalf("expected runner error, got %v", err)
	}

	guardErr := appErr.New(appErr.OutputOffloadFailed)
	svc = newTestService(t, &fakeBuilder{}, &fakeExecutor{}, &fakeGuard{err: guardErr})
	if _, err := svc.Execute(context.Background(), sandbox.ExecuteRequest{}); !appErr.Is(err, appErr.OutputOffloadFailed) {
		t.Fatalf("expected guard error, got %v", err)
	}
}

func TestCompileAndExecuteRunsBuiltBundle(t *testing.T) {
	bin := &bundle.Bundle{Files: []byte("x"), RunCommand: "./program"}
	build := &fakeBuilder{resp: &compiler.CompileResponse{
		Executable:    bin,
		CompileOutput: result.ProcessTelemetry{WallTime: "0:00.50"},
	}}
	exec := &fakeExecutor{res: result.RunResult{Stdout: "hello", Verdict: result.VerdictAccepted}}
	svc := newTestService(t, build, exec, &fakeGuard{})

	got, err := svc.CompileAndExecute(context.Background(), sandbox.CompileAndExecuteRequest{
		Execute: runner.RunOptions{TimeoutMs: 5000},
	})
	if err != nil {
		t.Fatalf("compile and execute: %v", err)
	}
	if got.Compile.WallTime != "0:00.50" {
		t.Fatalf("compile telemetry missing: %+v", got.Compile)
	}
	if got.Execute == nil || got.Execute.Stdout != "hello" || got.Execute.FullOutputURL == nil {
		t.Fatalf("unexpected execute result: %+v", got.Execute)
	}
	if exec.bundle != bin || exec.opts.TimeoutMs != 5000 {
		t.Fatalf("executor did not receive the built bundle")
	}
}

func TestCompileAndExecuteSkipsRunOnBuildFailure(t *testing.T) {
	build := &fakeBuilder{resp: &compiler.CompileResponse{
		CompileOutput: result.ProcessTelemetry{Stderr: "main.cpp:1: error", ExitCode: 1 << 8},
	}}
	exec := &fakeExecutor{}
	svc := newTestService(t, build, exec, &fakeGuard{})

	got, err := svc.CompileAndExecute(context.Background(), sandbox.CompileAndExecuteRequest{})
	if err != nil {
		t.Fatalf("compile and execute: %v", err)
	}
	if got.Execute != nil || exec.calls != 0 {
		t.Fatalf("run must be skipped after a failed build")
	}
	if got.Compile.ExitCode != 1<<8 {
		t.Fatalf("unexpected compile telemetry %+v", got.Compile)
	}
}

func TestCompileAndExecuteBuildError(t *testing.T) {
	build := &fakeBuilder{err: appErr.New(appErr.LanguageNotSupported)}
	exec := &fakeExecutor{}
	svc := newTestService(t, build, exec, &fakeGuard{})
	if _, err := svc.CompileAndExecute(context.Background(), sandbox.CompileAndExecuteRequest{}); !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
	if exec.calls != 0 {
		t.Fatalf("executor must not run")
	}
}

func TestPoolFull(t *testing.T) {
	build := &fakeBuilder{resp: &compiler.CompileResponse{}, block: make(chan struct{})}
	svc, err := NewService(Config{
		Builder:       build,
		Executor:      &fakeExecutor{},
		Guard:         &fakeGuard{},
		MaxConcurrent: 1,
		SlotWait:      20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.Compile(context.Background(), compiler.BuildRequest{})
		done <- err
	}()
	// Wait for the first request to take the only slot.
	deadline := time.Now().Add(time.Second)
	for len(svc.sem) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("first request never acquired a slot")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := svc.Execute(context.Background(), sandbox.ExecuteRequest{}); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Execute(ctx, sandbox.ExecuteRequest{}); !appErr.Is(err, appErr.Timeout) {
		t.Fatalf("expected Timeout for cancelled wait, got %v", err)
	}

	close(build.block)
	if err := <-done; err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := svc.Execute(context.Background(), sandbox.ExecuteRequest{}); err != nil {
		t.Fatalf("slot should be free again: %v", err)
	}
}
