package pch

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ojbox/internal/judge/sandbox/result"
	"ojbox/internal/judge/sandbox/spec"
)

type fakeEngine struct {
	calls    atomic.Int32
	delay    time.Duration
	exitCode int
	err      error
	lastCmd  []string
	mu       sync.Mutex
}

func (f *fakeEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.ProcessTelemetry, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastCmd = runSpec.Cmd
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return result.ProcessTelemetry{}, f.err
	}
	if f.exitCode == 0 {
		for i, arg := range runSpec.Cmd {
			if arg == "-o" && i+1 < len(runSpec.Cmd) {
				if err := os.WriteFile(runSpec.Cmd[i+1], []byte("gch"), 0o644); err != nil {
					return result.ProcessTelemetry{}, err
				}
			}
		}
	}
	return result.ProcessTelemetry{ExitCode: f.exitCode, Stderr: "compiler said no"}, nil
}

func newTestCache(t *testing.T, eng *fakeEngine) *Cache {
	t.Helper()
	return NewCache(Config{Root: t.TempDir(), HeaderPath: "/usr/include/bits/stdc++.h"}, eng)
}

func TestKeyFor(t *testing.T) {
	c := NewCache(Config{}, nil)
	cases := []struct {
		flags []string
		want  string
		ok    bool
	}{
		{flags: []string{"-std=c++17", "-O2"}, want: "17", ok: true},
		{flags: []string{"-O2", "-Wall", "-std=c++23"}, want: "23", ok: true},
		{flags: []string{"-std=c++20", "-O2"}},
		{flags: []string{"-std=c++17"}},
		{flags: []string{"-std=c++17", "-O2", "-O3"}},
		{flags: []string{"-std=gnu++17", "-O2"}},
		{flags: nil},
	}
	for _, tc := range cases {
		key, ok := c.KeyFor(tc.flags)
		if ok != tc.ok || key.Std != tc.want {
			t.Fatalf("KeyFor(%q) = %q/%v, want %q/%v", tc.flags, key.Std, ok, tc.want, tc.ok)
		}
	}
}

func TestEnsurePopulatedBuildsOnce(t *testing.T) {
	eng := &fakeEngine{delay: 20 * time.Millisecond}
	c := newTestCache(t, eng)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.EnsurePopulated(context.Background(), Key{Std: "17"})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ensure: %v", err)
		}
	}
	if got := eng.calls.Load(); got != 1 {
		t.Fatalf("expected one build, got %d", got)
	}
	if _, err := os.Stat(c.HeaderFile(Key{Std: "17"})); err != nil {
		t.Fatalf("header not installed: %v", err)
	}
	if err := c.EnsurePopulated(context.Background(), Key{Std: "17"}); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if got := eng.calls.Load(); got != 1 {
		t.Fatalf("expected cached result, got %d builds", got)
	}
	eng.mu.Lock()
	cmd := eng.lastCmd
	eng.mu.Unlock()
	if cmd[0] != "g++" || cmd[3] != "-std=c++17" || cmd[4] != "-O2" {
		t.Fatalf("unexpected build command %q", cmd)
	}
}

func TestEnsurePopulatedSkipsExistingFile(t *testing.T) {
	eng := &fakeEngine{}
	c := newTestCache(t, eng)
	target := c.HeaderFile(Key{Std: "23"})
	if err := os.MkdirAll(c.IncludeDir()+"/bits/stdc++.h.gch", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(target, []byte("gch"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.EnsurePopulated(context.Background(), Key{Std: "23"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if eng.calls.Load() != 0 {
		t.Fatalf("existing header should not be rebuilt")
	}
}

func TestEnsurePopulatedFailures(t *testing.T) {
	failing := &fakeEngine{exitCode: 1 << 8}
	c := newTestCache(t, failing)
	if err := c.EnsurePopulated(context.Background(), Key{Std: "17"}); err == nil {
		t.Fatalf("expected build failure")
	}
	if _, err := os.Stat(c.HeaderFile(Key{Std: "17"})); !os.IsNotExist(err) {
		t.Fatalf("failed build must not install a header")
	}

	broken := &fakeEngine{err: errors.New("spawn failed")}
	c = newTestCache(t, broken)
	if err := c.EnsurePopulated(context.Background(), Key{Std: "17"}); err == nil {
		t.Fatalf("expected engine error")
	}
}

func TestDisabledCache(t *testing.T) {
	c := NewCache(Config{Root: t.TempDir()}, &fakeEngine{})
	if c.Enabled() || c.IncludeDir() != "" {
		t.Fatalf("cache without header path must be disabled")
	}
	if err := c.EnsurePopulated(context.Background(), Key{Std: "17"}); err == nil {
		t.Fatalf("expected error from disabled cache")
	}
	c.Warm(context.Background())
}

func TestWarmBuildsAllVersions(t *testing.T) {
	eng := &fakeEngine{}
	c := newTestCache(t, eng)
	c.Warm(context.Background())
	if eng.calls.Load() != 2 {
		t.Fatalf("expected 2 builds, got %d", eng.calls.Load())
	}
}
