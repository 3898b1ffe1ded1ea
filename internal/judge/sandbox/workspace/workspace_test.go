package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	appErr "ojbox/pkg/errors"
)

func TestAcquireRelease(t *testing.T) {
	base := filepath.Join(t.TempDir(), "ws")
	ws, err := Acquire(base, "compile")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	dir := ws.Dir()
	if filepath.Dir(dir) != base {
		t.Fatalf("workspace %s not under %s", dir, base)
	}
	if err := ws.WriteFile("run", []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "run"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Fatalf("unexpected mode %v", info.Mode().Perm())
	}
	if _, err := ws.Subdir("out"); err != nil {
		t.Fatalf("subdir: %v", err)
	}

	ws.Release(context.Background())
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("workspace not removed: %v", err)
	}
	ws.Release(context.Background())
}

func TestAcquireIsExclusive(t *testing.T) {
	base := t.TempDir()
	a, err := Acquire(base, "run")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer a.Release(context.Background())
	b, err := Acquire(base, "run")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer b.Release(context.Background())
	if a.Dir() == b.Dir() {
		t.Fatalf("workspaces must not be shared")
	}
}

func TestPathRejectsTraversal(t *testing.T) {
	ws, err := Acquire(t.TempDir(), "run")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer ws.Release(context.Background())
	for _, name := range []string{"", ".", "..", "../x", "a/b", `a\b`} {
		if _, err := ws.Path(name); !appErr.Is(err, appErr.WorkspaceFailed) {
			t.Fatalf("expected rejection for %q, got %v", name, err)
		}
	}
}
