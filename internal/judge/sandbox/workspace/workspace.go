// Package workspace provides per-request temporary directories.
package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	appErr "ojbox/pkg/errors"
	"ojbox/pkg/utils/logger"

	"go.uber.org/zap"
)

// Workspace is a directory exclusively owned by one request.
type Workspace struct {
	dir string
}

// Acquire creates a fresh directory under baseDir (os.TempDir when empty).
// Callers must defer Release.
func Acquire(baseDir, prefix string) (*Workspace, error) {
	if baseDir != "" {
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return nil, appErr.Wrapf(err, appErr.WorkspaceFailed, "create workspace root %s", baseDir)
		}
	}
	dir, err := os.MkdirTemp(baseDir, prefix+"-")
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.WorkspaceFailed, "create workspace")
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins a plain file name onto the workspace root.
func (w *Workspace) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", appErr.Newf(appErr.WorkspaceFailed, "invalid workspace file name %q", name)
	}
	return filepath.Join(w.dir, name), nil
}

// WriteFile writes a file directly under the workspace root.
func (w *Workspace) WriteFile(name string, data []byte, perm os.FileMode) error {
	path, err := w.Path(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return appErr.Wrapf(err, appErr.WorkspaceFailed, "write %s", name)
	}
	// WriteFile honors umask; the run script needs its exec bits.
	if err := os.Chmod(path, perm); err != nil {
		return appErr.Wrapf(err, appErr.WorkspaceFailed, "chmod %s", name)
	}
	return nil
}

// Subdir creates a directory directly under the workspace root.
func (w *Workspace) Subdir(name string) (string, error) {
	path, err := w.Path(name)
	if err != nil {
		return "", err
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		return "", appErr.Wrapf(err, appErr.WorkspaceFailed, "create %s", name)
	}
	return path, nil
}

// Release removes the workspace. It is safe to call more than once.
func (w *Workspace) Release(ctx context.Context) {
	if w == nil || w.dir == "" {
		return
	}
	if err := os.RemoveAll(w.dir); err != nil {
		logger.Warn(ctx, "remove workspace failed", zap.String("dir", w.dir), zap.Error(err))
		return
	}
	w.dir = ""
}
