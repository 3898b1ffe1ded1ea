// Package pch maintains precompiled bits/stdc++.h headers for common C++ flag sets.
package pch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ojbox/internal/judge/sandbox/engine"
	"ojbox/internal/judge/sandbox/spec"
	appErr "ojbox/pkg/errors"
	"ojbox/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCompiler     = "g++"
	defaultBuildTimeout = 60 * time.Second
	// optimizeFlag must match between the header build and the user build.
	optimizeFlag = "-O2"
)

var defaultVersions = []string{"17", "23"}

// Config controls the precompiled-header cache.
type Config struct {
	// Root is passed to the compiler as -I<Root>.
	Root string
	// HeaderPath is the bits/stdc++.h to precompile. Empty disables the cache.
	HeaderPath   string
	Compiler     string
	Versions     []string
	BuildTimeout time.Duration
}

// Key identifies one precompiled variant.
type Key struct {
	Std string
}

// Cache builds each variant at most once per process.
type Cache struct {
	cfg    Config
	engine engine.Engine
	group  singleflight.Group
	done   sync.Map
}

// NewCache creates a cache. A nil engine or empty header path yields a disabled cache.
func NewCache(cfg Config, eng engine.Engine) *Cache {
	if cfg.Compiler == "" {
		cfg.Compiler = defaultCompiler
	}
	if len(cfg.Versions) == 0 {
		cfg.Versions = defaultVersions
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = defaultBuildTimeout
	}
	return &Cache{cfg: cfg, engine: eng}
}

// Enabled reports whether headers can be precompiled.
func (c *Cache) Enabled() bool {
	return c != nil && c.engine != nil && c.cfg.HeaderPath != "" && c.cfg.Root != ""
}

// IncludeDir returns the directory to add to the include path.
func (c *Cache) IncludeDir() string {
	if !c.Enabled() {
		return ""
	}
	return c.cfg.Root
}

// KeyFor maps compiler flags to a cache key. It reports false when no
// precompiled variant can match: the standard must be one of the configured
// versions and the flags must request -O2.
func (c *Cache) KeyFor(flags []string) (Key, bool) {
	return keyFor(flags, c.cfg.Versions)
}

func keyFor(flags []string, versions []string) (Key, bool) {
	std := ""
	optimized := false
	for _, flag := range flags {
		switch {
		case strings.HasPrefix(flag, "-std="):
			std = strings.TrimPrefix(flag, "-std=c++")
			if std == flag {
				std = ""
			}
		case strings.HasPrefix(flag, "-O"):
			optimized = flag == optimizeFlag
		}
	}
	if std == "" || !optimized {
		return Key{}, false
	}
	for _, v := range versions {
		if v == std {
			return Key{Std: std}, true
		}
	}
	return Key{}, false
}

// HeaderFile is where the variant for key lives.
func (c *Cache) HeaderFile(key Key) string {
	return filepath.Join(c.cfg.Root, "bits", "stdc++.h.gch", key.Std)
}

// EnsurePopulated builds the variant for key unless it already exists.
// Concurrent callers for the same key share one build.
func (c *Cache) EnsurePopulated(ctx context.Context, key Key) error {
	if !c.Enabled() {
		return appErr.New(appErr.CacheError).WithMessage("precompiled header cache is disabled")
	}
	if key.Std == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("pch key is empty")
	}
	if _, ok := c.done.Load(key); ok {
		return nil
	}
	target := c.HeaderFile(key)
	if fileExists(target) {
		c.done.Store(key, struct{}{})
		return nil
	}
	_, err, _ := c.group.Do(key.Std, func() (interface{}, error) {
		if fileExists(target) {
			return nil, nil
		}
		return nil, c.build(ctx, key, target)
	})
	if err != nil {
		return err
	}
	c.done.Store(key, struct{}{})
	return nil
}

// Warm populates every configured variant, logging failures.
func (c *Cache) Warm(ctx context.Context) {
	if !c.Enabled() {
		return
	}
	for _, v := range c.cfg.Versions {
		if err := c.EnsurePopulated(ctx, Key{Std: v}); err != nil {
			logger.Warn(ctx, "precompile header failed", zap.String("std", v), zap.Error(err))
		}
	}
}

func (c *Cache) build(ctx context.Context, key Key, target string) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create pch dir")
	}
	// The compiler probes every file in the .gch directory, so build beside it.
	tmp, err := os.CreateTemp(c.cfg.Root, "pch-"+key.Std+"-*.tmp")
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create pch temp file")
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	start := time.Now()
	tel, err := c.engine.Run(ctx, spec.RunSpec{
		WorkDir: dir,
		Cmd: []string{
			c.cfg.Compiler,
			"-o", tmpPath,
			"-std=c++" + key.Std,
			optimizeFlag,
			c.cfg.HeaderPath,
		},
		TimeoutMs: uint32(c.cfg.BuildTimeout / time.Millisecond),
	})
	if err != nil {
		return err
	}
	if !tel.Succeeded() {
		return appErr.Newf(appErr.CacheError, "precompile c++%s exited with status %d: %s", key.Std, tel.ExitCode, tel.Stderr)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "install pch")
	}
	logger.Info(ctx, "precompiled header ready",
		zap.String("std", key.Std),
		zap.String("path", target),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
