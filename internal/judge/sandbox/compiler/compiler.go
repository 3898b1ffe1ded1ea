// Package compiler turns source code into executable bundles.
package compiler

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"ojbox/internal/judge/sandbox/bundle"
	"ojbox/internal/judge/sandbox/engine"
	"ojbox/internal/judge/sandbox/observer"
	"ojbox/internal/judge/sandbox/pch"
	"ojbox/internal/judge/sandbox/profile"
	"ojbox/internal/judge/sandbox/result"
	"ojbox/internal/judge/sandbox/spec"
	"ojbox/internal/judge/sandbox/workspace"
	appErr "ojbox/pkg/errors"
	"ojbox/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultTimeoutMs      uint32 = 10000
	defaultMaxSourceBytes        = 1 << 20
	outputDirName                = "out"
)

// BuildRequest is one compilation request.
type BuildRequest struct {
	SourceCode      string           `json:"source_code"`
	CompilerOptions string           `json:"compiler_options"`
	Language        profile.Language `json:"language"`
}

// CompileResponse carries the bundle, or nil when the build failed.
type CompileResponse struct {
	Executable    *bundle.Bundle          `json:"executable"`
	CompileOutput result.ProcessTelemetry `json:"compile_output"`
}

// Config controls compilation.
type Config struct {
	// WorkRoot holds per-request workspaces. Empty uses os.TempDir.
	WorkRoot       string
	TimeoutMs      uint32
	MaxSourceBytes int
}

// Compiler builds source code through the sandbox engine.
type Compiler struct {
	cfg      Config
	engine   engine.Engine
	registry *profile.Registry
	pch      *pch.Cache
	metrics  observer.MetricsRecorder
}

// New creates a compiler. cache and metrics may be nil.
func New(cfg Config, eng engine.Engine, registry *profile.Registry, cache *pch.Cache, metrics observer.MetricsRecorder) *Compiler {
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = defaultTimeoutMs
	}
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = defaultMaxSourceBytes
	}
	if metrics == nil {
		metrics = observer.NoopRecorder{}
	}
	return &Compiler{cfg: cfg, engine: eng, registry: registry, pch: cache, metrics: metrics}
}

// Compile builds req. A failed build is not an error: the response carries a
// nil Executable and the compiler's telemetry.
func (c *Compiler) Compile(ctx context.Context, req BuildRequest) (*CompileResponse, error) {
	lang, err := c.registry.Lookup(req.Language)
	if err != nil {
		return nil, err
	}
	if len(req.SourceCode) > c.cfg.MaxSourceBytes {
		return nil, appErr.New(appErr.CodeTooLarge).WithMessagef("source code exceeds %d bytes", c.cfg.MaxSourceBytes)
	}
	flags, err := splitFlags(req.CompilerOptions)
	if err != nil {
		return nil, err
	}
	if len(flags) > 0 && !lang.AcceptsFlags {
		return nil, appErr.New(appErr.InvalidCompileFlags).WithMessagef("%s does not accept compiler options", lang.ID)
	}

	ws, err := workspace.Acquire(c.cfg.WorkRoot, "compile")
	if err != nil {
		return nil, err
	}
	defer ws.Release(ctx)

	if err := ws.WriteFile(lang.SourceFile, []byte(req.SourceCode), 0o644); err != nil {
		return nil, err
	}
	outDir, err := ws.Subdir(outputDirName)
	if err != nil {
		return nil, err
	}

	argv, err := buildCommand(lang.CompileCmdTpl, templateVars{
		Src:        lang.SourceFile,
		Out:        filepath.Join(outputDirName, lang.BinaryFile),
		OutDir:     outputDirName,
		PCH:        c.pchFlags(ctx, lang, flags),
		ExtraFlags: flags,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tel, err := c.engine.Run(ctx, spec.RunSpec{
		WorkDir:   ws.Dir(),
		Cmd:       argv,
		Env:       lang.Env,
		TimeoutMs: c.cfg.TimeoutMs,
	})
	if err != nil {
		logger.Error(ctx, "compile run failed", zap.String("language", string(lang.ID)), zap.Error(err))
		return nil, err
	}
	logger.Debug(ctx, "compile finished",
		zap.String("language", string(lang.ID)),
		zap.Int("waitStatus", tel.ExitCode),
		zap.Duration("took", time.Since(start)),
	)

	resp := &CompileResponse{CompileOutput: tel}
	ok := tel.Succeeded()
	c.metrics.ObserveCompile(ctx, string(lang.ID), ok, tel.WallTimeMs, tel.MemoryKB)
	if !ok {
		return resp, nil
	}

	if err := c.collectArtifacts(ws, lang, outDir); err != nil {
		return nil, err
	}
	b, err := bundle.Pack(outDir, lang.RunCommand)
	if err != nil {
		logger.Error(ctx, "pack bundle failed", zap.String("language", string(lang.ID)), zap.Error(err))
		return nil, err
	}
	resp.Executable = b
	return resp, nil
}

// pchFlags returns the include flag for the precompiled header directory,
// building the variant the flags can use. Cache failures only cost speed.
func (c *Compiler) pchFlags(ctx context.Context, lang profile.LanguageSpec, flags []string) []string {
	if !lang.UsesPCH || !c.pch.Enabled() {
		return nil
	}
	if key, ok := c.pch.KeyFor(flags); ok {
		if err := c.pch.EnsurePopulated(ctx, key); err != nil {
			logger.Warn(ctx, "precompiled header unavailable, building without it",
				zap.String("std", key.Std), zap.Error(err))
		}
	}
	return []string{"-I" + c.pch.IncludeDir()}
}

func (c *Compiler) collectArtifacts(ws *workspace.Workspace, lang profile.LanguageSpec, outDir string) error {
	switch lang.Kind {
	case profile.KindNative:
		if _, err := os.Stat(filepath.Join(outDir, lang.BinaryFile)); err != nil {
			return appErr.Wrapf(err, appErr.BundlePackFailed, "compiler produced no %s", lang.BinaryFile)
		}
		return nil
	case profile.KindJVM:
		return nil
	case profile.KindScript:
		src, err := ws.Path(lang.SourceFile)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return appErr.Wrapf(err, appErr.WorkspaceFailed, "read %s", lang.SourceFile)
		}
		if err := os.WriteFile(filepath.Join(outDir, lang.SourceFile), data, 0o644); err != nil {
			return appErr.Wrapf(err, appErr.WorkspaceFailed, "copy %s into bundle", lang.SourceFile)
		}
		return nil
	default:
		return appErr.New(appErr.LanguageNotSupported).WithMessagef("unknown language kind %q", lang.Kind)
	}
}
