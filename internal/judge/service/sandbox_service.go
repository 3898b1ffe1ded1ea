package service

import (
	"context"
	"fmt"
	"time"

	"ojbox/internal/judge/sandbox"
	"ojbox/internal/judge/sandbox/bundle"
	"ojbox/internal/judge/sandbox/compiler"
	"ojbox/internal/judge/sandbox/result"
	"ojbox/internal/judge/sandbox/runner"
	"ojbox/pkg/utils/logger"

	"go.uber.org/zap"
)

// Builder turns source code into an executable bundle.
type Builder interface {
	Compile(ctx context.Context, req compiler.BuildRequest) (*compiler.CompileResponse, error)
}

// Executor runs a bundle.
type Executor interface {
	Run(ctx context.Context, b *bundle.Bundle, opts runner.RunOptions) (result.RunResult, error)
}

// OutputGuard keeps run results within transport limits.
type OutputGuard interface {
	Apply(ctx context.Context, res result.RunResult) (result.RunResult, error)
}

const defaultSlotWait = 2 * time.Second

// Service wires the compiler, runner and output guard into request pipelines.
type Service struct {
	builder  Builder
	executor Executor
	guard    OutputGuard
	sem      chan struct{}
	slotWait time.Duration
}

// Config holds service dependencies and settings.
type Config struct {
	Builder  Builder
	Executor Executor
	Guard    OutputGuard
	// MaxConcurrent bounds requests using the sandbox at once. Zero disables the bound.
	MaxConcurrent int
	// SlotWait is how long a request waits for a free slot.
	SlotWait time.Duration
}

var _ sandbox.Service = (*Service)(nil)

// NewService creates a new sandbox service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Builder == nil {
		return nil, fmt.Errorf("builder is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Guard == nil {
		return nil, fmt.Errorf("output guard is required")
	}
	slotWait := cfg.SlotWait
	if slotWait <= 0 {
		slotWait = defaultSlotWait
	}
	s := &Service{
		builder:  cfg.Builder,
		executor: cfg.Executor,
		guard:    cfg.Guard,
		slotWait: slotWait,
	}
	if cfg.MaxConcurrent > 0 {
		s.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return s, nil
}

// Compile builds the request. A failed build is reported in the response.
func (s *Service) Compile(ctx context.Context, req compiler.BuildRequest) (*compiler.CompileResponse, error) {
	if err := s.acquireSlot(ctx); err != nil {
		return nil, err
	}
	defer s.releaseSlot()
	return s.builder.Compile(ctx, req)
}

// Execute runs a bundle and bounds the response.
func (s *Service) Execute(ctx context.Context, req sandbox.ExecuteRequest) (*result.RunResult, error) {
	if err := s.acquireSlot(ctx); err != nil {
		return nil, err
	}
	defer s.releaseSlot()
	return s.execute(ctx, req.Executable, req.Options)
}

// CompileAndExecute builds the source and runs it when the build succeeds.
func (s *Service) CompileAndExecute(ctx context.Context, req sandbox.CompileAndExecuteRequest) (*sandbox.CompileAndExecuteResponse, error) {
	if err := s.acquireSlot(ctx); err != nil {
		return nil, err
	}
	defer s.releaseSlot()

	compiled, err := s.builder.Compile(ctx, req.Compile)
	if err != nil {
		return nil, err
	}
	resp := &sandbox.CompileAndExecuteResponse{Compile: compiled.CompileOutput}
	if compiled.Executable == nil {
		logger.Debug(ctx, "compile failed, skipping execution",
			zap.String("language", string(req.Compile.Language)),
			zap.Int("waitStatus", compiled.CompileOutput.ExitCode))
		return resp, nil
	}
	run, err := s.execute(ctx, compiled.Executable, req.Execute)
	if err != nil {
		return nil, err
	}
	resp.Execute = run
	return resp, nil
}

func (s *Service) execute(ctx context.Context, b *bundle.Bundle, opts runner.RunOptions) (*result.RunResult, error) {
	res, err := s.executor.Run(ctx, b, opts)
	if err != nil {
		return nil, err
	}
	guarded, err := s.guard.Apply(ctx, res)
	if err != nil {
		return nil, err
	}
	return &guarded, nil
}
