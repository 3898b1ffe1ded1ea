//go:build !linux

package engine

import (
	"context"
	"fmt"

	"ojbox/internal/judge/sandbox/result"
	"ojbox/internal/judge/sandbox/spec"
	appErr "ojbox/pkg/errors"
)

type stubEngine struct{}

func NewEngine(cfg Config) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.ProcessTelemetry, error) {
	return result.ProcessTelemetry{}, appErr.New(appErr.SandboxSpawnFailed).WithMessage("sandbox engine is only supported on linux")
}

func nameSignal(sig int) *string {
	name := fmt.Sprintf("signal %d", sig)
	return &name
}
