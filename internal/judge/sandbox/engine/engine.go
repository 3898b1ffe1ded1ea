package engine

import (
	"context"

	"ojbox/internal/judge/sandbox/result"
	"ojbox/internal/judge/sandbox/spec"
)

// Engine executes a RunSpec under OS resource limits and reports telemetry.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.ProcessTelemetry, error)
}
