// Package sandbox defines the public call interface used by the HTTP layer.
package sandbox

import (
	"context"

	"ojbox/internal/judge/sandbox/bundle"
	"ojbox/internal/judge/sandbox/compiler"
	"ojbox/internal/judge/sandbox/result"
	"ojbox/internal/judge/sandbox/runner"
)

// Service is the high-level sandbox entrypoint.
type Service interface {
	Compile(ctx context.Context, req compiler.BuildRequest) (*compiler.CompileResponse, error)
	Execute(ctx context.Context, req ExecuteRequest) (*result.RunResult, error)
	CompileAndExecute(ctx context.Context, req CompileAndExecuteRequest) (*CompileAndExecuteResponse, error)
}

// ExecuteRequest runs a previously built bundle.
type ExecuteRequest struct {
	Executable *bundle.Bundle     `json:"executable"`
	Options    runner.RunOptions `json:"options"`
}

// CompileAndExecuteRequest builds the source and runs it in one call.
type CompileAndExecuteRequest struct {
	Compile compiler.BuildRequest `json:"compile"`
	Execute runner.RunOptions     `json:"execute"`
}

// CompileAndExecuteResponse carries the build telemetry and, when the build
// succeeded, the run result.
type CompileAndExecuteResponse struct {
	Compile result.ProcessTelemetry `json:"compile"`
	// Execute is nil when the program failed to compile.
	Execute *result.RunResult `json:"execute"`
}
