// Package observer defines metrics hooks for sandbox execution.
package observer

import "context"

// MetricsRecorder records sandbox metrics.
type MetricsRecorder interface {
	ObserveCompile(ctx context.Context, language string, ok bool, timeMs int64, memoryKB int64)
	ObserveRun(ctx context.Context, verdict string, timeMs int64, memoryKB int64)
	ObserveOffload(ctx context.Context, ok bool, sizeBytes int)
	ObserveRateLimited(ctx context.Context, route string)
}

// NoopRecorder discards all observations.
type NoopRecorder struct{}

func (NoopRecorder) ObserveCompile(context.Context, string, bool, int64, int64) {}
func (NoopRecorder) ObserveRun(context.Context, string, int64, int64) {}
func (NoopRecorder) ObserveOffload(context.Context, bool, int) {}
func (NoopRecorder) ObserveRateLimited(context.Context, string) {}
