// Package result defines sandbox telemetry, verdicts and response payloads.
package result

import "syscall"

// Verdict is the coarse classification of one program run.
type Verdict string

const (
	VerdictAccepted          Verdict = "accepted"
	VerdictTimeLimitExceeded Verdict = "time_limit_exceeded"
	VerdictRuntimeError      Verdict = "runtime_error"
	// VerdictWrongAnswer is reserved for callers that compare against a reference answer.
	VerdictWrongAnswer Verdict = "wrong_answer"
)

// TimeoutExitStatus is the exit status GNU timeout uses when the limit fires.
const TimeoutExitStatus = 124

// TimeoutWaitStatus is TimeoutExitStatus encoded as a raw wait status (124 << 8).
// ProcessTelemetry.ExitCode is always compared against this form.
const TimeoutWaitStatus = TimeoutExitStatus << 8

// ProcessTelemetry captures one executor invocation.
type ProcessTelemetry struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	// WallTime is formatted as m:ss.cc.
	WallTime string `json:"wall_time"`
	// MemoryUsage is the peak resident set size in kilobytes.
	MemoryUsage string `json:"memory_usage"`
	// ExitCode is the raw wait status, not a POSIX exit status.
	ExitCode   int     `json:"exit_code"`
	ExitSignal *string `json:"exit_signal"`

	WallTimeMs int64 `json:"-"`
	MemoryKB   int64 `json:"-"`
}

// Succeeded reports whether the wait status encodes a clean exit with status 0.
func (t ProcessTelemetry) Succeeded() bool {
	ws := syscall.WaitStatus(t.ExitCode)
	return ws.Exited() && ws.ExitStatus() == 0
}

// RunResult is the response for one execution of a bundle.
type RunResult struct {
	Stdout string `json:"stdout"`
	// FileOutput holds <file_io_name>.out when the program produced it.
	FileOutput  *string `json:"file_output"`
	Stderr      string  `json:"stderr"`
	WallTime    string  `json:"wall_time"`
	MemoryUsage string  `json:"memory_usage"`
	// ExitCode is the raw wait status, not a POSIX exit status.
	ExitCode   int     `json:"exit_code"`
	ExitSignal *string `json:"exit_signal"`
	Verdict    Verdict `json:"verdict"`
	// FullOutputURL points at the untruncated response when it was offloaded.
	FullOutputURL *string `json:"full_output_url"`

	WallTimeMs int64 `json:"-"`
	MemoryKB   int64 `json:"-"`
}

// ClassifyWaitStatus maps a raw wait status to a verdict.
func ClassifyWaitStatus(waitStatus int) Verdict {
	switch waitStatus {
	case TimeoutWaitStatus:
		return VerdictTimeLimitExceeded
	case 0:
		return VerdictAccepted
	default:
		return VerdictRuntimeError
	}
}

// FromTelemetry builds a RunResult from executor telemetry and classifies it.
func FromTelemetry(t ProcessTelemetry) RunResult {
	return RunResult{
		Stdout:      t.Stdout,
		Stderr:      t.Stderr,
		WallTime:    t.WallTime,
		MemoryUsage: t.MemoryUsage,
		ExitCode:    t.ExitCode,
		ExitSignal:  t.ExitSignal,
		Verdict:     ClassifyWaitStatus(t.ExitCode),
		WallTimeMs:  t.WallTimeMs,
		MemoryKB:    t.MemoryKB,
	}
}
