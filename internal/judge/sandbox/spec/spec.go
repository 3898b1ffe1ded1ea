// Package spec defines the execution specification handed to the sandbox engine.
package spec

// RunSpec describes one resource-limited process invocation.
type RunSpec struct {
	// WorkDir is the host directory the process starts in.
	WorkDir string
	// Cmd is the argument vector. It is never re-parsed by a shell.
	Cmd []string
	// Env replaces the engine's base environment when non-empty.
	Env []string
	// Stdin is fed to the process from a separate goroutine.
	Stdin []byte
	// TimeoutMs is the wall-clock limit, applied in whole seconds.
	TimeoutMs uint32
}
