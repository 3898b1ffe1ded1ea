package engine

import (
	"fmt"
	"time"
)

const (
	defaultShellPath     = "/bin/sh"
	defaultTimeBinary    = "/usr/bin/time"
	defaultTimeoutBinary = "/usr/bin/timeout"
	defaultKillAfter     = time.Second
	defaultWaitDelay     = 2 * time.Second
)

// Config controls sandbox engine behavior.
type Config struct {
	// ShellPath runs the fixed ulimit prefix.
	ShellPath string
	// TimeBinary must be GNU time; its -v report is parsed from stderr.
	TimeBinary string
	// TimeoutBinary must be GNU timeout; it exits 124 when the limit fires.
	TimeoutBinary string
	// KillAfter is passed to timeout as --kill-after. Zero disables escalation.
	KillAfter time.Duration
	// WaitDelay bounds how long Wait blocks on output pipes held by stray descendants.
	WaitDelay time.Duration
	// BaseEnv is used when a RunSpec carries no environment. Empty inherits the server's.
	BaseEnv []string
}

func (c Config) withDefaults() Config {
	if c.ShellPath == "" {
		c.ShellPath = defaultShellPath
	}
	if c.TimeBinary == "" {
		c.TimeBinary = defaultTimeBinary
	}
	if c.TimeoutBinary == "" {
		c.TimeoutBinary = defaultTimeoutBinary
	}
	if c.KillAfter < 0 {
		c.KillAfter = 0
	} else if c.KillAfter == 0 {
		c.KillAfter = defaultKillAfter
	}
	if c.WaitDelay <= 0 {
		c.WaitDelay = defaultWaitDelay
	}
	return c
}

// limitScript is the only text the shell interprets. The command arrives as "$@".
const limitScript = `ulimit -c 0 && ulimit -s "$(ulimit -H -s)" && exec "$@"`

// shellArgv0 names the wrapper shell in ps output.
const shellArgv0 = "ojbox-sandbox"

// timeoutSeconds rounds the limit down to whole seconds.
// GNU timeout treats 0 as "no limit", so sub-second limits become one second.
func timeoutSeconds(timeoutMs uint32) uint32 {
	secs := timeoutMs / 1000
	if secs == 0 {
		return 1
	}
	return secs
}

// wrapCommand returns the shell argv that applies limits, timing and the timeout to cmd.
func wrapCommand(cfg Config, cmd []string, timeoutMs uint32) []string {
	args := []string{"-c", limitScript, shellArgv0, cfg.TimeBinary, "-v", cfg.TimeoutBinary}
	if cfg.KillAfter > 0 {
		args = append(args, fmt.Sprintf("--kill-after=%ds", killAfterSeconds(cfg.KillAfter)))
	}
	args = append(args, fmt.Sprintf("%ds", timeoutSeconds(timeoutMs)))
	return append(args, cmd...)
}

func killAfterSeconds(d time.Duration) int64 {
	secs := int64(d / time.Second)
	if secs <= 0 {
		return 1
	}
	return secs
}
