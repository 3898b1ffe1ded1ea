package engine

import (
	"fmt"
	"strconv"
	"strings"

	"ojbox/internal/judge/sandbox/result"
	appErr "ojbox/pkg/errors"
)

// Lines emitted by GNU time -v. The report is appended to the child's stderr.
const (
	reportMarker   = "\tCommand being timed: "
	elapsedPrefix  = "\tElapsed (wall clock) time (h:mm:ss or m:ss): "
	maxRSSPrefix   = "\tMaximum resident set size (kbytes): "
	exitedPrefix   = "Command exited with non-zero status "
	signaledPrefix = "Command terminated by signal "
)

// timeReport is the subset of the GNU time report the sandbox keeps.
type timeReport struct {
	WallTime   string
	WallTimeMs int64
	MaxRSSKB   int64
	// TermSignal is the signal number GNU time saw end its child, 0 if none.
	TermSignal int
}

// splitTimeReport separates the program's own stderr from the trailing GNU time report.
func splitTimeReport(stderr string) (string, timeReport, error) {
	idx := strings.LastIndex(stderr, reportMarker)
	if idx < 0 {
		return stderr, timeReport{}, appErr.New(appErr.TelemetryParseFailed).WithMessage("time report not found in stderr")
	}

	// The report follows the child's last byte, which need not be a newline.
	// GNU time may prefix it with a whole status line of its own.
	report := timeReport{}
	cut := idx
	if _, start, ok := statusLine(stderr[:idx], exitedPrefix); ok {
		cut = start
	} else if num, start, ok := statusLine(stderr[:idx], signaledPrefix); ok {
		if sig, err := strconv.Atoi(num); err == nil {
			report.TermSignal = sig
		}
		cut = start
	}

	body := stderr[idx:]
	var foundElapsed, foundRSS bool
	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, elapsedPrefix):
			wall, ms, err := normalizeElapsed(strings.TrimPrefix(line, elapsedPrefix))
			if err != nil {
				return stderr, timeReport{}, err
			}
			report.WallTime = wall
			report.WallTimeMs = ms
			foundElapsed = true
		case strings.HasPrefix(line, maxRSSPrefix):
			value := strings.TrimSpace(strings.TrimPrefix(line, maxRSSPrefix))
			kb, err := strconv.ParseInt(value, 10, 64)
			if err != nil || kb < 0 {
				return stderr, timeReport{}, appErr.Newf(appErr.TelemetryParseFailed, "invalid max rss %q", value)
			}
			report.MaxRSSKB = kb
			foundRSS = true
		}
	}
	if !foundElapsed {
		return stderr, timeReport{}, appErr.New(appErr.TelemetryParseFailed).WithMessage("elapsed time missing from time report")
	}
	if !foundRSS {
		return stderr, timeReport{}, appErr.New(appErr.TelemetryParseFailed).WithMessage("max rss missing from time report")
	}
	return stderr[:cut], report, nil
}

// statusLine finds "<prefix>N\n" at the end of s and returns N and the
// offset of the prefix.
func statusLine(s, prefix string) (string, int, bool) {
	if !strings.HasSuffix(s, "\n") {
		return "", 0, false
	}
	start := strings.LastIndex(s, prefix)
	if start < 0 {
		return "", 0, false
	}
	digits := s[start+len(prefix) : len(s)-1]
	if _, err := parseUnsigned(digits); err != nil {
		return "", 0, false
	}
	return digits, start, true
}

// normalizeElapsed converts "m:ss.cc" or "h:mm:ss" to "m:ss.cc" and milliseconds.
func normalizeElapsed(raw string) (string, int64, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")
	var hours, minutes, centis int64
	var err error
	switch len(parts) {
	case 2:
		if minutes, err = parseUnsigned(parts[0]); err != nil {
			return "", 0, invalidElapsed(raw)
		}
		if centis, err = parseSecondsCentis(parts[1]); err != nil {
			return "", 0, invalidElapsed(raw)
		}
	case 3:
		if hours, err = parseUnsigned(parts[0]); err != nil {
			return "", 0, invalidElapsed(raw)
		}
		if minutes, err = parseUnsigned(parts[1]); err != nil {
			return "", 0, invalidElapsed(raw)
		}
		if centis, err = parseSecondsCentis(parts[2]); err != nil {
			return "", 0, invalidElapsed(raw)
		}
	default:
		return "", 0, invalidElapsed(raw)
	}
	if centis >= 60*100 {
		return "", 0, invalidElapsed(raw)
	}
	totalMinutes := hours*60 + minutes
	wall := fmt.Sprintf("%d:%02d.%02d", totalMinutes, centis/100, centis%100)
	ms := (totalMinutes*60*100 + centis) * 10
	return wall, ms, nil
}

// parseSecondsCentis parses "ss" or "ss.cc" into hundredths of a second.
func parseSecondsCentis(raw string) (int64, error) {
	whole, frac, hasFrac := strings.Cut(raw, ".")
	secs, err := parseUnsigned(whole)
	if err != nil {
		return 0, err
	}
	var centis int64
	if hasFrac {
		if len(frac) == 0 || len(frac) > 2 {
			return 0, fmt.Errorf("invalid fraction %q", frac)
		}
		if centis, err = parseUnsigned(frac); err != nil {
			return 0, err
		}
		if len(frac) == 1 {
			centis *= 10
		}
	}
	return secs*100 + centis, nil
}

func parseUnsigned(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("empty number")
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid digit in %q", raw)
		}
	}
	return strconv.ParseInt(raw, 10, 64)
}

func invalidElapsed(raw string) error {
	return appErr.Newf(appErr.TelemetryParseFailed, "invalid elapsed time %q", raw)
}

// buildTelemetry assembles executor telemetry from captured streams and the wait status.
func buildTelemetry(stdout, stderr string, waitStatus int, signalName *string) (result.ProcessTelemetry, error) {
	cleaned, report, err := splitTimeReport(stderr)
	if err != nil {
		return result.ProcessTelemetry{}, err
	}
	if signalName == nil && report.TermSignal > 0 {
		signalName = nameSignal(report.TermSignal)
	}
	return result.ProcessTelemetry{
		Stdout:      stdout,
		Stderr:      cleaned,
		WallTime:    report.WallTime,
		MemoryUsage: strconv.FormatInt(report.MaxRSSKB, 10),
		ExitCode:    waitStatus,
		ExitSignal:  signalName,
		WallTimeMs:  report.WallTimeMs,
		MemoryKB:    report.MaxRSSKB,
	}, nil
}
