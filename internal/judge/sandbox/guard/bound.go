// Package guard keeps run responses within transport size limits.
package guard

import (
	"unicode/utf8"

	"ojbox/internal/judge/sandbox/result"
)

// TruncationMarker is appended to every truncated stream.
const TruncationMarker = "\n[Truncated]"

// Bound truncates the streams of res so that file output, stderr and stdout
// together take at most budget bytes once JSON encoded. File output is served
// first, then stderr, then stdout, each with a guaranteed minimum share.
func Bound(res result.RunResult, budget int) result.RunResult {
	if budget < 0 {
		budget = 0
	}
	remaining := budget
	stdoutLen := encodedLen(res.Stdout)

	if res.FileOutput != nil {
		streams := stdoutLen + encodedLen(res.Stderr)
		allowance := max(remaining/3, remaining-min(streams, remaining))
		bounded := truncate(*res.FileOutput, allowance)
		res.FileOutput = &bounded
		remaining -= encodedLen(bounded)
	}

	stderrAllowance := max(remaining/2, remaining-min(stdoutLen, remaining))
	res.Stderr = truncate(res.Stderr, stderrAllowance)
	remaining -= encodedLen(res.Stderr)

	res.Stdout = truncate(res.Stdout, remaining)
	return res
}

// truncate shortens s to at most allowance encoded bytes, cutting on a rune
// boundary. The marker is included in the allowance and dropped when it does
// not fit.
func truncate(s string, allowance int) string {
	if encodedLen(s) <= allowance {
		return s
	}
	if allowance <= 0 {
		return ""
	}
	markerLen := encodedLen(TruncationMarker)
	if allowance > markerLen {
		return s[:cutEncoded(s, allowance-markerLen)] + TruncationMarker
	}
	return s[:cutEncoded(s, allowance)]
}

// encodedLen is the length of s inside a JSON string literal as written by
// encoding/json, without the surrounding quotes. It may overestimate.
func encodedLen(s string) int {
	n := 0
	for i := 0; i < len(s); {
		w, size := runeEncodedLen(s[i:])
		n += w
		i += size
	}
	return n
}

// cutEncoded returns the largest rune boundary i such that s[:i] encodes to
// at most limit bytes.
func cutEncoded(s string, limit int) int {
	n := 0
	for i := 0; i < len(s); {
		w, size := runeEncodedLen(s[i:])
		if n+w > limit {
			return i
		}
		n += w
		i += size
	}
	return len(s)
}

// runeEncodedLen returns the encoded width and source size of the first rune of s.
func runeEncodedLen(s string) (int, int) {
	b := s[0]
	if b < utf8.RuneSelf {
		switch {
		case b == '"' || b == '\\' || b == '\n' || b == '\r' || b == '\t':
			return 2, 1
		case b < 0x20 || b == '<' || b == '>' || b == '&':
			// \u00XX; \b and \f may be written shorter.
			return 6, 1
		}
		return 1, 1
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError && size == 1 {
		// invalid byte, written as \ufffd
		return 6, 1
	}
	if r == '\u2028' || r == '\u2029' {
		return 6, size
	}
	return size, size
}
