package stats

import (
	"fmt"
	"strings"
)

// ErrorRateSource selects how Parse obtains the error rate.
//
// Two results layouts exist in the wild: one carries request and failure
// counts, the other carries a precomputed "Failure Rate" percentage.
type ErrorRateSource string

const (
	// SourceAuto derives from counts when both count columns exist and
	// falls back to the Failure Rate column otherwise.
	SourceAuto ErrorRateSource = "auto"

	// SourceCounts always derives the rate from Request Count and Failure Count.
	SourceCounts ErrorRateSource = "counts"

	// SourceFailureRate always reads the Failure Rate column.
	SourceFailureRate ErrorRateSource = "failure-rate"
)

// ParseErrorRateSource converts a flag value into an ErrorRateSource.
func ParseErrorRateSource(s string) (ErrorRateSource, error) {
	switch src := ErrorRateSource(strings.ToLower(strings.TrimSpace(s))); src {
	case "", SourceAuto:
		return SourceAuto, nil
	case SourceCounts, SourceFailureRate:
		return src, nil
	default:
		return "", fmt.Errorf("unknown error rate source %q (want auto, counts or failure-rate)", s)
	}
}

// resolve picks the concrete source for a header. It never returns SourceAuto.
func (s ErrorRateSource) resolve(h header) (ErrorRateSource, error) {
	switch s {
	case SourceCounts:
		if !h.has(colRequestCount) {
			return "", &ParseError{Field: colRequestCount, Err: fmt.Errorf("column missing")}
		}
		if !h.has(colFailureCount) {
			return "", &ParseError{Field: colFailureCount, Err: fmt.Errorf("column missing")}
		}
		return SourceCounts, nil

	case SourceFailureRate:
		if !h.has(colFailureRate) {
			return "", &ParseError{Field: colFailureRate, Err: fmt.Errorf("column missing")}
		}
		return SourceFailureRate, nil

	case SourceAuto, "":
		if h.has(colRequestCount) && h.has(colFailureCount) {
			return SourceCounts, nil
		}
		if h.has(colFailureRate) {
			return SourceFailureRate, nil
		}
		return "", &ParseError{Field: colFailureCount, Err: fmt.Errorf("column missing and no %q column to fall back to", colFailureRate)}

	default:
		return "", fmt.Errorf("unknown error rate source %q", string(s))
	}
}
