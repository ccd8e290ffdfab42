// Package threshold compares an aggregated load run against fixed limits.
package threshold

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Default limits.
const (
	DefaultMaxAvgResponseTime = 2000.0
	DefaultMax95Percentile    = 3000.0
	DefaultMaxErrorRate       = 5.0
	DefaultMinRPS             = 10.0
)

// Set holds the four limits a run is checked against. Times are in
// milliseconds, MaxErrorRate in percent and MinRPS in requests per second.
type Set struct {
	MaxAvgResponseTime float64 `json:"max_avg_response_time" yaml:"max_avg_response_time"`
	Max95Percentile    float64 `json:"max_95_percentile" yaml:"max_95_percentile"`
	MaxErrorRate       float64 `json:"max_error_rate" yaml:"max_error_rate"`
	MinRPS             float64 `json:"min_rps" yaml:"min_rps"`
}

// Default returns the standard limits.
func Default() Set {
	return Set{
		MaxAvgResponseTime: DefaultMaxAvgResponseTime,
		Max95Percentile:    DefaultMax95Percentile,
		MaxErrorRate:       DefaultMaxErrorRate,
		MinRPS:             DefaultMinRPS,
	}
}

// Overrides carries optional replacements for individual limits.
// A nil field keeps the limit it would replace.
type Overrides struct {
	MaxAvgResponseTime *float64 `yaml:"max_avg_response_time,omitempty"`
	Max95Percentile    *float64 `yaml:"max_95_percentile,omitempty"`
	MaxErrorRate       *float64 `yaml:"max_error_rate,omitempty"`
	MinRPS             *float64 `yaml:"min_rps,omitempty"`
}

// With returns a copy of s with every non-nil override applied.
func (s Set) With(o Overrides) Set {
	if o.MaxAvgResponseTime != nil {
		s.MaxAvgResponseTime = *o.MaxAvgResponseTime
	}
	if o.Max95Percentile != nil {
		s.Max95Percentile = *o.Max95Percentile
	}
	if o.MaxErrorRate != nil {
		s.MaxErrorRate = *o.MaxErrorRate
	}
	if o.MinRPS != nil {
		s.MinRPS = *o.MinRPS
	}
	return s
}

// Check reports the first invalid limit.
func (s Set) Check() error {
	limits := []struct {
		name  string
		value float64
	}{
		{"max_avg_response_time", s.MaxAvgResponseTime},
		{"max_95_percentile", s.Max95Percentile},
		{"max_error_rate", s.MaxErrorRate},
		{"min_rps", s.MinRPS},
	}
	for _, l := range limits {
		if l.value < 0 {
			return fmt.Errorf("%s must not be negative, got %s", l.name, FormatBound(l.value))
		}
	}
	if s.MaxErrorRate > 100 {
		return fmt.Errorf("max_error_rate must not exceed 100, got %s", FormatBound(s.MaxErrorRate))
	}
	return nil
}

var assignmentRe = regexp.MustCompile(`^(\w+)\s*=\s*(.+)$`)

// ParseAssignment parses an override such as "p95=2500" or
// "max_error_rate = 1.5" into Overrides. The short names avg, p95,
// error_rate and rps are accepted alongside the full limit names.
func ParseAssignment(expr string, into *Overrides) error {
	matches := assignmentRe.FindStringSubmatch(strings.TrimSpace(expr))
	if len(matches) != 3 {
		return fmt.Errorf("invalid threshold expression %q (want name=value)", expr)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(matches[2]), 64)
	if err != nil {
		return fmt.Errorf("invalid value in threshold expression %q: %w", expr, err)
	}

	switch strings.ToLower(matches[1]) {
	case "avg", "max_avg_response_time":
		into.MaxAvgResponseTime = &value
	case "p95", "max_95_percentile":
		into.Max95Percentile = &value
	case "error_rate", "max_error_rate":
		into.MaxErrorRate = &value
	case "rps", "min_rps":
		into.MinRPS = &value
	default:
		return fmt.Errorf("unknown threshold %q", matches[1])
	}
	return nil
}

// FormatBound prints a limit in its shortest decimal form: 2000, 5, 7.5.
func FormatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatRate prints a percentage limit with at least one decimal: 5.0, 7.5.
func FormatRate(v float64) string {
	s := FormatBound(v)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
