package threshold

import (
	"fmt"

	"github.com/wesleyorama2/perfgate/internal/stats"
)

// Check is the outcome of comparing one metric against one limit.
type Check struct {
	Metric string  `json:"metric"`
	Op     string  `json:"op"`
	Actual float64 `json:"actual"`
	Bound  float64 `json:"bound"`
	Passed bool    `json:"passed"`

	// Message is empty when the check passed
	Message string `json:"message,omitempty"`
}

// Result holds every check in evaluation order and the messages of
// those that failed.
type Result struct {
	Checks     []Check
	Violations []string
}

// Passed reports whether no limit was breached.
func (r Result) Passed() bool {
	return len(r.Violations) == 0
}

// Validator checks records against a fixed Set.
type Validator struct {
	set Set
}

// NewValidator returns a Validator bound to set.
func NewValidator(set Set) *Validator {
	return &Validator{set: set}
}

// Set returns the limits the validator applies.
func (v *Validator) Set() Set {
	return v.set
}

// Validate runs all four checks, always in the same order, and never
// stops at the first failure.
func (v *Validator) Validate(rec stats.Record) Result {
	s := v.set
	checks := []Check{
		evaluate("avg_response_time", rec.AvgResponseTime, ">", s.MaxAvgResponseTime,
			"❌ Average response time (%.2fms) exceeds threshold (%sms)", FormatBound),
		evaluate("percentile_95", rec.Percentile95, ">", s.Max95Percentile,
			"❌ 95th percentile (%.2fms) exceeds threshold (%sms)", FormatBound),
		evaluate("error_rate", rec.ErrorRate, ">", s.MaxErrorRate,
			"❌ Error rate (%.2f%%) exceeds threshold (%s%%)", FormatRate),
		evaluate("requests_per_sec", rec.RequestsPerSec, "<", s.MinRPS,
			"❌ Throughput (%.2f RPS) below threshold (%s RPS)", FormatBound),
	}

	result := Result{Checks: checks}
	for _, c := range checks {
		if !c.Passed {
			result.Violations = append(result.Violations, c.Message)
		}
	}
	return result
}

// Validate checks rec against set.
func Validate(rec stats.Record, set Set) Result {
	return NewValidator(set).Validate(rec)
}

// evaluate fails the check when actual op bound holds.
func evaluate(metric string, actual float64, op string, bound float64, format string, formatBound func(float64) string) Check {
	c := Check{
		Metric: metric,
		Op:     op,
		Actual: actual,
		Bound:  bound,
		Passed: !breaches(actual, op, bound),
	}
	if !c.Passed {
		c.Message = fmt.Sprintf(format, actual, formatBound(bound))
	}
	return c
}

func breaches(actual float64, op string, bound float64) bool {
	switch op {
	case ">":
		return actual > bound
	case "<":
		return actual < bound
	default:
		return false
	}
}
