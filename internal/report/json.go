package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wesleyorama2/perfgate/internal/stats"
	"github.com/wesleyorama2/perfgate/internal/threshold"
)

// Report is the machine-readable form of one analysis.
type Report struct {
	Timestamp  time.Time     `json:"timestamp"`
	Metrics    stats.Record  `json:"metrics"`
	Thresholds threshold.Set `json:"thresholds"`
	Violations []string      `json:"violations"`
	Passed     bool          `json:"passed"`
}

// New assembles a Report. Violations is never nil.
func New(rec stats.Record, set threshold.Set, result threshold.Result, generatedAt time.Time) Report {
	violations := make([]string, len(result.Violations))
	copy(violations, result.Violations)

	return Report{
		Timestamp:  generatedAt,
		Metrics:    rec,
		Thresholds: set,
		Violations: violations,
		Passed:     result.Passed(),
	}
}

// RenderJSON returns the indented JSON document for a run.
func RenderJSON(rec stats.Record, set threshold.Set, result threshold.Result, generatedAt time.Time) ([]byte, error) {
	data, err := json.MarshalIndent(New(rec, set, result, generatedAt), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// ParseJSON decodes a document written by RenderJSON after checking it
// against the report schema.
func ParseJSON(data []byte) (*Report, error) {
	if err := ValidateJSON(data); err != nil {
		return nil, err
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	if r.Violations == nil {
		r.Violations = []string{}
	}
	return &r, nil
}
