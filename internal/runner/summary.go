package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	summaryTimestampLayout = "2006-01-02 15:04:05"
	summaryFileLayout      = "2006-01-02_15-04-05"
)

// Summary is the suite report written to performance_summary_<ts>.json.
type Summary struct {
	Timestamp string `json:"timestamp"`
	BaseURL   string `json:"base_url"`

	// TestResults records whether Locust completed each scenario.
	TestResults map[string]bool `json:"test_results"`
	// ThresholdResults records the gate verdict of each analyzed scenario.
	ThresholdResults map[string]bool `json:"threshold_results"`

	Summary Totals `json:"summary"`

	generatedAt time.Time
}

// Totals counts scenarios by outcome.
type Totals struct {
	TotalTests  int `json:"total_tests"`
	PassedTests int `json:"passed_tests"`
	FailedTests int `json:"failed_tests"`
}

// NewSummary builds the summary of a suite run.
func NewSummary(at time.Time, baseURL string, results []ScenarioResult) *Summary {
	s := &Summary{
		Timestamp:        at.Format(summaryTimestampLayout),
		BaseURL:          baseURL,
		TestResults:      make(map[string]bool, len(results)),
		ThresholdResults: make(map[string]bool, len(results)),
		generatedAt:      at,
	}

	for _, r := range results {
		s.TestResults[r.Name] = r.Completed
		if r.Thresholds != nil {
			s.ThresholdResults[r.Name] = r.Thresholds.Passed()
		}

		s.Summary.TotalTests++
		if r.Completed {
			s.Summary.PassedTests++
		} else {
			s.Summary.FailedTests++
		}
	}
	return s
}

// Passed reports whether every scenario completed and every analyzed
// scenario met its thresholds.
func (s *Summary) Passed() bool {
	if s.Summary.FailedTests > 0 {
		return false
	}
	for _, ok := range s.ThresholdResults {
		if !ok {
			return false
		}
	}
	return len(s.ThresholdResults) == len(s.TestResults)
}

// FileName returns the summary file name.
func (s *Summary) FileName() string {
	return "performance_summary_" + s.generatedAt.Format(summaryFileLayout) + ".json"
}

// Write stores the summary in dir and returns its path.
func (s *Summary) Write(dir string) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}

	path := filepath.Join(dir, s.FileName())
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return path, nil
}
