// Package stats reads the aggregated row of a load-test results file.
//
// The results format is the CSV stats table written by Locust (and by
// perfgate's own load generator): one row per endpoint plus a single
// summary row tagged "Aggregated". Parse extracts that summary row into
// a Record.
package stats

// AggregateSentinel marks the summary row of a results table.
const AggregateSentinel = "Aggregated"

// Record is an immutable snapshot of one aggregated load run.
//
// Times are in milliseconds, rates in requests per second and
// ErrorRate in percent.
type Record struct {
	TotalRequests      int64   `json:"total_requests"`
	FailureCount       int64   `json:"failure_count"`
	AvgResponseTime    float64 `json:"avg_response_time"`
	MinResponseTime    float64 `json:"min_response_time"`
	MaxResponseTime    float64 `json:"max_response_time"`
	MedianResponseTime float64 `json:"median_response_time"`
	Percentile95       float64 `json:"percentile_95"`
	Percentile99       float64 `json:"percentile_99"`
	RequestsPerSec     float64 `json:"requests_per_sec"`
	FailuresPerSec     float64 `json:"failures_per_sec"`
	ErrorRate          float64 `json:"error_rate"`
}

// ErrorRateFromCounts returns failures as a percentage of total requests.
// A run with no requests has an error rate of 0.
func ErrorRateFromCounts(failures, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failures) * 100 / float64(total)
}
