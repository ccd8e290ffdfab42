package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
)

// PercentileColumns are the percentile headers of the Locust stats table, in order.
var PercentileColumns = []string{"50%", "66%", "75%", "80%", "90%", "95%", "98%", "99%", "99.9%", "99.99%", "100%"}

// PercentileQuantiles holds the quantile (0-100) behind each entry of PercentileColumns.
var PercentileQuantiles = []float64{50, 66, 75, 80, 90, 95, 98, 99, 99.9, 99.99, 100}

// Row is one line of a results table. Times are in milliseconds.
type Row struct {
	Type               string
	Name               string
	RequestCount       int64
	FailureCount       int64
	MedianResponseTime float64
	AvgResponseTime    float64
	MinResponseTime    float64
	MaxResponseTime    float64
	AvgContentSize     float64
	RequestsPerSec     float64
	FailuresPerSec     float64

	// Percentiles is aligned with PercentileColumns.
	Percentiles []float64
}

// AggregateRow reports whether r is the summary row.
func (r Row) AggregateRow() bool {
	return r.Type == AggregateSentinel || (r.Type == "" && r.Name == AggregateSentinel)
}

var writerHeader = append([]string{
	colType,
	colName,
	colRequestCount,
	colFailureCount,
	colMedianResponseTime,
	colAvgResponseTime,
	colMinResponseTime,
	colMaxResponseTime,
	"Average Content Size",
	colRequestsPerSec,
	colFailuresPerSec,
}, PercentileColumns...)

// WriteCSV writes rows in the Locust stats layout, which Parse reads back.
// Percentile cells of rows without requests are written as "N/A".
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(writerHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.Type,
			r.Name,
			strconv.FormatInt(r.RequestCount, 10),
			strconv.FormatInt(r.FailureCount, 10),
			formatInteger(r.MedianResponseTime),
			formatReal(r.AvgResponseTime),
			formatReal(r.MinResponseTime),
			formatReal(r.MaxResponseTime),
			formatReal(r.AvgContentSize),
			formatReal(r.RequestsPerSec),
			formatReal(r.FailuresPerSec),
		}
		for i := range PercentileColumns {
			if r.RequestCount == 0 || i >= len(r.Percentiles) {
				record = append(record, "N/A")
				continue
			}
			record = append(record, formatInteger(r.Percentiles[i]))
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %q: %w", r.Name, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatReal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatInteger(v float64) string {
	return strconv.FormatInt(int64(math.Round(v)), 10)
}

// FailureRow is one line of a failures table: a distinct error and how
// often an endpoint returned it.
type FailureRow struct {
	Method      string
	Name        string
	Error       string
	Occurrences int64
}

// WriteFailuresCSV writes rows in the Locust failures layout.
func WriteFailuresCSV(w io.Writer, rows []FailureRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Method", "Name", "Error", "Occurrences"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Method, r.Name, r.Error, strconv.FormatInt(r.Occurrences, 10)}); err != nil {
			return fmt.Errorf("failed to write failure %q: %w", r.Name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
