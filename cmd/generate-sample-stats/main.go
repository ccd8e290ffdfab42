package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wesleyorama2/perfgate/internal/stats"
)

func main() {
	prefix := flag.String("prefix", "sample", "Output prefix; writes PREFIX_stats.csv and PREFIX_failures.csv")
	breach := flag.Bool("breach", false, "Generate numbers that breach the default thresholds")
	flag.Parse()

	if err := generate(*prefix, *breach); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sample stats generated: %s_stats.csv\n", *prefix)
}

// generate writes PREFIX_stats.csv and PREFIX_failures.csv.
func generate(prefix string, breach bool) error {
	rows := sampleRows(breach)
	if err := writeFile(prefix+"_stats.csv", func(f *os.File) error { return stats.WriteCSV(f, rows) }); err != nil {
		return err
	}
	return writeFile(prefix+"_failures.csv", func(f *os.File) error { return stats.WriteFailuresCSV(f, sampleFailures(rows, breach)) })
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func sampleRows(breach bool) []stats.Row {
	scale := 1.0
	failures := int64(12)
	if breach {
		scale = 18
		failures = 900
	}

	endpoints := []stats.Row{
		{Type: "POST", Name: "users:create", RequestCount: 1210, MedianResponseTime: 48, AvgResponseTime: 55.4, MinResponseTime: 9, MaxResponseTime: 612},
		{Type: "GET", Name: "products:list", RequestCount: 3655, MedianResponseTime: 31, AvgResponseTime: 38.9, MinResponseTime: 4, MaxResponseTime: 488},
		{Type: "GET", Name: "products:get", RequestCount: 2417, MedianResponseTime: 27, AvgResponseTime: 33.1, MinResponseTime: 3, MaxResponseTime: 402},
		{Type: "POST", Name: "orders:create", RequestCount: 1198, MedianResponseTime: 96, AvgResponseTime: 118.7, MinResponseTime: 21, MaxResponseTime: 1540},
		{Type: "POST", Name: "payments:create", RequestCount: 1187, MedianResponseTime: 140, AvgResponseTime: 171.2, MinResponseTime: 35, MaxResponseTime: 2210},
	}

	const runSeconds = 300.0
	agg := stats.Row{Type: "", Name: stats.AggregateSentinel, MinResponseTime: -1}
	var weighted float64
	for i := range endpoints {
		e := &endpoints[i]
		e.MedianResponseTime *= scale
		e.AvgResponseTime *= scale
		e.MaxResponseTime *= scale
		e.AvgContentSize = 512
		if e.Type == "POST" {
			e.FailureCount = failures / 4
		}
		e.RequestsPerSec = float64(e.RequestCount) / runSeconds
		e.FailuresPerSec = float64(e.FailureCount) / runSeconds
		e.Percentiles = percentiles(e.MedianResponseTime, e.MaxResponseTime)

		agg.RequestCount += e.RequestCount
		agg.FailureCount += e.FailureCount
		weighted += e.AvgResponseTime * float64(e.RequestCount)
		if agg.MinResponseTime < 0 || e.MinResponseTime < agg.MinResponseTime {
			agg.MinResponseTime = e.MinResponseTime
		}
		if e.MaxResponseTime > agg.MaxResponseTime {
			agg.MaxResponseTime = e.MaxResponseTime
		}
	}
	agg.AvgResponseTime = weighted / float64(agg.RequestCount)
	agg.MedianResponseTime = 42 * scale
	agg.AvgContentSize = 512
	agg.RequestsPerSec = float64(agg.RequestCount) / runSeconds
	agg.FailuresPerSec = float64(agg.FailureCount) / runSeconds
	agg.Percentiles = percentiles(agg.MedianResponseTime, agg.MaxResponseTime)

	return append(endpoints, agg)
}

// percentiles spreads the table between the median and the max.
func percentiles(median, max float64) []float64 {
	out := make([]float64, len(stats.PercentileQuantiles))
	for i, q := range stats.PercentileQuantiles {
		frac := (q - 50) / 50
		out[i] = median + (max-median)*frac*frac*frac
	}
	return out
}

func sampleFailures(rows []stats.Row, breach bool) []stats.FailureRow {
	msg := "HTTPError('502 Server Error')"
	if breach {
		msg = "HTTPError('503 Server Error')"
	}
	var out []stats.FailureRow
	for _, r := range rows {
		if r.AggregateRow() || r.FailureCount == 0 {
			continue
		}
		out = append(out, stats.FailureRow{Method: r.Type, Name: r.Name, Error: msg, Occurrences: r.FailureCount})
	}
	return out
}
