package stats

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteCSV_ReadBackByParse(t *testing.T) {
	rows := []Row{
		{
			Type:               "GET",
			Name:               "/api/products",
			RequestCount:       80,
			FailureCount:       2,
			MedianResponseTime: 120,
			AvgResponseTime:    130.5,
			MinResponseTime:    12,
			MaxResponseTime:    980,
			RequestsPerSec:     8,
			FailuresPerSec:     0.2,
			Percentiles:        []float64{120, 140, 160, 180, 300, 420, 600, 800, 950, 980, 980},
		},
		{
			Name:               AggregateSentinel,
			RequestCount:       100,
			FailureCount:       4,
			MedianResponseTime: 125.4,
			AvgResponseTime:    140.25,
			MinResponseTime:    10,
			MaxResponseTime:    1200,
			RequestsPerSec:     10,
			FailuresPerSec:     0.4,
			Percentiles:        []float64{125, 150, 170, 190, 320, 450.6, 700, 900, 1100, 1200, 1200},
		},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	rec, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if rec.TotalRequests != 100 {
		t.Errorf("TotalRequests = %d, want 100", rec.TotalRequests)
	}
	if rec.ErrorRate != 4 {
		t.Errorf("ErrorRate = %v, want 4", rec.ErrorRate)
	}
	if rec.MedianResponseTime != 125 {
		t.Errorf("MedianResponseTime = %v, want 125", rec.MedianResponseTime)
	}
	if rec.AvgResponseTime != 140.25 {
		t.Errorf("AvgResponseTime = %v, want 140.25", rec.AvgResponseTime)
	}
	if rec.Percentile95 != 451 {
		t.Errorf("Percentile95 = %v, want 451", rec.Percentile95)
	}
	if rec.Percentile99 != 900 {
		t.Errorf("Percentile99 = %v, want 900", rec.Percentile99)
	}
}

func TestWriteCSV_EmptyRowPercentiles(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []Row{{Name: AggregateSentinel}})
	if err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.HasSuffix(lines[1], ",N/A,N/A") {
		t.Errorf("aggregate line = %q, want N/A percentiles", lines[1])
	}
	if !strings.HasPrefix(lines[0], "Type,Name,Request Count,Failure Count,Median Response Time") {
		t.Errorf("header = %q", lines[0])
	}
}

func TestRow_AggregateRow(t *testing.T) {
	tests := []struct {
		row  Row
		want bool
	}{
		{Row{Type: "Aggregated"}, true},
		{Row{Name: "Aggregated"}, true},
		{Row{Type: "GET", Name: "Aggregated"}, false},
		{Row{Type: "GET", Name: "/api/products"}, false},
	}

	for _, tt := range tests {
		if got := tt.row.AggregateRow(); got != tt.want {
			t.Errorf("%+v.AggregateRow() = %v, want %v", tt.row, got, tt.want)
		}
	}
}

func TestWriteFailuresCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFailuresCSV(&buf, []FailureRow{
		{Method: "POST", Name: "/api/orders", Error: "HTTP 500", Occurrences: 3},
		{Method: "GET", Name: "/api/products/{id}", Error: `unexpected status, "404"`, Occurrences: 1},
	})
	if err != nil {
		t.Fatalf("WriteFailuresCSV() error = %v", err)
	}

	want := "Method,Name,Error,Occurrences\n" +
		"POST,/api/orders,HTTP 500,3\n" +
		"GET,/api/products/{id},\"unexpected status, \"\"404\"\"\",1\n"
	if got := buf.String(); got != want {
		t.Errorf("WriteFailuresCSV() =\n%s\nwant:\n%s", got, want)
	}
}
