package stats

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const countsHeader = "Type,Name,Request Count,Failure Count,Median Response Time,Average Response Time,Min Response Time,Max Response Time,Requests/s,Failures/s,95%,99%"

func TestParse_CountsLayout(t *testing.T) {
	input := countsHeader + "\n" +
		"GET,/api/products,60,1,110,120.5,10,900,6,0.1,300,700\n" +
		"Aggregated,,100,3,150,250.75,5,2500,12.5,0.4,900,1800\n"

	rec, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := Record{
		TotalRequests:      100,
		FailureCount:       3,
		AvgResponseTime:    250.75,
		MinResponseTime:    5,
		MaxResponseTime:    2500,
		MedianResponseTime: 150,
		Percentile95:       900,
		Percentile99:       1800,
		RequestsPerSec:     12.5,
		FailuresPerSec:     0.4,
		ErrorRate:          3.0,
	}
	if rec != want {
		t.Errorf("Parse() = %+v, want %+v", rec, want)
	}
}

func TestParse_LocustNameColumnLayout(t *testing.T) {
	input := countsHeader + "\n" +
		"GET,/api/products,10,0,110,120,10,300,2,0,200,250\n" +
		",Aggregated,40,2,130,140,8,600,8,0.4,400,550\n"

	rec, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.TotalRequests != 40 {
		t.Errorf("TotalRequests = %d, want 40", rec.TotalRequests)
	}
	if rec.ErrorRate != 5.0 {
		t.Errorf("ErrorRate = %v, want 5", rec.ErrorRate)
	}
}

func TestParse_ZeroRequests(t *testing.T) {
	input := countsHeader + "\nAggregated,,0,0,0,0,0,0,0,0,N/A,N/A\n"

	rec, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.ErrorRate != 0 {
		t.Errorf("ErrorRate = %v, want 0", rec.ErrorRate)
	}
	if rec.Percentile95 != 0 || rec.Percentile99 != 0 {
		t.Errorf("percentiles = %v/%v, want 0/0", rec.Percentile95, rec.Percentile99)
	}
}

func TestParse_MissingPercentileColumns(t *testing.T) {
	input := "Type,Name,Request Count,Failure Count,Median Response Time,Average Response Time,Min Response Time,Max Response Time,Requests/s,Failures/s\n" +
		"Aggregated,,10,0,100,100,50,150,20,0\n"

	rec, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.Percentile95 != 0 {
		t.Errorf("Percentile95 = %v, want 0", rec.Percentile95)
	}
	if rec.Percentile99 != 0 {
		t.Errorf("Percentile99 = %v, want 0", rec.Percentile99)
	}
}

func TestParse_FailureRateLayout(t *testing.T) {
	input := "Type,Name,Request Count,Median Response Time,Average Response Time,Min Response Time,Max Response Time,Requests/s,Failures/s,Failure Rate\n" +
		"Aggregated,,200,100,110,20,400,15,0.3,2.5%\n"

	rec, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.ErrorRate != 2.5 {
		t.Errorf("ErrorRate = %v, want 2.5", rec.ErrorRate)
	}
	if rec.FailureCount != 5 {
		t.Errorf("FailureCount = %d, want 5", rec.FailureCount)
	}
}

func TestParse_ErrorRateSource(t *testing.T) {
	// Both layouts present and disagreeing: counts say 10%, the column says 1%.
	input := countsHeader + ",Failure Rate\n" +
		"Aggregated,,100,10,100,100,50,150,20,2,200,300,1\n"

	tests := []struct {
		source ErrorRateSource
		want   float64
	}{
		{SourceAuto, 10},
		{SourceCounts, 10},
		{SourceFailureRate, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.source), func(t *testing.T) {
			rec, err := Parse(strings.NewReader(input), WithErrorRateSource(tt.source))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if rec.ErrorRate != tt.want {
				t.Errorf("ErrorRate = %v, want %v", rec.ErrorRate, tt.want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		opts      []Option
		wantField string
		wantErr   error
	}{
		{
			name:    "empty input",
			input:   "",
			wantErr: ErrNoAggregateRow,
		},
		{
			name:    "no aggregate row",
			input:   countsHeader + "\nGET,/api/products,10,0,100,100,50,150,20,0,200,300\n",
			wantErr: ErrNoAggregateRow,
		},
		{
			name:      "malformed average",
			input:     countsHeader + "\nAggregated,,10,0,100,fast,50,150,20,0,200,300\n",
			wantField: colAvgResponseTime,
		},
		{
			name:      "malformed request count",
			input:     countsHeader + "\nAggregated,,ten,0,100,100,50,150,20,0,200,300\n",
			wantField: colRequestCount,
		},
		{
			name:      "fractional failure count",
			input:     countsHeader + "\nAggregated,,10,1.5,100,100,50,150,20,0,200,300\n",
			wantField: colFailureCount,
		},
		{
			name:      "malformed percentile",
			input:     countsHeader + "\nAggregated,,10,0,100,100,50,150,20,0,abc,300\n",
			wantField: colPercentile95,
		},
		{
			name:      "failures exceed requests",
			input:     countsHeader + "\nAggregated,,10,11,100,100,50,150,20,0,200,300\n",
			wantField: colFailureCount,
		},
		{
			name:      "negative time",
			input:     countsHeader + "\nAggregated,,10,0,100,-1,50,150,20,0,200,300\n",
			wantField: colAvgResponseTime,
		},
		{
			name:      "missing required column",
			input:     "Type,Name,Request Count,Failure Count\nAggregated,,10,0\n",
			wantField: colAvgResponseTime,
		},
		{
			name:      "no error rate columns",
			input:     "Type,Name,Request Count,Median Response Time,Average Response Time,Min Response Time,Max Response Time,Requests/s,Failures/s\nAggregated,,10,1,1,1,1,1,0\n",
			wantField: colFailureCount,
		},
		{
			name:      "failure-rate source without column",
			input:     countsHeader + "\nAggregated,,10,0,100,100,50,150,20,0,200,300\n",
			opts:      []Option{WithErrorRateSource(SourceFailureRate)},
			wantField: colFailureRate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input), tt.opts...)
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}

			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse() error = %T (%v), want *ParseError", err, err)
			}
			if tt.wantField != "" && pe.Field != tt.wantField {
				t.Errorf("ParseError.Field = %q, want %q", pe.Field, tt.wantField)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParse_DuplicateAggregateRow(t *testing.T) {
	input := countsHeader + "\n" +
		"Aggregated,,10,0,100,100,50,150,20,0,200,300\n" +
		"Aggregated,,20,0,100,100,50,150,20,0,200,300\n"

	_, err := Parse(strings.NewReader(input))

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
	if pe.Row != 3 {
		t.Errorf("ParseError.Row = %d, want 3", pe.Row)
	}
	if !strings.Contains(err.Error(), "duplicate aggregate row") {
		t.Errorf("error %q does not mention the duplicate row", err.Error())
	}
}

func TestParse_MalformedFieldReportsLine(t *testing.T) {
	input := countsHeader + "\n" +
		"GET,/api/products,10,0,100,100,50,150,20,0,200,300\n" +
		"Aggregated,,10,0,100,100,50,150,oops,0,200,300\n"

	_, err := Parse(strings.NewReader(input))

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
	if pe.Row != 3 {
		t.Errorf("ParseError.Row = %d, want 3", pe.Row)
	}
	if pe.Value != "oops" {
		t.Errorf("ParseError.Value = %q, want %q", pe.Value, "oops")
	}
	want := `parse error on line 3, field "Requests/s" (value "oops"): invalid syntax`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := ParseFile(filepath.Join(dir, "nope.csv"))
		if !errors.Is(err, ErrInputNotFound) {
			t.Errorf("ParseFile() error = %v, want ErrInputNotFound", err)
		}
	})

	t.Run("path under a regular file", func(t *testing.T) {
		blocker := filepath.Join(dir, "blocker")
		if err := os.WriteFile(blocker, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := ParseFile(filepath.Join(blocker, "stats.csv"))
		if !errors.Is(err, ErrInputNotFound) {
			t.Errorf("ParseFile() error = %v, want ErrInputNotFound", err)
		}
	})

	t.Run("existing file", func(t *testing.T) {
		path := filepath.Join(dir, "stats.csv")
		content := "\ufeff" + countsHeader + "\nAggregated,,100,3,150,250,5,2500,12,0.4,900,1800\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		rec, err := ParseFile(path)
		if err != nil {
			t.Fatalf("ParseFile() error = %v", err)
		}
		if rec.TotalRequests != 100 {
			t.Errorf("TotalRequests = %d, want 100", rec.TotalRequests)
		}
	})
}

func TestErrorRateFromCounts(t *testing.T) {
	tests := []struct {
		failures, total int64
		want            float64
	}{
		{3, 100, 3.0},
		{0, 0, 0},
		{5, 0, 0},
		{1, 3, 100.0 / 3},
		{7, 7, 100},
	}

	for _, tt := range tests {
		if got := ErrorRateFromCounts(tt.failures, tt.total); got != tt.want {
			t.Errorf("ErrorRateFromCounts(%d, %d) = %v, want %v", tt.failures, tt.total, got, tt.want)
		}
	}
}

func TestParseErrorRateSource(t *testing.T) {
	tests := []struct {
		in      string
		want    ErrorRateSource
		wantErr bool
	}{
		{"", SourceAuto, false},
		{"auto", SourceAuto, false},
		{"COUNTS", SourceCounts, false},
		{"failure-rate", SourceFailureRate, false},
		{"ratio", "", true},
	}

	for _, tt := range tests {
		got, err := ParseErrorRateSource(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseErrorRateSource(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseErrorRateSource(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
