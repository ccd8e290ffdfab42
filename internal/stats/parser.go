package stats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Column names of the results table.
const (
	colType               = "Type"
	colName               = "Name"
	colRequestCount       = "Request Count"
	colFailureCount       = "Failure Count"
	colAvgResponseTime    = "Average Response Time"
	colMinResponseTime    = "Min Response Time"
	colMaxResponseTime    = "Max Response Time"
	colMedianResponseTime = "Median Response Time"
	colPercentile95       = "95%"
	colPercentile99       = "99%"
	colRequestsPerSec     = "Requests/s"
	colFailuresPerSec     = "Failures/s"
	colFailureRate        = "Failure Rate"
)

// requiredFloatColumns must exist in every results table.
var requiredFloatColumns = []string{
	colAvgResponseTime,
	colMinResponseTime,
	colMaxResponseTime,
	colMedianResponseTime,
	colRequestsPerSec,
	colFailuresPerSec,
}

// Option configures Parse.
type Option func(*parseOptions)

type parseOptions struct {
	source ErrorRateSource
}

// WithErrorRateSource selects the error rate strategy. The default is SourceAuto.
func WithErrorRateSource(src ErrorRateSource) Option {
	return func(o *parseOptions) {
		o.source = src
	}
}

// ParseFile opens path and parses it. A missing file yields an error
// wrapping ErrInputNotFound.
func ParseFile(path string, opts ...Option) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		// a path through a regular file cannot exist either
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return Record{}, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return Record{}, fmt.Errorf("failed to open stats file: %w", err)
	}
	defer f.Close()

	return Parse(f, opts...)
}

// Parse reads a CSV results table and returns its aggregate row as a Record.
//
// Exactly one row must carry the "Aggregated" sentinel in its Type column
// (or in its Name column when Type is empty, which is how Locust writes it).
// The 95% and 99% columns are optional and default to 0.
func Parse(r io.Reader, opts ...Option) (Record, error) {
	o := parseOptions{source: SourceAuto}
	for _, opt := range opts {
		opt(&o)
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headerRow, err := reader.Read()
	if err == io.EOF {
		return Record{}, &ParseError{Err: ErrNoAggregateRow}
	}
	if err != nil {
		return Record{}, &ParseError{Row: 1, Err: err}
	}

	h := newHeader(headerRow)
	if !h.has(colType) && !h.has(colName) {
		return Record{}, &ParseError{Field: colType, Err: fmt.Errorf("column missing")}
	}
	if !h.has(colRequestCount) {
		return Record{}, &ParseError{Field: colRequestCount, Err: fmt.Errorf("column missing")}
	}
	for _, col := range requiredFloatColumns {
		if !h.has(col) {
			return Record{}, &ParseError{Field: col, Err: fmt.Errorf("column missing")}
		}
	}

	source, err := o.source.resolve(h)
	if err != nil {
		return Record{}, err
	}

	var (
		aggregate []string
		line      int
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Record{}, &ParseError{Err: err}
		}

		if !h.isAggregate(row) {
			continue
		}

		rowLine, _ := reader.FieldPos(0)
		if aggregate != nil {
			return Record{}, &ParseError{Row: rowLine, Err: fmt.Errorf("duplicate aggregate row (first on line %d)", line)}
		}
		aggregate = row
		line = rowLine
	}

	if aggregate == nil {
		return Record{}, &ParseError{Err: ErrNoAggregateRow}
	}

	return buildRecord(h, aggregate, line, source)
}

// buildRecord converts the aggregate row into a Record.
func buildRecord(h header, row []string, line int, source ErrorRateSource) (Record, error) {
	p := rowParser{h: h, row: row, line: line}

	rec := Record{
		TotalRequests:      p.count(colRequestCount),
		AvgResponseTime:    p.real(colAvgResponseTime),
		MinResponseTime:    p.real(colMinResponseTime),
		MaxResponseTime:    p.real(colMaxResponseTime),
		MedianResponseTime: p.real(colMedianResponseTime),
		Percentile95:       p.optionalReal(colPercentile95),
		Percentile99:       p.optionalReal(colPercentile99),
		RequestsPerSec:     p.real(colRequestsPerSec),
		FailuresPerSec:     p.real(colFailuresPerSec),
	}

	switch source {
	case SourceCounts:
		rec.FailureCount = p.count(colFailureCount)
		if p.err == nil {
			rec.ErrorRate = ErrorRateFromCounts(rec.FailureCount, rec.TotalRequests)
		}

	case SourceFailureRate:
		rec.ErrorRate = p.percent(colFailureRate)
		if h.has(colFailureCount) {
			rec.FailureCount = p.count(colFailureCount)
		} else if p.err == nil {
			rec.FailureCount = int64(math.Round(float64(rec.TotalRequests) * rec.ErrorRate / 100))
		}
	}

	if p.err != nil {
		return Record{}, p.err
	}

	if rec.FailureCount > rec.TotalRequests {
		return Record{}, &ParseError{
			Field: colFailureCount,
			Row:   line,
			Value: strconv.FormatInt(rec.FailureCount, 10),
			Err:   fmt.Errorf("exceeds request count %d", rec.TotalRequests),
		}
	}

	return rec, nil
}

// header maps column names to their index.
type header map[string]int

func newHeader(cols []string) header {
	h := make(header, len(cols))
	for i, col := range cols {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		if _, dup := h[col]; !dup {
			h[col] = i
		}
	}
	return h
}

func (h header) has(col string) bool {
	_, ok := h[col]
	return ok
}

// cell returns the trimmed value of col, and false when the column is
// absent from the header or the row is short.
func (h header) cell(row []string, col string) (string, bool) {
	idx, ok := h[col]
	if !ok || idx >= len(row) {
		return "", false
	}
	return strings.TrimSpace(row[idx]), true
}

func (h header) isAggregate(row []string) bool {
	typ, _ := h.cell(row, colType)
	if typ == AggregateSentinel {
		return true
	}
	name, _ := h.cell(row, colName)
	return typ == "" && name == AggregateSentinel
}

// rowParser converts cells and keeps the first error.
type rowParser struct {
	h    header
	row  []string
	line int
	err  error
}

func (p *rowParser) fail(col, value string, err error) {
	if p.err == nil {
		p.err = &ParseError{Field: col, Row: p.line, Value: value, Err: err}
	}
}

func (p *rowParser) count(col string) int64 {
	v, ok := p.h.cell(p.row, col)
	if !ok {
		p.fail(col, "", fmt.Errorf("value missing"))
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(col, v, errors.Unwrap(err))
		return 0
	}
	if n < 0 {
		p.fail(col, v, fmt.Errorf("must not be negative"))
		return 0
	}
	return n
}

func (p *rowParser) real(col string) float64 {
	v, ok := p.h.cell(p.row, col)
	if !ok {
		p.fail(col, "", fmt.Errorf("value missing"))
		return 0
	}
	return p.parseReal(col, v)
}

// optionalReal treats an absent column, an empty cell and "N/A" as 0.
func (p *rowParser) optionalReal(col string) float64 {
	v, ok := p.h.cell(p.row, col)
	if !ok || v == "" || strings.EqualFold(v, "N/A") {
		return 0
	}
	return p.parseReal(col, v)
}

// percent reads a percentage, accepting an optional trailing '%'.
func (p *rowParser) percent(col string) float64 {
	v, ok := p.h.cell(p.row, col)
	if !ok {
		p.fail(col, "", fmt.Errorf("value missing"))
		return 0
	}
	return p.parseReal(col, strings.TrimSpace(strings.TrimSuffix(v, "%")))
}

func (p *rowParser) parseReal(col, v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(col, v, errors.Unwrap(err))
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		p.fail(col, v, fmt.Errorf("not a finite number"))
		return 0
	}
	if f < 0 {
		p.fail(col, v, fmt.Errorf("must not be negative"))
		return 0
	}
	return f
}
