// Package metrics collects request timings of a load run in HDR histograms
// and turns them into Locust-style stats rows.
//
// Latencies are recorded in microseconds and reported in milliseconds.
// Each endpoint, keyed by method and name, gets its own histogram; the
// overall histogram backs the Aggregated row.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/perfgate/internal/stats"
)

const (
	minLatencyMicros = 1
	maxLatencyMicros = int64(time.Hour / time.Microsecond)
	sigFigs          = 3
)

// Sample is the outcome of one request.
type Sample struct {
	Method   string
	Name     string
	Duration time.Duration
	Bytes    int64
	Success  bool

	// Error describes the failure; it is grouped by in Failures.
	Error string
}

// Engine aggregates samples from every virtual user of a run.
type Engine struct {
	overall *endpoint

	endpoints   map[endpointKey]*endpoint
	endpointsMu sync.RWMutex

	activeUsers atomic.Int32

	startTime time.Time
	clock     func() time.Time
}

type endpointKey struct {
	method string
	name   string
}

type endpoint struct {
	mu sync.Mutex

	histogram *hdrhistogram.Histogram
	requests  int64
	failures  int64
	bytes     int64

	// exact values; the histogram is only accurate to sigFigs
	totalMicros int64
	minMicros   int64
	maxMicros   int64

	errors map[string]int64
}

func newEndpoint() *endpoint {
	return &endpoint{
		histogram: hdrhistogram.New(minLatencyMicros, maxLatencyMicros, sigFigs),
		errors:    make(map[string]int64),
	}
}

func (e *endpoint) record(s Sample) {
	us := s.Duration.Microseconds()
	if us < minLatencyMicros {
		us = minLatencyMicros
	}
	if us > maxLatencyMicros {
		us = maxLatencyMicros
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_ = e.histogram.RecordValue(us)
	if e.requests == 0 || us < e.minMicros {
		e.minMicros = us
	}
	if us > e.maxMicros {
		e.maxMicros = us
	}
	e.requests++
	e.totalMicros += us
	e.bytes += s.Bytes

	if !s.Success {
		e.failures++
		e.errors[s.Error]++
	}
}

// NewEngine creates an engine whose clock starts now.
func NewEngine() *Engine {
	return newEngineWithClock(time.Now)
}

func newEngineWithClock(clock func() time.Time) *Engine {
	return &Engine{
		overall:   newEndpoint(),
		endpoints: make(map[endpointKey]*endpoint),
		startTime: clock(),
		clock:     clock,
	}
}

// Record adds one request outcome.
func (e *Engine) Record(s Sample) {
	e.overall.record(s)
	e.endpoint(s.Method, s.Name).record(s)
}

func (e *Engine) endpoint(method, name string) *endpoint {
	key := endpointKey{method: method, name: name}

	e.endpointsMu.RLock()
	ep, ok := e.endpoints[key]
	e.endpointsMu.RUnlock()
	if ok {
		return ep
	}

	e.endpointsMu.Lock()
	defer e.endpointsMu.Unlock()
	if ep, ok = e.endpoints[key]; !ok {
		ep = newEndpoint()
		e.endpoints[key] = ep
	}
	return ep
}

// SetActiveUsers sets the current number of running virtual users.
func (e *Engine) SetActiveUsers(n int) {
	e.activeUsers.Store(int32(n))
}

// ActiveUsers returns the current number of running virtual users.
func (e *Engine) ActiveUsers() int {
	return int(e.activeUsers.Load())
}

// Elapsed returns the time since the engine was created.
func (e *Engine) Elapsed() time.Duration {
	return e.clock().Sub(e.startTime)
}

// Snapshot is a point-in-time summary for progress output.
type Snapshot struct {
	Elapsed         time.Duration
	ActiveUsers     int
	TotalRequests   int64
	Failures        int64
	ErrorRate       float64 // percent
	RequestsPerSec  float64
	AvgResponseTime float64 // ms
	Percentile95    float64 // ms
}

// Snapshot returns the current totals.
func (e *Engine) Snapshot() Snapshot {
	elapsed := e.Elapsed()
	row := e.overall.row("", stats.AggregateSentinel, elapsed)

	return Snapshot{
		Elapsed:         elapsed,
		ActiveUsers:     e.ActiveUsers(),
		TotalRequests:   row.RequestCount,
		Failures:        row.FailureCount,
		ErrorRate:       stats.ErrorRateFromCounts(row.FailureCount, row.RequestCount),
		RequestsPerSec:  row.RequestsPerSec,
		AvgResponseTime: row.AvgResponseTime,
		Percentile95:    percentile(row, 95),
	}
}

// Rows returns one row per endpoint, sorted by name then method, followed
// by the Aggregated row. Rates are computed over elapsed.
func (e *Engine) Rows(elapsed time.Duration) []stats.Row {
	e.endpointsMu.RLock()
	keys := make([]endpointKey, 0, len(e.endpoints))
	for k := range e.endpoints {
		keys = append(keys, k)
	}
	e.endpointsMu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].method < keys[j].method
	})

	rows := make([]stats.Row, 0, len(keys)+1)
	for _, k := range keys {
		rows = append(rows, e.endpoint(k.method, k.name).row(k.method, k.name, elapsed))
	}
	return append(rows, e.overall.row("", stats.AggregateSentinel, elapsed))
}

func (e *endpoint) row(method, name string, elapsed time.Duration) stats.Row {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := stats.Row{
		Type:         method,
		Name:         name,
		RequestCount: e.requests,
		FailureCount: e.failures,
		Percentiles:  make([]float64, len(stats.PercentileQuantiles)),
	}
	if e.requests == 0 {
		return r
	}

	r.AvgResponseTime = microsToMillis(float64(e.totalMicros) / float64(e.requests))
	r.MinResponseTime = microsToMillis(float64(e.minMicros))
	r.MaxResponseTime = microsToMillis(float64(e.maxMicros))
	r.MedianResponseTime = e.quantile(50)
	r.AvgContentSize = float64(e.bytes) / float64(e.requests)

	for i, q := range stats.PercentileQuantiles {
		r.Percentiles[i] = e.quantile(q)
	}

	if secs := elapsed.Seconds(); secs > 0 {
		r.RequestsPerSec = float64(e.requests) / secs
		r.FailuresPerSec = float64(e.failures) / secs
	}
	return r
}

// quantile returns q in ms, capped at the exact maximum since histogram
// buckets report their upper bound.
func (e *endpoint) quantile(q float64) float64 {
	us := e.histogram.ValueAtQuantile(q)
	if q >= 100 || us > e.maxMicros {
		us = e.maxMicros
	}
	return microsToMillis(float64(us))
}

// Failures returns the distinct errors per endpoint, most frequent first.
func (e *Engine) Failures() []stats.FailureRow {
	e.endpointsMu.RLock()
	defer e.endpointsMu.RUnlock()

	var out []stats.FailureRow
	for k, ep := range e.endpoints {
		ep.mu.Lock()
		for msg, n := range ep.errors {
			out = append(out, stats.FailureRow{Method: k.method, Name: k.name, Error: msg, Occurrences: n})
		}
		ep.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		if out[i].Method != out[j].Method {
			return out[i].Method < out[j].Method
		}
		return out[i].Error < out[j].Error
	})
	return out
}

func percentile(r stats.Row, q float64) float64 {
	for i, v := range stats.PercentileQuantiles {
		if v == q && i < len(r.Percentiles) {
			return r.Percentiles[i]
		}
	}
	return 0
}

func microsToMillis(us float64) float64 {
	return us / 1000
}
