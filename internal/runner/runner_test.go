package runner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/perfgate/internal/config"
	"github.com/wesleyorama2/perfgate/internal/stats"
	"github.com/wesleyorama2/perfgate/internal/threshold"
)

// fakeLocust writes a stats table for every run, like Locust --csv does.
type fakeLocust struct {
	calls [][]string
	fail  map[string]error
	// avg is the aggregated average response time written per scenario
	avg map[string]float64
}

func (f *fakeLocust) Run(ctx context.Context, name string, args ...string) error {
	f.calls = append(f.calls, append([]string{name}, args...))

	prefix := flag(args, "--csv")
	scenario := strings.SplitN(filepath.Base(prefix), "_2", 2)[0]
	if err := f.fail[scenario]; err != nil {
		return err
	}

	avg := f.avg[scenario]
	if avg == 0 {
		avg = 120
	}
	rows := []stats.Row{{
		Type:               "",
		Name:               stats.AggregateSentinel,
		RequestCount:       1000,
		FailureCount:       10,
		MedianResponseTime: avg,
		AvgResponseTime:    avg,
		MinResponseTime:    5,
		MaxResponseTime:    avg * 4,
		RequestsPerSec:     50,
		FailuresPerSec:     0.5,
		Percentiles:        []float64{avg, avg, avg, avg, avg, avg * 2, avg * 2, avg * 3, avg * 3, avg * 4, avg * 4},
	}}

	file, err := os.Create(prefix + "_stats.csv")
	if err != nil {
		return err
	}
	defer file.Close()
	return stats.WriteCSV(file, rows)
}

func flag(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// clock advances one second per reading so prefixes never collide.
func clock() func() time.Time {
	base := time.Date(2026, 10, 19, 14, 3, 22, 0, time.UTC)
	var n atomic.Int64
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)-1) * time.Second)
	}
}

func newRunner(t *testing.T, cmd CommandRunner, mutate func(*Options)) (*Runner, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	cfg := config.Default()
	cfg.Runner.ResultsDir = t.TempDir()
	cfg.Runner.Pause = config.Duration(time.Millisecond)

	opts := Options{
		Runner:     cfg.Runner,
		Target:     config.Target{Host: "http://gateway:8080/"},
		Thresholds: threshold.Default(),
		Command:    cmd,
		Logger:     logger,
		Now:        clock(),
	}
	if mutate != nil {
		mutate(&opts)
	}

	r, err := New(opts)
	require.NoError(t, err)
	return r, hook
}

func TestCommand(t *testing.T) {
	r, _ := newRunner(t, &fakeLocust{}, func(o *Options) {
		o.Runner.ResultsDir = "results"
		o.Runner.LocustFile = "shop.py"
	})

	sc := config.Scenario{Name: "normal_load", Users: 50, SpawnRate: 5, RunTime: config.Duration(5 * time.Minute)}
	got := strings.Join(r.Command(sc, "normal_load_20261019_140322"), " ")
	want := "-f shop.py --host http://gateway:8080 --users 50 --spawn-rate 5 --run-time 5m --headless " +
		"--html results/normal_load_20261019_140322_report.html --csv results/normal_load_20261019_140322_stats"
	if got != want {
		t.Errorf("Command() = %q, want %q", got, want)
	}
}

func TestTimespan(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{5 * time.Minute, "5m"},
		{90 * time.Minute, "1h30m"},
		{45 * time.Second, "45s"},
		{time.Hour + 30*time.Second, "1h30s"},
		{0, "0s"},
	}
	for _, tt := range tests {
		if got := timespan(tt.in); got != tt.want {
			t.Errorf("timespan(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSuite(t *testing.T) {
	r, _ := newRunner(t, &fakeLocust{}, nil)

	all, err := r.Suite("all")
	require.NoError(t, err)
	var names []string
	for _, sc := range all {
		names = append(names, sc.Name)
	}
	assert.Equal(t, []string{"normal_load", "stress_load", "spike_load", "endurance_load"}, names)

	quick, err := r.Suite("quick")
	require.NoError(t, err)
	require.Len(t, quick, 1)
	assert.Equal(t, 10, quick[0].Users)

	single, err := r.Suite("spike_load")
	require.NoError(t, err)
	assert.Equal(t, 500, single[0].Users)

	_, err = r.Suite("soak")
	assert.ErrorContains(t, err, `unknown scenario or suite "soak" (suites: all, quick, stress)`)
}

func TestRunScenario_Analyzes(t *testing.T) {
	locust := &fakeLocust{avg: map[string]float64{"smoke_test": 2500}}
	r, hook := newRunner(t, locust, nil)

	sc, _ := r.opts.Runner.Scenario("smoke_test")
	res, err := r.RunScenario(context.Background(), sc)
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.NoError(t, res.Err)
	assert.Equal(t, "smoke_test_20261019_140322", res.Prefix)
	require.NotNil(t, res.Record)
	assert.EqualValues(t, 1000, res.Record.TotalRequests)
	assert.InDelta(t, 1.0, res.Record.ErrorRate, 1e-9)

	require.NotNil(t, res.Thresholds)
	assert.False(t, res.Passed())
	assert.Len(t, res.Thresholds.Violations, 2)

	var warned []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = append(warned, e.Message)
		}
	}
	assert.Equal(t, res.Thresholds.Violations, warned)
}

func TestRunScenario_LocustFailure(t *testing.T) {
	locust := &fakeLocust{fail: map[string]error{"smoke_test": errors.New("locust exited with status 1")}}
	r, _ := newRunner(t, locust, nil)

	sc, _ := r.opts.Runner.Scenario("smoke_test")
	res, err := r.RunScenario(context.Background(), sc)
	require.NoError(t, err)

	assert.False(t, res.Completed)
	assert.EqualError(t, res.Err, "locust exited with status 1")
	assert.Nil(t, res.Thresholds)
	assert.False(t, res.Passed())
}

func TestRunScenario_Timeout(t *testing.T) {
	slow := commandFunc(func(ctx context.Context, name string, args ...string) error {
		<-ctx.Done()
		return ctx.Err()
	})
	r, _ := newRunner(t, slow, func(o *Options) {
		o.Runner.Timeout = config.Duration(20 * time.Millisecond)
	})

	res, err := r.RunScenario(context.Background(), config.Scenario{Name: "smoke_test", Users: 1, SpawnRate: 1})
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.EqualError(t, res.Err, "timed out after 20ms")
}

func TestRunScenario_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := commandFunc(func(context.Context, string, ...string) error {
		cancel()
		return context.Canceled
	})
	r, _ := newRunner(t, cmd, nil)

	_, err := r.RunScenario(ctx, config.Scenario{Name: "smoke_test", Users: 1, SpawnRate: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLatestStats(t *testing.T) {
	r, _ := newRunner(t, &fakeLocust{}, nil)
	dir := r.opts.Runner.ResultsDir

	old := filepath.Join(dir, "normal_load_20261019_100000_stats_stats.csv")
	recent := filepath.Join(dir, "normal_load_20261019_110000_stats_stats.csv")
	other := filepath.Join(dir, "spike_load_20261019_120000_stats_stats.csv")
	for _, p := range []string{old, recent, other} {
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	got, err := r.LatestStats("normal_load")
	require.NoError(t, err)
	assert.Equal(t, recent, got)

	_, err = r.LatestStats("endurance_load")
	assert.ErrorIs(t, err, ErrNoStatsFile)
}

func TestRunSuite(t *testing.T) {
	locust := &fakeLocust{fail: map[string]error{"spike_load": errors.New("boom")}}
	r, _ := newRunner(t, locust, nil)

	summary, err := r.RunSuite(context.Background(), "all")
	require.NoError(t, err)
	assert.Len(t, locust.calls, 4)

	assert.Equal(t, "2026-10-19 14:03:26", summary.Timestamp)
	assert.Equal(t, "http://gateway:8080", summary.BaseURL)
	assert.Equal(t, map[string]bool{
		"normal_load":    true,
		"stress_load":    true,
		"spike_load":     false,
		"endurance_load": true,
	}, summary.TestResults)
	assert.Equal(t, Totals{TotalTests: 4, PassedTests: 3, FailedTests: 1}, summary.Summary)
	assert.False(t, summary.Passed())

	data, err := os.ReadFile(filepath.Join(r.opts.Runner.ResultsDir, "performance_summary_2026-10-19_14-03-26.json"))
	require.NoError(t, err)
	assert.EqualValues(t, 4, gjson.GetBytes(data, "summary.total_tests").Int())
	assert.True(t, gjson.GetBytes(data, "threshold_results.normal_load").Bool())
	assert.False(t, gjson.GetBytes(data, "threshold_results.spike_load").Exists())
}

func TestRunSuite_WaitsForTarget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r, _ := newRunner(t, &fakeLocust{}, func(o *Options) {
		o.Target = config.Target{Host: srv.URL, ReadyPath: "/actuator/health", ReadyTimeout: config.Duration(10 * time.Second)}
	})

	summary, err := r.RunSuite(context.Background(), "quick")
	require.NoError(t, err)
	assert.True(t, summary.Passed())
	assert.EqualValues(t, 3, hits.Load())
}

func TestWaitReady_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	err := WaitReady(context.Background(), srv.Client(), srv.URL, "/health", 300*time.Millisecond, logger)
	assert.ErrorContains(t, err, "not ready")
	assert.ErrorContains(t, err, "HTTP 502")
}

func TestNew_RequiresHost(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

type commandFunc func(ctx context.Context, name string, args ...string) error

func (f commandFunc) Run(ctx context.Context, name string, args ...string) error {
	return f(ctx, name, args...)
}
