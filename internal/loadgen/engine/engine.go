// Package engine runs one load test: an executor drives users of a
// journey against the target while progress is reported, and the
// recorded samples come back as Locust stats rows.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/perfgate/internal/loadgen"
	"github.com/wesleyorama2/perfgate/internal/loadgen/executor"
	"github.com/wesleyorama2/perfgate/internal/loadgen/metrics"
	"github.com/wesleyorama2/perfgate/internal/output"
	"github.com/wesleyorama2/perfgate/internal/stats"
)

// DefaultProgressInterval is how often progress is reported.
const DefaultProgressInterval = 2 * time.Second

// Config configures a load run.
type Config struct {
	Journey  loadgen.Journey
	BaseURL  string
	Executor executor.Config
	HTTP     loadgen.HTTPClientConfig

	// OnProgress receives a sample every ProgressInterval and once at the end.
	OnProgress       func(output.LiveStats)
	ProgressInterval time.Duration

	Logger logrus.FieldLogger

	// Seed makes task selection reproducible; zero seeds from the clock.
	Seed int64
}

// Result is the outcome of a load run.
type Result struct {
	StartTime time.Time
	Duration  time.Duration

	// Rows holds one row per endpoint followed by the Aggregated row.
	Rows     []stats.Row
	Failures []stats.FailureRow
}

// Aggregate returns the Aggregated row.
func (r *Result) Aggregate() stats.Row {
	if len(r.Rows) == 0 {
		return stats.Row{Name: stats.AggregateSentinel}
	}
	return r.Rows[len(r.Rows)-1]
}

// Engine runs a load test.
type Engine struct {
	config Config
	log    logrus.FieldLogger
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Journey == nil {
		return nil, errors.New("engine requires a journey")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("engine requires a base URL")
	}
	if err := cfg.Executor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid executor: %w", err)
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Engine{config: cfg, log: cfg.Logger}, nil
}

// Run executes the load test. When ctx is cancelled the users are stopped,
// and the samples recorded so far are returned along with ctx's error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	exec, err := executor.New(e.config.Executor)
	if err != nil {
		return nil, err
	}

	metricsEngine := metrics.NewEngine()
	scheduler, err := loadgen.NewScheduler(loadgen.SchedulerConfig{
		Journey: e.config.Journey,
		BaseURL: e.config.BaseURL,
		Metrics: metricsEngine,
		HTTP:    e.config.HTTP,
		Logger:  e.log,
		Seed:    e.config.Seed,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	e.log.WithFields(logrus.Fields{
		"journey":  e.config.Journey.Name(),
		"host":     e.config.BaseURL,
		"executor": exec.Type(),
		"duration": e.config.Executor.TotalDuration(),
	}).Info("Starting load run")

	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		return exec.Run(gctx, scheduler)
	})
	g.Go(func() error {
		e.reportProgress(done, exec, metricsEngine)
		return nil
	})
	runErr := g.Wait()

	elapsed := metricsEngine.Elapsed()
	result := &Result{
		StartTime: start,
		Duration:  elapsed,
		Rows:      metricsEngine.Rows(elapsed),
		Failures:  metricsEngine.Failures(),
	}

	agg := result.Aggregate()
	e.log.WithFields(logrus.Fields{
		"requests": agg.RequestCount,
		"failures": agg.FailureCount,
		"duration": elapsed.Round(time.Millisecond),
	}).Info("Load run finished")

	return result, runErr
}

func (e *Engine) reportProgress(done <-chan struct{}, exec executor.Executor, m *metrics.Engine) {
	ticker := time.NewTicker(e.config.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			e.emit(liveStats(exec, m))
			return
		case <-ticker.C:
			e.emit(liveStats(exec, m))
		}
	}
}

func (e *Engine) emit(s output.LiveStats) {
	if e.config.OnProgress != nil {
		e.config.OnProgress(s)
		return
	}
	e.log.WithFields(logrus.Fields{
		"progress": fmt.Sprintf("%.0f%%", s.Progress*100),
		"users":    s.ActiveUsers,
		"requests": s.TotalRequests,
		"failures": s.Failures,
		"rps":      fmt.Sprintf("%.1f", s.RequestsPerSec),
	}).Debug("Load run progress")
}

func liveStats(exec executor.Executor, m *metrics.Engine) output.LiveStats {
	snap := m.Snapshot()
	st := exec.Stats()

	remaining := st.TotalDuration - st.Elapsed
	if remaining < 0 {
		remaining = 0
	}

	return output.LiveStats{
		Progress:        exec.Progress(),
		Elapsed:         st.Elapsed,
		Remaining:       remaining,
		ActiveUsers:     snap.ActiveUsers,
		TargetUsers:     st.TargetUsers,
		RequestsPerSec:  snap.RequestsPerSec,
		TotalRequests:   snap.TotalRequests,
		Failures:        snap.Failures,
		ErrorRate:       snap.ErrorRate,
		AvgResponseTime: snap.AvgResponseTime,
		Percentile95:    snap.Percentile95,
		Stage:           st.CurrentStage,
		TotalStages:     st.TotalStages,
	}
}

// StatsFile returns the stats table path Locust uses for a CSV prefix.
func StatsFile(prefix string) string {
	return prefix + "_stats.csv"
}

// FailuresFile returns the failures table path for a CSV prefix.
func FailuresFile(prefix string) string {
	return prefix + "_failures.csv"
}

// WriteCSV writes PREFIX_stats.csv and PREFIX_failures.csv and returns the
// stats file path.
func (r *Result) WriteCSV(prefix string) (string, error) {
	if dir := filepath.Dir(prefix); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	statsPath := StatsFile(prefix)
	if err := writeFile(statsPath, func(f *os.File) error { return stats.WriteCSV(f, r.Rows) }); err != nil {
		return "", err
	}
	if err := writeFile(FailuresFile(prefix), func(f *os.File) error { return stats.WriteFailuresCSV(f, r.Failures) }); err != nil {
		return "", err
	}
	return statsPath, nil
}

func writeFile(path string, write func(*os.File) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	if err := write(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
