// Package runner orchestrates an external Locust binary through a suite
// of load scenarios and gates each one on the performance thresholds.
package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/perfgate/internal/config"
	"github.com/wesleyorama2/perfgate/internal/stats"
	"github.com/wesleyorama2/perfgate/internal/threshold"
)

// prefixLayout stamps scenario output files.
const prefixLayout = "20060102_150405"

// ErrNoStatsFile is returned when a scenario left no stats table behind.
var ErrNoStatsFile = errors.New("no stats file found")

// Options configures a Runner.
type Options struct {
	Runner     config.Runner
	Target     config.Target
	Thresholds threshold.Set
	Schema     stats.ErrorRateSource

	// Command runs Locust; defaults to ExecRunner.
	Command CommandRunner
	// HTTPClient probes readiness; defaults to a client with a 5s timeout.
	HTTPClient *http.Client
	Logger     logrus.FieldLogger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Runner runs Locust scenarios.
type Runner struct {
	opts      Options
	validator *threshold.Validator
	log       logrus.FieldLogger
}

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Name   string
	Prefix string

	// Completed reports whether Locust exited successfully.
	Completed bool
	Err       error

	// StatsFile, Record and Thresholds are set once the run was analyzed.
	StatsFile  string
	Record     *stats.Record
	Thresholds *threshold.Result
}

// Passed reports whether the scenario completed, was analyzed and
// breached no threshold.
func (r ScenarioResult) Passed() bool {
	return r.Completed && r.Err == nil && r.Thresholds != nil && r.Thresholds.Passed()
}

// New creates a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Target.Host == "" {
		return nil, errors.New("runner requires a target host")
	}
	if opts.Runner.ResultsDir == "" {
		opts.Runner.ResultsDir = config.DefaultResultsDir
	}
	if opts.Runner.LocustBinary == "" {
		opts.Runner.LocustBinary = config.DefaultLocustBinary
	}
	if opts.Runner.LocustFile == "" {
		opts.Runner.LocustFile = config.DefaultLocustFile
	}
	if opts.Runner.Timeout == 0 {
		opts.Runner.Timeout = config.Duration(config.DefaultScenarioTimeout)
	}
	if opts.Schema == "" {
		opts.Schema = stats.SourceAuto
	}
	if opts.Command == nil {
		opts.Command = ExecRunner{}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	opts.Target.Host = strings.TrimRight(opts.Target.Host, "/")
	return &Runner{
		opts:      opts,
		validator: threshold.NewValidator(opts.Thresholds),
		log:       opts.Logger,
	}, nil
}

// Suite resolves name to its scenarios. A scenario name resolves to a
// suite of one.
func (r *Runner) Suite(name string) ([]config.Scenario, error) {
	names, ok := r.opts.Runner.Suites[name]
	if !ok {
		if _, found := r.opts.Runner.Scenario(name); !found {
			return nil, fmt.Errorf("unknown scenario or suite %q (suites: %s)", name, strings.Join(r.suiteNames(), ", "))
		}
		names = []string{name}
	}

	scenarios := make([]config.Scenario, 0, len(names))
	for _, n := range names {
		sc, found := r.opts.Runner.Scenario(n)
		if !found {
			return nil, fmt.Errorf("suite %q references unknown scenario %q", name, n)
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func (r *Runner) suiteNames() []string {
	names := make([]string, 0, len(r.opts.Runner.Suites))
	for n := range r.opts.Runner.Suites {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Command returns the Locust arguments for a scenario writing under prefix.
func (r *Runner) Command(sc config.Scenario, prefix string) []string {
	dir := r.opts.Runner.ResultsDir
	return []string{
		"-f", r.opts.Runner.LocustFile,
		"--host", r.opts.Target.Host,
		"--users", strconv.Itoa(sc.Users),
		"--spawn-rate", strconv.FormatFloat(sc.SpawnRate, 'f', -1, 64),
		"--run-time", timespan(sc.RunTime.Std()),
		"--headless",
		"--html", filepath.Join(dir, prefix+"_report.html"),
		"--csv", filepath.Join(dir, prefix+"_stats"),
	}
}

// RunScenario runs one scenario and, when Locust succeeded, analyzes its
// newest stats file. A failed Locust run is reported in the result, not
// as an error; the error is for conditions that stop the suite.
func (r *Runner) RunScenario(ctx context.Context, sc config.Scenario) (ScenarioResult, error) {
	if err := os.MkdirAll(r.opts.Runner.ResultsDir, 0o755); err != nil {
		return ScenarioResult{Name: sc.Name}, fmt.Errorf("failed to create results dir: %w", err)
	}

	prefix := sc.Name + "_" + r.opts.Now().Format(prefixLayout)
	res := ScenarioResult{Name: sc.Name, Prefix: prefix}
	log := r.log.WithFields(logrus.Fields{
		"scenario":   sc.Name,
		"users":      sc.Users,
		"spawn_rate": sc.SpawnRate,
		"run_time":   sc.RunTime.String(),
	})

	args := r.Command(sc, prefix)
	log.WithField("command", r.opts.Runner.LocustBinary+" "+strings.Join(args, " ")).Info("Running scenario")

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Runner.Timeout.Std())
	err := r.opts.Command.Run(runCtx, r.opts.Runner.LocustBinary, args...)
	cancel()

	switch {
	case err == nil:
		res.Completed = true
		log.Info("Scenario completed")
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		res.Err = fmt.Errorf("timed out after %s", r.opts.Runner.Timeout)
		log.WithError(res.Err).Error("Scenario failed")
		return res, nil
	default:
		res.Err = err
		log.WithError(err).Error("Scenario failed")
		return res, nil
	}

	if err := r.analyze(&res, log); err != nil {
		res.Err = err
		log.WithError(err).Warn("Could not analyze scenario")
	}
	return res, nil
}

func (r *Runner) analyze(res *ScenarioResult, log logrus.FieldLogger) error {
	path, err := r.LatestStats(res.Name)
	if err != nil {
		return err
	}

	rec, err := stats.ParseFile(path, stats.WithErrorRateSource(r.opts.Schema))
	if err != nil {
		return err
	}
	result := r.validator.Validate(rec)

	res.StatsFile = path
	res.Record = &rec
	res.Thresholds = &result

	log = log.WithField("stats", path)
	log.WithFields(logrus.Fields{
		"requests":   rec.TotalRequests,
		"failures":   rec.FailureCount,
		"avg_ms":     rec.AvgResponseTime,
		"p95_ms":     rec.Percentile95,
		"p99_ms":     rec.Percentile99,
		"rps":        rec.RequestsPerSec,
		"error_rate": rec.ErrorRate,
	}).Info("Scenario metrics")

	if result.Passed() {
		log.Info("All performance thresholds met")
		return nil
	}
	for _, v := range result.Violations {
		log.Warn(v)
	}
	return nil
}

// LatestStats returns the most recently modified stats table of scenario.
func (r *Runner) LatestStats(scenario string) (string, error) {
	pattern := filepath.Join(r.opts.Runner.ResultsDir, scenario+"_*_stats_stats.csv")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}

	var (
		latest   string
		latestAt time.Time
	)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestAt) ||
			(info.ModTime().Equal(latestAt) && m > latest) {
			latest, latestAt = m, info.ModTime()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%w for %s in %s", ErrNoStatsFile, scenario, r.opts.Runner.ResultsDir)
	}
	return latest, nil
}

// RunSuite waits for the target, runs every scenario of the suite in
// order with the configured pause between them and writes the summary.
func (r *Runner) RunSuite(ctx context.Context, suite string) (*Summary, error) {
	scenarios, err := r.Suite(suite)
	if err != nil {
		return nil, err
	}

	if path := r.opts.Target.ReadyPath; path != "" {
		timeout := r.opts.Target.ReadyTimeout.Std()
		if timeout <= 0 {
			timeout = config.DefaultReadyTimeout
		}
		if err := WaitReady(ctx, r.opts.HTTPClient, r.opts.Target.Host, path, timeout, r.log); err != nil {
			return nil, err
		}
	}

	results := make([]ScenarioResult, 0, len(scenarios))
	for i, sc := range scenarios {
		res, err := r.RunScenario(ctx, sc)
		if err != nil {
			return nil, err
		}
		results = append(results, res)

		if i < len(scenarios)-1 && r.opts.Runner.Pause > 0 {
			r.log.WithField("pause", r.opts.Runner.Pause.String()).Info("Waiting before next scenario")
			if err := sleep(ctx, r.opts.Runner.Pause.Std()); err != nil {
				return nil, err
			}
		}
	}

	summary := NewSummary(r.opts.Now(), r.opts.Target.Host, results)
	path, err := summary.Write(r.opts.Runner.ResultsDir)
	if err != nil {
		return summary, err
	}
	r.log.WithFields(logrus.Fields{
		"total":  summary.Summary.TotalTests,
		"passed": summary.Summary.PassedTests,
		"failed": summary.Summary.FailedTests,
		"file":   path,
	}).Info("Performance test summary")
	return summary, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// timespan formats d the way Locust's --run-time expects: 1h30m, 5m, 45s.
func timespan(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}

	var b strings.Builder
	if h := d / time.Hour; h > 0 {
		fmt.Fprintf(&b, "%dh", h)
		d -= h * time.Hour
	}
	if m := d / time.Minute; m > 0 {
		fmt.Fprintf(&b, "%dm", m)
		d -= m * time.Minute
	}
	if s := d / time.Second; s > 0 {
		fmt.Fprintf(&b, "%ds", s)
	}
	return b.String()
}
