package cli

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/perfgate/internal/config"
	"github.com/wesleyorama2/perfgate/internal/output"
	"github.com/wesleyorama2/perfgate/internal/runner"
	"github.com/wesleyorama2/perfgate/internal/stats"
)

func (a *app) runCmd() *cobra.Command {
	var (
		scenario   string
		url        string
		locustFile string
		locustBin  string
		resultsDir string
		schema     string
		limits     thresholdFlags
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run Locust scenarios and gate each one",
		Long: `Runs an external Locust binary headless through a suite of scenarios,
pausing between them, then analyzes the newest stats file of every scenario
and writes performance_summary_<timestamp>.json into the results directory.

Built-in suites: all (normal_load, stress_load, spike_load, endurance_load),
quick (smoke_test) and stress (stress_test). A single scenario name runs
that scenario alone.

Examples:
  perfgate run --scenario quick --url http://localhost:8080
  perfgate run --locust-file locustfile.py --results-dir out`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.resolveConfig()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("url") {
				cfg.Target.Host = url
			}
			if flags.Changed("locust-file") {
				cfg.Runner.LocustFile = locustFile
			}
			if flags.Changed("locust") {
				cfg.Runner.LocustBinary = locustBin
			}
			if flags.Changed("results-dir") {
				cfg.Runner.ResultsDir = resultsDir
			}
			if flags.Changed("schema") {
				cfg.Analysis.Schema = schema
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := limits.apply(cmd, cfg); err != nil {
				return err
			}

			source, err := stats.ParseErrorRateSource(cfg.Analysis.Schema)
			if err != nil {
				return usageError(err)
			}

			r, err := runner.New(runner.Options{
				Runner:     cfg.Runner,
				Target:     cfg.Target,
				Thresholds: cfg.ThresholdSet(),
				Schema:     source,
				Logger:     a.log,
			})
			if err != nil {
				return usageError(err)
			}
			if _, err := r.Suite(scenario); err != nil {
				return usageError(err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := r.RunSuite(ctx, scenario)
			if err != nil {
				return err
			}
			a.printSummary(summary)
			if !summary.Passed() {
				return errBreach
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&scenario, "scenario", "s", "all", "Suite or scenario to run")
	flags.StringVar(&url, "url", "", "Target base URL (default "+config.DefaultHost+")")
	flags.StringVarP(&locustFile, "locust-file", "f", "", "Locust file (default "+config.DefaultLocustFile+")")
	flags.StringVar(&locustBin, "locust", "", "Locust binary (default "+config.DefaultLocustBinary+")")
	flags.StringVar(&resultsDir, "results-dir", "", "Directory for Locust output (default "+config.DefaultResultsDir+")")
	flags.StringVar(&schema, "schema", "", "Error rate source: auto, counts or failure-rate")
	limits.register(cmd)
	return cmd
}

func (a *app) printSummary(s *runner.Summary) {
	names := make([]string, 0, len(s.TestResults))
	for name := range s.TestResults {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(a.stdout, "PERFORMANCE TEST SUMMARY")
	fmt.Fprintf(a.stdout, "Timestamp: %s\n", s.Timestamp)
	fmt.Fprintf(a.stdout, "Base URL: %s\n", s.BaseURL)
	fmt.Fprintf(a.stdout, "Total Tests: %d\n", s.Summary.TotalTests)
	fmt.Fprintf(a.stdout, "Passed: %d\n", s.Summary.PassedTests)
	fmt.Fprintf(a.stdout, "Failed: %d\n", s.Summary.FailedTests)
	for _, name := range names {
		gate := "not analyzed"
		if ok, analyzed := s.ThresholdResults[name]; analyzed {
			gate = "thresholds met"
			if !ok {
				gate = "thresholds breached"
			}
		}
		status := "completed"
		if !s.TestResults[name] {
			status = "failed"
		}
		fmt.Fprintf(a.stdout, "  - %s: %s, %s\n", name, status, gate)
	}
	fmt.Fprintln(a.stdout, output.SchemeFor(!a.noColor).Verdict(s.Passed()))
}
