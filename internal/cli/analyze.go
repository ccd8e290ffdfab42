package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/perfgate/internal/config"
	"github.com/wesleyorama2/perfgate/internal/output"
	"github.com/wesleyorama2/perfgate/internal/report"
	"github.com/wesleyorama2/perfgate/internal/stats"
	"github.com/wesleyorama2/perfgate/internal/threshold"
)

// thresholdFlags are the limit flags shared by analyze, load and thresholds.
type thresholdFlags struct {
	maxAvg      float64
	max95       float64
	maxErrRate  float64
	minRPS      float64
	assignments []string
}

func (f *thresholdFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Float64Var(&f.maxAvg, "max-avg-response-time", threshold.DefaultMaxAvgResponseTime, "Maximum average response time in ms")
	flags.Float64Var(&f.max95, "max-95-percentile", threshold.DefaultMax95Percentile, "Maximum 95th percentile in ms")
	flags.Float64Var(&f.maxErrRate, "max-error-rate", threshold.DefaultMaxErrorRate, "Maximum error rate in percent")
	flags.Float64Var(&f.minRPS, "min-rps", threshold.DefaultMinRPS, "Minimum requests per second")
	flags.StringArrayVarP(&f.assignments, "threshold", "t", nil, "Threshold override as name=value (avg, p95, error_rate, rps); repeatable")
}

// apply layers the flags the user set on top of cfg's thresholds.
func (f *thresholdFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	var o threshold.Overrides
	for _, expr := range f.assignments {
		if err := threshold.ParseAssignment(expr, &o); err != nil {
			return usageError(err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("max-avg-response-time") {
		o.MaxAvgResponseTime = &f.maxAvg
	}
	if flags.Changed("max-95-percentile") {
		o.Max95Percentile = &f.max95
	}
	if flags.Changed("max-error-rate") {
		o.MaxErrorRate = &f.maxErrRate
	}
	if flags.Changed("min-rps") {
		o.MinRPS = &f.minRPS
	}
	cfg.MergeOverrides(o)

	if err := cfg.ThresholdSet().Check(); err != nil {
		return usageError(err)
	}
	return nil
}

// analysisFlags select how a stats file is read and where reports go.
type analysisFlags struct {
	schema    string
	outputDir string
	junit     bool
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.schema, "schema", "", "Error rate source: auto, counts or failure-rate")
	flags.StringVarP(&f.outputDir, "output-dir", "o", "", "Directory for the report files (default: working directory)")
	flags.BoolVar(&f.junit, "junit", false, "Also write "+report.JUnitFileName)
}

func (f *analysisFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("schema") {
		cfg.Analysis.Schema = f.schema
	}
	if flags.Changed("output-dir") {
		cfg.Analysis.OutputDir = f.outputDir
	}
	if flags.Changed("junit") {
		cfg.Analysis.JUnit = f.junit
	}
}

func (a *app) analyzeCmd() *cobra.Command {
	var (
		limits   thresholdFlags
		analysis analysisFlags
	)

	cmd := &cobra.Command{
		Use:   "analyze <stats.csv>",
		Short: "Check a load-test stats file against the performance thresholds",
		Long: `Reads the aggregated row of a Locust stats CSV, validates it against the
thresholds and writes performance_report.txt and performance_report.json.

Exit status: 0 passed, 1 threshold breached, 2 usage or missing input,
3 malformed stats file, 4 report could not be written, 5 any other failure.

Examples:
  perfgate analyze results/normal_load_stats.csv
  perfgate analyze stats.csv --max-95-percentile 2500 --schema counts
  perfgate analyze stats.csv -t avg=1500 -t rps=20 --junit`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.resolveConfig()
			if err != nil {
				return err
			}
			analysis.apply(cmd, cfg)
			if err := limits.apply(cmd, cfg); err != nil {
				return err
			}
			return a.gate(cfg, args[0])
		},
	}

	limits.register(cmd)
	analysis.register(cmd)
	return cmd
}

// gate parses path, validates it against cfg's thresholds, emits the
// reports and prints the verdict. A breach is returned as errBreach.
func (a *app) gate(cfg *config.Config, path string) error {
	source, err := stats.ParseErrorRateSource(cfg.Analysis.Schema)
	if err != nil {
		return usageError(err)
	}

	rec, err := stats.ParseFile(path, stats.WithErrorRateSource(source))
	if err != nil {
		return err
	}

	set := cfg.ThresholdSet()
	result := threshold.NewValidator(set).Validate(rec)
	a.log.WithField("stats", path).Debugf("Validated %d checks, %d violations", len(result.Checks), len(result.Violations))

	emitter := &report.Emitter{
		Writer: report.FileWriter{Dir: cfg.Analysis.OutputDir},
		Stdout: a.stdout,
		JUnit:  cfg.Analysis.JUnit,
	}
	if _, err := emitter.Emit(rec, set, result); err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, output.SchemeFor(!a.noColor).Verdict(result.Passed()))
	if !result.Passed() {
		return errBreach
	}
	return nil
}
