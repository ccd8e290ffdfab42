package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/perfgate/internal/config"
	"github.com/wesleyorama2/perfgate/internal/journey"
	"github.com/wesleyorama2/perfgate/internal/loadgen"
	"github.com/wesleyorama2/perfgate/internal/loadgen/engine"
	"github.com/wesleyorama2/perfgate/internal/loadgen/executor"
	"github.com/wesleyorama2/perfgate/internal/output"
	"github.com/wesleyorama2/perfgate/internal/report"
	"github.com/wesleyorama2/perfgate/internal/runner"
)

// loadFlags mirror the load section of the config file.
type loadFlags struct {
	host           string
	journey        string
	users          int
	spawnRate      float64
	runTime        time.Duration
	stages         string
	csvPrefix      string
	requestTimeout time.Duration
	seed           int64
	analyze        bool
	quiet          bool
}

func (f *loadFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Target.Host = f.host
	}
	if flags.Changed("journey") {
		cfg.Load.Journey = f.journey
	}
	if flags.Changed("users") {
		cfg.Load.Users = f.users
	}
	if flags.Changed("spawn-rate") {
		cfg.Load.SpawnRate = f.spawnRate
	}
	if flags.Changed("run-time") {
		cfg.Load.RunTime = config.Duration(f.runTime)
	}
	if flags.Changed("csv") {
		cfg.Load.CSVPrefix = f.csvPrefix
	}
	if flags.Changed("request-timeout") {
		cfg.Load.RequestTimeout = config.Duration(f.requestTimeout)
	}
	if flags.Changed("stages") {
		stages, err := config.ParseStages(f.stages)
		if err != nil {
			return usageError(fmt.Errorf("invalid --stages: %w", err))
		}
		cfg.Load.Stages = stages
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	return nil
}

func (a *app) loadCmd() *cobra.Command {
	var (
		lf       loadFlags
		limits   thresholdFlags
		analysis analysisFlags
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Drive a journey against the target and write a Locust-compatible stats CSV",
		Long: `Runs the built-in load generator: virtual users follow a journey against
the target, ramping up at the spawn rate (or through --stages) until the run
time is over. The results are written as PREFIX_stats.csv and
PREFIX_failures.csv in the Locust layout.

With --analyze the stats file is gated right away and the exit status is
the one analyze would return.

Examples:
  perfgate load --host http://localhost:8080 --users 50 --spawn-rate 5 --run-time 5m
  perfgate load --journey shop --stages "30s:10,1m:10,10s:0" --analyze`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.resolveConfig()
			if err != nil {
				return err
			}
			if err := lf.apply(cmd, cfg); err != nil {
				return err
			}
			analysis.apply(cmd, cfg)
			if err := limits.apply(cmd, cfg); err != nil {
				return err
			}

			statsPath, err := a.runLoad(cmd.Context(), cfg, lf)
			if err != nil {
				return err
			}
			if !lf.analyze {
				return nil
			}
			return a.gate(cfg, statsPath)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&lf.host, "host", "", "Target base URL (default "+config.DefaultHost+")")
	flags.StringVarP(&lf.journey, "journey", "j", "", "Journey to run: gateway or shop")
	flags.IntVarP(&lf.users, "users", "u", 0, "Number of concurrent users")
	flags.Float64VarP(&lf.spawnRate, "spawn-rate", "r", 0, "Users started per second")
	flags.DurationVar(&lf.runTime, "run-time", 0, "Run duration, e.g. 5m")
	flags.StringVar(&lf.stages, "stages", "", `Ramping stages as duration:users, e.g. "30s:10,1m:10,10s:0"`)
	flags.StringVar(&lf.csvPrefix, "csv", "", "Output prefix for the stats files (default <results-dir>/<journey>_<timestamp>)")
	flags.DurationVar(&lf.requestTimeout, "request-timeout", 0, "Per-request timeout")
	flags.Int64Var(&lf.seed, "seed", 0, "Seed for task selection (0 uses the clock)")
	flags.BoolVar(&lf.analyze, "analyze", false, "Gate the stats file after the run")
	flags.BoolVarP(&lf.quiet, "quiet", "q", false, "Suppress live progress")
	limits.register(cmd)
	analysis.register(cmd)
	return cmd
}

// runLoad runs the load generator and writes the stats files. It returns
// the stats file path.
func (a *app) runLoad(parent context.Context, cfg *config.Config, lf loadFlags) (string, error) {
	j, err := journey.Lookup(cfg.Load.Journey)
	if err != nil {
		return "", usageError(err)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Target.ReadyPath != "" {
		client := loadgen.NewHTTPClient(loadgen.DefaultHTTPClientConfig())
		if err := runner.WaitReady(ctx, client, cfg.Target.Host, cfg.Target.ReadyPath, cfg.Target.ReadyTimeout.Std(), a.log); err != nil {
			return "", err
		}
	}

	console := output.NewConsole(output.ConsoleConfig{
		Title:   fmt.Sprintf("perfgate load: %s against %s", j.Name(), cfg.Target.Host),
		Writer:  a.stdout,
		NoColor: a.noColor,
	})

	httpCfg := loadgen.DefaultHTTPClientConfig()
	httpCfg.Timeout = cfg.Load.RequestTimeout.Std()

	engCfg := engine.Config{
		Journey:  j,
		BaseURL:  cfg.Target.Host,
		Executor: executorConfig(cfg.Load),
		HTTP:     httpCfg,
		Logger:   a.log,
		Seed:     lf.seed,
	}
	if !lf.quiet {
		engCfg.OnProgress = console.Update
		engCfg.ProgressInterval = time.Second
	}

	eng, err := engine.New(engCfg)
	if err != nil {
		return "", usageError(err)
	}

	if !lf.quiet {
		console.PrintHeader()
	}
	result, runErr := eng.Run(ctx)
	if !lf.quiet {
		console.Finish()
	}
	if runErr != nil {
		if result == nil || !errors.Is(runErr, context.Canceled) {
			return "", runErr
		}
		a.log.Warn("Load run interrupted, writing partial results")
	}

	prefix := cfg.Load.CSVPrefix
	if prefix == "" {
		prefix = filepath.Join(cfg.Runner.ResultsDir, j.Name()+"_"+result.StartTime.Format("20060102_150405"))
	}
	statsPath, err := result.WriteCSV(prefix)
	if err != nil {
		return "", &report.WriteError{Path: engine.StatsFile(prefix), Err: err}
	}

	agg := result.Aggregate()
	a.log.WithFields(logrus.Fields{
		"stats":    statsPath,
		"failures": engine.FailuresFile(prefix),
		"requests": agg.RequestCount,
	}).Info("Stats written")

	if runErr != nil {
		return "", runErr
	}
	return statsPath, nil
}

// executorConfig picks ramping stages when configured and a spawn-rate
// ramp otherwise.
func executorConfig(l config.Load) executor.Config {
	if len(l.Stages) > 0 {
		stages := make([]executor.Stage, len(l.Stages))
		for i, s := range l.Stages {
			stages[i] = executor.Stage{Duration: s.Duration.Std(), Target: s.Target}
		}
		return executor.Config{Type: executor.TypeRampingVUs, Stages: stages}
	}
	return executor.Config{
		Type:      executor.TypeConstantVUs,
		Users:     l.Users,
		SpawnRate: l.SpawnRate,
		Duration:  l.RunTime.Std(),
	}
}
