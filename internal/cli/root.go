package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/perfgate/internal/config"
)

var version = "0.1.0"

// app holds the state shared by every command of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer
	log    *logrus.Logger

	configPath string
	verbose    bool
	noColor    bool
}

func newApp(stdout, stderr io.Writer) *app {
	log := logrus.New()
	log.SetOutput(stderr)
	log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableQuote:     true,
	})
	return &app{stdout: stdout, stderr: stderr, log: log}
}

// rootCmd builds the command tree.
func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "perfgate",
		Short:   "Performance gate for load-test results",
		Version: version,
		Long: `perfgate turns the stats table of a load run into a pass/fail verdict.

It reads the aggregated row of a Locust-style stats CSV, checks it against
response-time, error-rate and throughput limits, writes a text and a JSON
report, and exits non-zero when a limit is breached. It can also drive the
load itself, or orchestrate an external Locust binary through a suite of
scenarios.`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Config file (default perfgate.yaml when present)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(a.analyzeCmd())
	root.AddCommand(a.loadCmd())
	root.AddCommand(a.runCmd())
	root.AddCommand(a.thresholdsCmd())
	return root
}

// setup loads .env and configures logging from LOG_LEVEL and --verbose.
func (a *app) setup() error {
	if err := config.LoadDotEnv(); err != nil {
		return usageError(err)
	}

	level := logrus.InfoLevel
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		parsed, err := logrus.ParseLevel(s)
		if err != nil {
			return usageError(fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err))
		}
		level = parsed
	}
	if a.verbose {
		level = logrus.DebugLevel
	}
	a.log.SetLevel(level)
	return nil
}

// resolveConfig reads defaults, the config file and the environment.
func (a *app) resolveConfig() (*config.Config, error) {
	cfg, err := config.Resolve(a.configPath)
	if err != nil {
		return nil, err
	}
	a.log.WithField("config", a.configPath).Debug("Configuration resolved")
	return cfg, nil
}

func (a *app) execute(args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)

	err := root.Execute()
	code := exitCode(err)
	if err != nil && err != errBreach {
		a.log.Error(err)
	}
	return code
}

// Execute runs perfgate with the process arguments and returns the exit
// status for main.
func Execute() int {
	return newApp(os.Stdout, os.Stderr).execute(os.Args[1:])
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}
