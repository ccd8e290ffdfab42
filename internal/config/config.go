// Package config loads perfgate settings from perfgate.yaml, PERFGATE_*
// environment variables and .env files.
package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/perfgate/internal/threshold"
)

// Config is the complete run configuration.
type Config struct {
	Target     Target              `yaml:"target"`
	Thresholds threshold.Overrides `yaml:"thresholds"`
	Analysis   Analysis            `yaml:"analysis"`
	Load       Load                `yaml:"load"`
	Runner     Runner              `yaml:"runner"`
}

// Target describes the system under test.
type Target struct {
	Host string `yaml:"host"`

	// ReadyPath is polled before a load run starts
	ReadyPath    string   `yaml:"ready_path,omitempty"`
	ReadyTimeout Duration `yaml:"ready_timeout,omitempty"`
}

// Analysis configures the analyze command.
type Analysis struct {
	// Schema is the error rate source: auto, counts or failure-rate
	Schema    string `yaml:"schema,omitempty"`
	OutputDir string `yaml:"output_dir,omitempty"`
	JUnit     bool   `yaml:"junit,omitempty"`
}

// Load configures the built-in load generator.
type Load struct {
	Journey        string   `yaml:"journey,omitempty"`
	Users          int      `yaml:"users,omitempty"`
	SpawnRate      float64  `yaml:"spawn_rate,omitempty"`
	RunTime        Duration `yaml:"run_time,omitempty"`
	RequestTimeout Duration `yaml:"request_timeout,omitempty"`
	CSVPrefix      string   `yaml:"csv_prefix,omitempty"`

	// Stages switches the run from a spawn-rate ramp to linear stages
	Stages []Stage `yaml:"stages,omitempty"`
}

// Stage is one leg of a ramping run: reach Target users over Duration.
type Stage struct {
	Duration Duration `yaml:"duration"`
	Target   int      `yaml:"target"`
}

// Runner configures orchestration of an external Locust binary.
type Runner struct {
	LocustBinary string   `yaml:"locust_binary,omitempty"`
	LocustFile   string   `yaml:"locust_file,omitempty"`
	ResultsDir   string   `yaml:"results_dir,omitempty"`
	Pause        Duration `yaml:"pause,omitempty"`
	Timeout      Duration `yaml:"timeout,omitempty"`

	Scenarios []Scenario          `yaml:"scenarios,omitempty"`
	Suites    map[string][]string `yaml:"suites,omitempty"`
}

// Scenario is one named Locust run.
type Scenario struct {
	Name      string   `yaml:"name"`
	Users     int      `yaml:"users"`
	SpawnRate float64  `yaml:"spawn_rate"`
	RunTime   Duration `yaml:"run_time"`
}

// Scenario returns the scenario called name.
func (r Runner) Scenario(name string) (Scenario, bool) {
	for _, sc := range r.Scenarios {
		if sc.Name == name {
			return sc, true
		}
	}
	return Scenario{}, false
}

// Defaults.
const (
	DefaultHost            = "http://localhost:8080"
	DefaultJourney         = "gateway"
	DefaultUsers           = 10
	DefaultSpawnRate       = 2.0
	DefaultRunTime         = time.Minute
	DefaultRequestTimeout  = 30 * time.Second
	DefaultReadyTimeout    = 30 * time.Second
	DefaultLocustBinary    = "locust"
	DefaultLocustFile      = "locustfile.py"
	DefaultResultsDir      = "performance_results"
	DefaultPause           = 30 * time.Second
	DefaultScenarioTimeout = time.Hour
)

// DefaultScenarios returns the built-in Locust scenarios.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{Name: "normal_load", Users: 50, SpawnRate: 5, RunTime: Duration(5 * time.Minute)},
		{Name: "stress_load", Users: 200, SpawnRate: 10, RunTime: Duration(10 * time.Minute)},
		{Name: "spike_load", Users: 500, SpawnRate: 50, RunTime: Duration(2 * time.Minute)},
		{Name: "endurance_load", Users: 100, SpawnRate: 2, RunTime: Duration(30 * time.Minute)},
		{Name: "smoke_test", Users: 10, SpawnRate: 2, RunTime: Duration(time.Minute)},
		{Name: "stress_test", Users: 200, SpawnRate: 10, RunTime: Duration(10 * time.Minute)},
	}
}

// DefaultSuites returns the built-in scenario groups.
func DefaultSuites() map[string][]string {
	return map[string][]string{
		"all":    {"normal_load", "stress_load", "spike_load", "endurance_load"},
		"quick":  {"smoke_test"},
		"stress": {"stress_test"},
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Target.Host == "" {
		c.Target.Host = DefaultHost
	}
	if c.Target.ReadyTimeout == 0 {
		c.Target.ReadyTimeout = Duration(DefaultReadyTimeout)
	}

	if c.Analysis.Schema == "" {
		c.Analysis.Schema = "auto"
	}

	if c.Load.Journey == "" {
		c.Load.Journey = DefaultJourney
	}
	if c.Load.Users == 0 {
		c.Load.Users = DefaultUsers
	}
	if c.Load.SpawnRate == 0 {
		c.Load.SpawnRate = DefaultSpawnRate
	}
	if c.Load.RunTime == 0 {
		c.Load.RunTime = Duration(DefaultRunTime)
	}
	if c.Load.RequestTimeout == 0 {
		c.Load.RequestTimeout = Duration(DefaultRequestTimeout)
	}

	if c.Runner.LocustBinary == "" {
		c.Runner.LocustBinary = DefaultLocustBinary
	}
	if c.Runner.LocustFile == "" {
		c.Runner.LocustFile = DefaultLocustFile
	}
	if c.Runner.ResultsDir == "" {
		c.Runner.ResultsDir = DefaultResultsDir
	}
	if c.Runner.Pause == 0 {
		c.Runner.Pause = Duration(DefaultPause)
	}
	if c.Runner.Timeout == 0 {
		c.Runner.Timeout = Duration(DefaultScenarioTimeout)
	}
	if len(c.Runner.Scenarios) == 0 {
		c.Runner.Scenarios = DefaultScenarios()
	}
	if len(c.Runner.Suites) == 0 {
		c.Runner.Suites = DefaultSuites()
	}
}

// ThresholdSet returns the default limits with the configured overrides applied.
func (c *Config) ThresholdSet() threshold.Set {
	return threshold.Default().With(c.Thresholds)
}

// Duration is a time.Duration that reads and writes as a string such as "5m".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	if s == "" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// UnmarshalText lets Duration be read from environment variables.
func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}
