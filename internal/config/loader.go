package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/perfgate/internal/threshold"
	"github.com/wesleyorama2/perfgate/pkg/jsonschema"
)

// DefaultFile is read when no config file is named and it exists.
const DefaultFile = "perfgate.yaml"

// EnvPrefix prefixes every environment variable perfgate reads.
const EnvPrefix = "PERFGATE_"

//go:embed config.schema.json
var configSchemaJSON string

var configSchema = jsonschema.MustCompile("config.schema.json", configSchemaJSON)

// ErrConfigNotFound is returned when an explicitly named file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// Env holds the PERFGATE_* overrides.
type Env struct {
	ConfigFile string   `env:"CONFIG"`
	Host       string   `env:"HOST"`
	OutputDir  string   `env:"OUTPUT_DIR"`
	Schema     string   `env:"SCHEMA"`
	Journey    string   `env:"JOURNEY"`
	Users      int      `env:"USERS"`
	SpawnRate  float64  `env:"SPAWN_RATE"`
	RunTime    Duration `env:"RUN_TIME"`
	ResultsDir string   `env:"RESULTS_DIR"`
	LocustFile string   `env:"LOCUST_FILE"`

	MaxAvgResponseTime string `env:"MAX_AVG_RESPONSE_TIME"`
	Max95Percentile    string `env:"MAX_95_PERCENTILE"`
	MaxErrorRate       string `env:"MAX_ERROR_RATE"`
	MinRPS             string `env:"MIN_RPS"`
}

// ThresholdOverrides converts the threshold variables that are set.
func (e Env) ThresholdOverrides() (threshold.Overrides, error) {
	var o threshold.Overrides
	pairs := []struct {
		name, value string
	}{
		{"max_avg_response_time", e.MaxAvgResponseTime},
		{"max_95_percentile", e.Max95Percentile},
		{"max_error_rate", e.MaxErrorRate},
		{"min_rps", e.MinRPS},
	}
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		if err := threshold.ParseAssignment(p.name+"="+p.value, &o); err != nil {
			return threshold.Overrides{}, fmt.Errorf("%s%s: %w", EnvPrefix, strings.ToUpper(p.name), err)
		}
	}
	return o, nil
}

// LoadDotEnv loads variables from the given .env files (".env" when none
// are named) without overriding the process environment. Missing files
// are ignored.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

// LoadEnv reads PERFGATE_* variables from the process environment.
func LoadEnv() (Env, error) {
	return parseEnv(env.Options{Prefix: EnvPrefix})
}

// LoadEnvFrom reads PERFGATE_* variables from vars instead of the process environment.
func LoadEnvFrom(vars map[string]string) (Env, error) {
	return parseEnv(env.Options{Prefix: EnvPrefix, Environment: vars})
}

func parseEnv(opts env.Options) (Env, error) {
	e, err := env.ParseAsWithOptions[Env](opts)
	if err != nil {
		return Env{}, fmt.Errorf("invalid environment: %w", err)
	}
	return e, nil
}

// LoadFile reads the YAML file at path and applies defaults. An empty path
// reads DefaultFile when present and otherwise returns the defaults.
func LoadFile(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if explicit {
				return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return Default(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document, checks it against the config schema,
// applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	if len(bytes.TrimSpace(data)) > 0 {
		if err := configSchema.ValidateYAML(data); err != nil {
			return nil, schemaErrors(err)
		}
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overlays non-empty environment values onto c.
func (c *Config) ApplyEnv(e Env) error {
	overrides, err := e.ThresholdOverrides()
	if err != nil {
		return err
	}

	if e.Host != "" {
		c.Target.Host = e.Host
	}
	if e.OutputDir != "" {
		c.Analysis.OutputDir = e.OutputDir
	}
	if e.Schema != "" {
		c.Analysis.Schema = e.Schema
	}
	if e.Journey != "" {
		c.Load.Journey = e.Journey
	}
	if e.Users != 0 {
		c.Load.Users = e.Users
	}
	if e.SpawnRate != 0 {
		c.Load.SpawnRate = e.SpawnRate
	}
	if e.RunTime != 0 {
		c.Load.RunTime = e.RunTime
	}
	if e.ResultsDir != "" {
		c.Runner.ResultsDir = e.ResultsDir
	}
	if e.LocustFile != "" {
		c.Runner.LocustFile = e.LocustFile
	}
	c.Thresholds = mergeOverrides(c.Thresholds, overrides)
	return nil
}

// mergeOverrides returns base with every non-nil field of top applied.
func mergeOverrides(base, top threshold.Overrides) threshold.Overrides {
	if top.MaxAvgResponseTime != nil {
		base.MaxAvgResponseTime = top.MaxAvgResponseTime
	}
	if top.Max95Percentile != nil {
		base.Max95Percentile = top.Max95Percentile
	}
	if top.MaxErrorRate != nil {
		base.MaxErrorRate = top.MaxErrorRate
	}
	if top.MinRPS != nil {
		base.MinRPS = top.MinRPS
	}
	return base
}

// MergeOverrides is mergeOverrides for callers layering flags on top of c.
func (c *Config) MergeOverrides(top threshold.Overrides) {
	c.Thresholds = mergeOverrides(c.Thresholds, top)
}

// Resolve loads .env, the config file and the environment in precedence
// order. Flags are applied by the caller afterwards.
func Resolve(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	e, err := LoadEnv()
	if err != nil {
		return nil, &ValidationErrors{Errors: []*ValidationError{{Field: "environment", Message: err.Error()}}}
	}
	if path == "" {
		path = e.ConfigFile
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(e); err != nil {
		return nil, &ValidationErrors{Errors: []*ValidationError{{Field: "environment", Message: err.Error()}}}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func schemaErrors(err error) error {
	var ve jsonschema.ValidationErrors
	if !errors.As(err, &ve) {
		return &ValidationErrors{Errors: []*ValidationError{{Message: err.Error()}}}
	}

	errs := &ValidationErrors{}
	for _, e := range ve {
		errs.Add("", e.Error())
	}
	return errs
}
