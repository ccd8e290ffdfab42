package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/wesleyorama2/perfgate/internal/journey"
	"github.com/wesleyorama2/perfgate/internal/stats"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks the configuration after defaults are applied.
//
// Returns nil if valid, or a *ValidationErrors containing every problem.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateTarget(&c.Target, errs)

	if err := c.ThresholdSet().Check(); err != nil {
		errs.Add("thresholds", err.Error())
	}

	if _, err := stats.ParseErrorRateSource(c.Analysis.Schema); err != nil {
		errs.Add("analysis.schema", err.Error())
	}

	validateLoad(&c.Load, errs)
	validateRunner(&c.Runner, errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateTarget(t *Target, errs *ValidationErrors) {
	u, err := url.Parse(t.Host)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs.Add("target.host", fmt.Sprintf("invalid URL: %q", t.Host))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("target.host", fmt.Sprintf("unsupported scheme: %s", u.Scheme))
	}

	if t.ReadyPath != "" && !strings.HasPrefix(t.ReadyPath, "/") {
		errs.Add("target.ready_path", "must start with /")
	}
	if t.ReadyTimeout < 0 {
		errs.Add("target.ready_timeout", "cannot be negative")
	}
}

func validateLoad(l *Load, errs *ValidationErrors) {
	if _, err := journey.Lookup(l.Journey); err != nil {
		errs.Add("load.journey", err.Error())
	}

	if l.Users <= 0 {
		errs.Add("load.users", "users must be greater than 0")
	}
	if l.SpawnRate <= 0 {
		errs.Add("load.spawn_rate", "spawn_rate must be greater than 0")
	}
	if l.RunTime <= 0 && len(l.Stages) == 0 {
		errs.Add("load.run_time", "run_time must be greater than 0")
	}
	if l.RequestTimeout < 0 {
		errs.Add("load.request_timeout", "cannot be negative")
	}

	for i, stage := range l.Stages {
		validateStage(fmt.Sprintf("load.stages[%d]", i), &stage, errs)
	}
}

// validateStage validates a single stage configuration.
func validateStage(prefix string, stage *Stage, errs *ValidationErrors) {
	if stage.Duration <= 0 {
		errs.Add(prefix+".duration", "duration must be greater than 0")
	}
	if stage.Target < 0 {
		errs.Add(prefix+".target", "target cannot be negative")
	}
}

func validateRunner(r *Runner, errs *ValidationErrors) {
	if r.LocustBinary == "" {
		errs.Add("runner.locust_binary", "locust_binary is required")
	}
	if r.Pause < 0 {
		errs.Add("runner.pause", "cannot be negative")
	}
	if r.Timeout <= 0 {
		errs.Add("runner.timeout", "timeout must be greater than 0")
	}

	seen := make(map[string]bool, len(r.Scenarios))
	for i, sc := range r.Scenarios {
		prefix := fmt.Sprintf("runner.scenarios[%d]", i)
		if sc.Name == "" {
			errs.Add(prefix+".name", "name is required")
		} else if seen[sc.Name] {
			errs.Add(prefix+".name", fmt.Sprintf("duplicate scenario: %s", sc.Name))
		}
		seen[sc.Name] = true

		if sc.Users <= 0 {
			errs.Add(prefix+".users", "users must be greater than 0")
		}
		if sc.SpawnRate <= 0 {
			errs.Add(prefix+".spawn_rate", "spawn_rate must be greater than 0")
		}
		if sc.RunTime <= 0 {
			errs.Add(prefix+".run_time", "run_time must be greater than 0")
		}
	}

	suites := make([]string, 0, len(r.Suites))
	for suite := range r.Suites {
		suites = append(suites, suite)
	}
	sort.Strings(suites)

	for _, suite := range suites {
		for i, name := range r.Suites[suite] {
			if !seen[name] {
				errs.Add(fmt.Sprintf("runner.suites.%s[%d]", suite, i), fmt.Sprintf("scenario not found: %s", name))
			}
		}
	}
}
