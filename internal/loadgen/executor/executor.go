// Package executor provides the user-count strategies of a load run.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/wesleyorama2/perfgate/internal/loadgen"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantVUs ramps to a fixed number of users at a spawn rate
	// and holds them until the run time is over.
	TypeConstantVUs Type = "constant-vus"

	// TypeRampingVUs moves the user count linearly through stages.
	TypeRampingVUs Type = "ramping-vus"
)

// DefaultGracefulStop bounds how long users get to finish their task.
const DefaultGracefulStop = 30 * time.Second

// Executor defines how many users run over time.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Run blocks until the run is over or ctx is cancelled.
	Run(ctx context.Context, scheduler *loadgen.Scheduler) error

	// Progress returns current progress (0.0 to 1.0).
	Progress() float64

	// Stats returns a point-in-time view of the executor.
	Stats() Stats
}

// Config contains configuration for an executor.
type Config struct {
	Type Type

	// constant-vus
	Users     int
	SpawnRate float64 // users per second
	Duration  time.Duration

	// ramping-vus
	Stages []Stage

	GracefulStop time.Duration
}

// Stage is one leg of a ramping run: move to Target users over Duration.
type Stage struct {
	Duration time.Duration
	Target   int
}

// Stats contains executor statistics.
type Stats struct {
	Elapsed       time.Duration
	TotalDuration time.Duration

	ActiveUsers int
	TargetUsers int

	// CurrentStage is 1-indexed; zero for executors without stages.
	CurrentStage int
	TotalStages  int
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	switch c.Type {
	case TypeConstantVUs:
		if c.Users <= 0 {
			return &ValidationError{Field: "users", Message: "users must be > 0"}
		}
		if c.SpawnRate <= 0 {
			return &ValidationError{Field: "spawn_rate", Message: "spawn rate must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}

	case TypeRampingVUs:
		if len(c.Stages) == 0 {
			return &ValidationError{Field: "stages", Message: "at least one stage is required"}
		}
		for i, st := range c.Stages {
			if st.Duration <= 0 {
				return &ValidationError{Field: fmt.Sprintf("stages[%d].duration", i), Message: "duration must be > 0"}
			}
			if st.Target < 0 {
				return &ValidationError{Field: fmt.Sprintf("stages[%d].target", i), Message: "target must be >= 0"}
			}
		}

	case "":
		return &ValidationError{Field: "type", Message: "executor type is required"}

	default:
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	return nil
}

// TotalDuration calculates the total duration for this executor.
func (c *Config) TotalDuration() time.Duration {
	switch c.Type {
	case TypeConstantVUs:
		return c.Duration
	case TypeRampingVUs:
		var total time.Duration
		for _, stage := range c.Stages {
			total += stage.Duration
		}
		return total
	default:
		return 0
	}
}

func (c *Config) gracefulStop() time.Duration {
	if c.GracefulStop > 0 {
		return c.GracefulStop
	}
	return DefaultGracefulStop
}

// New creates the executor for cfg.
func New(cfg Config) (Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Type == TypeConstantVUs {
		return &ConstantVUs{config: cfg}, nil
	}
	return &RampingVUs{config: cfg}, nil
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}
