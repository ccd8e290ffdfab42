// Package loadgen drives simulated users against an HTTP target.
//
// A Journey describes what one user does: a setup step run once, a set of
// weighted tasks picked at random for every iteration and a wait range
// between iterations. VirtualUser runs a Journey; Scheduler owns the pool
// of users and the shared HTTP client. Executors in the executor package
// decide how many users run at any moment.
package loadgen

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Journey is a user flow against the target.
type Journey interface {
	// Name identifies the journey in logs and config.
	Name() string

	// OnStart runs once per user before its first task.
	OnStart(ctx context.Context, s *Session) error

	// Tasks returns the weighted tasks; the slice must not change.
	Tasks() []Task

	// Wait returns the range a user idles for between tasks.
	Wait() (min, max time.Duration)
}

// Task is one weighted unit of work.
type Task struct {
	Name   string
	Weight int
	Run    func(ctx context.Context, s *Session) error
}

// picker selects tasks proportionally to their weight.
type picker struct {
	tasks []Task
	total int
}

func newPicker(tasks []Task) (*picker, error) {
	p := &picker{tasks: tasks}
	for _, t := range tasks {
		if t.Weight < 0 {
			return nil, fmt.Errorf("task %q has negative weight %d", t.Name, t.Weight)
		}
		p.total += t.Weight
	}
	if p.total == 0 {
		return nil, fmt.Errorf("journey has no weighted tasks")
	}
	return p, nil
}

func (p *picker) pick(rng *rand.Rand) Task {
	n := rng.Intn(p.total)
	for _, t := range p.tasks {
		if n < t.Weight {
			return t
		}
		n -= t.Weight
	}
	return p.tasks[len(p.tasks)-1]
}

// between returns a uniformly random duration in [min, max].
func between(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)+1))
}
