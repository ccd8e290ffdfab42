package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/perfgate/internal/loadgen"
)

// controlInterval is how often RampingVUs recomputes its user target.
const controlInterval = 100 * time.Millisecond

// RampingVUs moves the user count linearly between stage targets.
//
//	stages:
//	  - duration: 30s
//	    target: 10     # 0 -> 10 users over 30s
//	  - duration: 2m
//	    target: 10     # hold 10 users
//	  - duration: 30s
//	    target: 0      # 10 -> 0 users over 30s
type RampingVUs struct {
	config Config

	mu        sync.RWMutex
	startTime time.Time
	running   atomic.Bool
	done      atomic.Bool

	active       atomic.Int32
	target       atomic.Int32
	currentStage atomic.Int32
}

// NewRampingVUs creates a ramping VUs executor.
func NewRampingVUs(cfg Config) (*RampingVUs, error) {
	cfg.Type = TypeRampingVUs
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RampingVUs{config: cfg}, nil
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return TypeRampingVUs
}

// Run starts the executor and blocks until the last stage ends.
func (e *RampingVUs) Run(ctx context.Context, scheduler *loadgen.Scheduler) error {
	e.mu.Lock()
	e.startTime = time.Now()
	e.mu.Unlock()
	e.running.Store(true)
	defer func() {
		e.running.Store(false)
		e.done.Store(true)
	}()

	runCtx, cancel := context.WithTimeout(ctx, e.config.TotalDuration())
	defer cancel()

	e.adjust(runCtx, scheduler)

	ticker := time.NewTicker(controlInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			scheduler.Shutdown(e.config.gracefulStop())
			e.active.Store(0)
			return ctx.Err()
		case <-ticker.C:
			e.adjust(runCtx, scheduler)
		}
	}
}

func (e *RampingVUs) adjust(ctx context.Context, scheduler *loadgen.Scheduler) {
	target := e.targetAt(e.elapsed())
	e.target.Store(int32(target))
	e.active.Store(int32(scheduler.Scale(ctx, target)))
}

// targetAt interpolates the user count at elapsed and records the stage.
func (e *RampingVUs) targetAt(elapsed time.Duration) int {
	var stageStart time.Duration
	prevTarget := 0

	for i, stage := range e.config.Stages {
		stageEnd := stageStart + stage.Duration

		if elapsed < stageEnd {
			e.currentStage.Store(int32(i))

			stageProgress := float64(elapsed-stageStart) / float64(stage.Duration)
			if stageProgress < 0 {
				stageProgress = 0
			}

			target := float64(prevTarget) + float64(stage.Target-prevTarget)*stageProgress
			return int(target + 0.5)
		}

		prevTarget = stage.Target
		stageStart = stageEnd
	}

	e.currentStage.Store(int32(len(e.config.Stages) - 1))
	return prevTarget
}

// Progress returns current progress (0.0 to 1.0).
func (e *RampingVUs) Progress() float64 {
	if e.done.Load() {
		return 1.0
	}
	if !e.running.Load() {
		return 0.0
	}
	return progress(e.elapsed(), e.config.TotalDuration())
}

// Stats returns executor statistics.
func (e *RampingVUs) Stats() Stats {
	return Stats{
		Elapsed:       e.elapsed(),
		TotalDuration: e.config.TotalDuration(),
		ActiveUsers:   int(e.active.Load()),
		TargetUsers:   int(e.target.Load()),
		CurrentStage:  int(e.currentStage.Load()) + 1,
		TotalStages:   len(e.config.Stages),
	}
}

func (e *RampingVUs) elapsed() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.startTime.IsZero() {
		return 0
	}
	return time.Since(e.startTime)
}

var _ Executor = (*RampingVUs)(nil)
