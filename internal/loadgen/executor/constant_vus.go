package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/perfgate/internal/loadgen"
)

// ConstantVUs starts Users users at SpawnRate users per second and keeps
// them running until Duration, counted from the first spawn, is over.
type ConstantVUs struct {
	config Config

	mu        sync.RWMutex
	startTime time.Time
	running   atomic.Bool
	done      atomic.Bool
	active    atomic.Int32
}

// NewConstantVUs creates a constant VUs executor.
func NewConstantVUs(cfg Config) (*ConstantVUs, error) {
	cfg.Type = TypeConstantVUs
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ConstantVUs{config: cfg}, nil
}

// Type returns the executor type.
func (e *ConstantVUs) Type() Type {
	return TypeConstantVUs
}

// Run starts the executor and blocks until completion.
func (e *ConstantVUs) Run(ctx context.Context, scheduler *loadgen.Scheduler) error {
	e.mu.Lock()
	e.startTime = time.Now()
	e.mu.Unlock()
	e.running.Store(true)
	defer func() {
		e.running.Store(false)
		e.done.Store(true)
	}()

	runCtx, cancel := context.WithTimeout(ctx, e.config.Duration)
	defer cancel()

	e.spawn(runCtx, scheduler)
	<-runCtx.Done()

	scheduler.Shutdown(e.config.gracefulStop())
	e.active.Store(0)

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// spawn starts users one at a time at the spawn rate.
func (e *ConstantVUs) spawn(ctx context.Context, scheduler *loadgen.Scheduler) {
	interval := time.Duration(float64(time.Second) / e.config.SpawnRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < e.config.Users; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
		scheduler.Start(ctx)
		e.active.Add(1)
	}
}

// Progress returns current progress (0.0 to 1.0).
func (e *ConstantVUs) Progress() float64 {
	if e.done.Load() {
		return 1.0
	}
	if !e.running.Load() {
		return 0.0
	}
	return progress(e.elapsed(), e.config.Duration)
}

// Stats returns executor statistics.
func (e *ConstantVUs) Stats() Stats {
	return Stats{
		Elapsed:       e.elapsed(),
		TotalDuration: e.config.Duration,
		ActiveUsers:   int(e.active.Load()),
		TargetUsers:   e.config.Users,
	}
}

func (e *ConstantVUs) elapsed() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.startTime.IsZero() {
		return 0
	}
	return time.Since(e.startTime)
}

func progress(elapsed, total time.Duration) float64 {
	if total <= 0 {
		return 1.0
	}
	p := float64(elapsed) / float64(total)
	if p > 1.0 {
		p = 1.0
	}
	return p
}

var _ Executor = (*ConstantVUs)(nil)
