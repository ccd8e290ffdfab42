package loadgen

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not currently running.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is executing a task.
	VUStateRunning
	// VUStateStopping indicates the VU has been requested to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is a single simulated user running a Journey.
//
// The first iteration runs the journey's OnStart; every iteration after
// that picks one weighted task, runs it, then waits for a random time in
// the journey's wait range.
type VirtualUser struct {
	ID int

	Journey Journey
	Session *Session

	picker *picker

	state     atomic.Int32
	started   bool
	iteration atomic.Int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewVirtualUser creates a VU that runs journey through session.
func NewVirtualUser(id int, journey Journey, session *Session) (*VirtualUser, error) {
	p, err := newPicker(journey.Tasks())
	if err != nil {
		return nil, fmt.Errorf("journey %s: %w", journey.Name(), err)
	}
	return &VirtualUser{
		ID:      id,
		Journey: journey,
		Session: session,
		picker:  p,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of iterations started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// RunIteration runs OnStart on the first call and one task on every call,
// followed by the wait time. Task errors are returned; the requests they
// made have already been recorded.
func (vu *VirtualUser) RunIteration(ctx context.Context) error {
	currentState := vu.GetState()
	if currentState == VUStateStopping || currentState == VUStateStopped {
		return fmt.Errorf("VU %d is stopping or stopped", vu.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))
	vu.iteration.Add(1)
	defer vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))

	var err error
	if !vu.started {
		vu.started = true
		if err = vu.Journey.OnStart(ctx, vu.Session); err != nil {
			err = fmt.Errorf("on start: %w", err)
		}
	} else {
		task := vu.picker.pick(vu.Session.Rand())
		if err = task.Run(ctx, vu.Session); err != nil {
			err = fmt.Errorf("task %s: %w", task.Name, err)
		}
	}

	min, max := vu.Journey.Wait()
	vu.wait(ctx, between(vu.Session.Rand(), min, max))
	return err
}

// wait sleeps for d or until the VU is stopped.
func (vu *VirtualUser) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-vu.stopCh:
	case <-timer.C:
	}
}

// RequestStop signals the VU to stop after its current task.
func (vu *VirtualUser) RequestStop() {
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
// Called by the scheduler when the VU goroutine exits.
func (vu *VirtualUser) MarkStopped() {
	vu.RequestStop()
	vu.state.Store(int32(VUStateStopped))
	select {
	case <-vu.doneCh:
	default:
		close(vu.doneCh)
	}
}
