// Package poller repeatedly runs a task until it reports completion, fails,
// or exhausts its attempt budget.
//
// A Poller is configured with chained calls and then started:
//
//	p := poller.New[Status](500*time.Millisecond, 20).
//		Poll(checkJob).
//		Success(func(s Status) { ... }).
//		Failure(func(err error) { ... })
//	p.Start(ctx)
//
// Exactly one of the success or failure callbacks fires per run.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults applied when New receives a zero or negative value.
const (
	DefaultInterval  = time.Second
	DefaultThreshold = 50
)

// State is the lifecycle position of a poller run.
type State int

const (
	Idle State = iota
	Scheduled
	Running
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduled:
		return "scheduled"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further cycles will run.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

// Task is one poll cycle. done=true ends the run with result; a non-nil
// err ends it with that error.
type Task[T any] func(ctx context.Context) (done bool, result T, err error)

// Poller drives a Task on a fixed interval.
type Poller[T any] struct {
	interval  time.Duration
	threshold int
	logger    *zap.Logger

	mu         sync.Mutex
	task       Task[T]
	onSuccess  func(T)
	onFailure  func(error)
	onProgress func(attempt, threshold int, result T)

	state    State
	attempts int
	gen      uint64
	timer    *time.Timer
	ctx      context.Context
	cancel   context.CancelFunc
	run      *outcome[T]
}

type outcome[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// New creates an idle poller.
func New[T any](interval time.Duration, threshold int) *Poller[T] {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Poller[T]{
		interval:  interval,
		threshold: threshold,
		logger:    zap.NewNop(),
	}
}

// Poll sets the task to run on each cycle.
func (p *Poller[T]) Poll(task Task[T]) *Poller[T] {
	p.mu.Lock()
	p.task = task
	p.mu.Unlock()
	return p
}

// Success sets the callback fired when the task reports done.
func (p *Poller[T]) Success(fn func(result T)) *Poller[T] {
	p.mu.Lock()
	p.onSuccess = fn
	p.mu.Unlock()
	return p
}

// Failure sets the callback fired on a task error, an exhausted threshold,
// a cancelled context or Stop.
func (p *Poller[T]) Failure(fn func(err error)) *Poller[T] {
	p.mu.Lock()
	p.onFailure = fn
	p.mu.Unlock()
	return p
}

// Progress sets the callback fired after each not-done cycle that is
// followed by another one.
func (p *Poller[T]) Progress(fn func(attempt, threshold int, result T)) *Poller[T] {
	p.mu.Lock()
	p.onProgress = fn
	p.mu.Unlock()
	return p
}

// Logger attaches a logger for cycle-level debug output.
func (p *Poller[T]) Logger(l *zap.Logger) *Poller[T] {
	if l == nil {
		l = zap.NewNop()
	}
	p.mu.Lock()
	p.logger = l
	p.mu.Unlock()
	return p
}

// Interval returns the delay between cycles.
func (p *Poller[T]) Interval() time.Duration { return p.interval }

// Threshold returns the attempt budget.
func (p *Poller[T]) Threshold() int { return p.threshold }

// State returns the current lifecycle state.
func (p *Poller[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Attempts returns the number of not-done cycles in the current run.
func (p *Poller[T]) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Start resets the attempt counter and schedules the first cycle after the
// interval. Calling Start on a live run restarts its waiting period; a cycle
// already in flight is cancelled and its result discarded.
func (p *Poller[T]) Start(ctx context.Context) {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
	}
	if p.run == nil || p.state == Idle || p.state.Terminal() {
		p.run = &outcome[T]{done: make(chan struct{})}
	}
	p.gen++
	p.attempts = 0

	if p.task == nil {
		p.state = Running
		p.finishLocked(*new(T), ErrNoTask)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.ctx, p.cancel = runCtx, cancel
	p.state = Scheduled
	gen := p.gen
	context.AfterFunc(runCtx, func() { p.contextDone(runCtx, gen) })
	p.scheduleLocked(gen)
	p.logger.Debug("poller started",
		zap.Duration("interval", p.interval),
		zap.Int("threshold", p.threshold))
	p.mu.Unlock()
}

// Stop cancels the pending cycle and fails the run with ErrStopped. It is a
// no-op on an idle or finished poller.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.state == Idle || p.state.Terminal() {
		p.mu.Unlock()
		return
	}
	p.logger.Debug("poller stopped", zap.Int("attempts", p.attempts))
	p.finishLocked(*new(T), ErrStopped)
}

// Wait blocks until the current run finishes and returns its outcome.
func (p *Poller[T]) Wait(ctx context.Context) (T, error) {
	p.mu.Lock()
	run := p.run
	p.mu.Unlock()

	var zero T
	if run == nil {
		return zero, ErrNotStarted
	}
	select {
	case <-run.done:
		return run.result, run.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Run polls task until it finishes and returns its result. Cancelling ctx
// stops the poller.
func Run[T any](ctx context.Context, interval time.Duration, threshold int, task Task[T]) (T, error) {
	p := New[T](interval, threshold).Poll(task)
	p.Start(ctx)
	result, err := p.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		p.Stop()
	}
	return result, err
}

func (p *Poller[T]) scheduleLocked(gen uint64) {
	p.timer = time.AfterFunc(p.interval, func() { p.cycle(gen) })
}

func (p *Poller[T]) cycle(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.state != Scheduled {
		p.mu.Unlock()
		return
	}
	p.state = Running
	p.timer = nil
	task, ctx := p.task, p.ctx
	p.mu.Unlock()

	done, result, err := task(ctx)

	p.mu.Lock()
	if gen != p.gen || p.state != Running {
		p.mu.Unlock()
		return
	}
	switch {
	case err != nil:
		p.logger.Debug("poll task failed", zap.Error(err))
		p.finishLocked(result, err)
		return
	case done:
		p.logger.Debug("poll task done", zap.Int("attempts", p.attempts+1))
		p.finishLocked(result, nil)
		return
	}

	p.attempts++
	attempt := p.attempts
	if attempt >= p.threshold {
		p.logger.Debug("poll threshold reached", zap.Int("threshold", p.threshold))
		p.finishLocked(result, &ThresholdError{Threshold: p.threshold})
		return
	}
	progress := p.onProgress
	p.mu.Unlock()

	if progress != nil {
		progress(attempt, p.threshold, result)
	}

	p.mu.Lock()
	if gen == p.gen && p.state == Running {
		p.state = Scheduled
		p.scheduleLocked(gen)
	}
	p.mu.Unlock()
}

func (p *Poller[T]) contextDone(ctx context.Context, gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.state == Idle || p.state.Terminal() {
		p.mu.Unlock()
		return
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.finishLocked(*new(T), ctx.Err())
}

// finishLocked moves the run to its terminal state, releases p.mu and then
// fires the matching callback.
func (p *Poller[T]) finishLocked(result T, err error) {
	if err != nil {
		p.state = Failed
	} else {
		p.state = Succeeded
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	run := p.run
	run.result, run.err = result, err
	onSuccess, onFailure := p.onSuccess, p.onFailure
	p.mu.Unlock()

	close(run.done)
	if err != nil {
		if onFailure != nil {
			onFailure(err)
		}
		return
	}
	if onSuccess != nil {
		onSuccess(result)
	}
}
