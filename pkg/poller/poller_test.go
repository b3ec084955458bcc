package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const tick = 2 * time.Millisecond

// recorder captures terminal callbacks so tests can assert exactly-once delivery.
type recorder struct {
	mu        sync.Mutex
	successes []string
	failures  []error
	progress  [][2]int
	done      chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{}, 4)}
}

func (r *recorder) attach(p *Poller[string]) *Poller[string] {
	return p.
		Success(func(v string) {
			r.mu.Lock()
			r.successes = append(r.successes, v)
			r.mu.Unlock()
			r.done <- struct{}{}
		}).
		Failure(func(err error) {
			r.mu.Lock()
			r.failures = append(r.failures, err)
			r.mu.Unlock()
			r.done <- struct{}{}
		}).
		Progress(func(attempt, threshold int, _ string) {
			r.mu.Lock()
			r.progress = append(r.progress, [2]int{attempt, threshold})
			r.mu.Unlock()
		})
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal callback")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	p := New[string](0, 0)
	assert.Equal(t, DefaultInterval, p.Interval())
	assert.Equal(t, DefaultThreshold, p.Threshold())
	assert.Equal(t, Idle, p.State())

	p = New[string](-time.Second, -3)
	assert.Equal(t, 1000*time.Millisecond, p.Interval())
	assert.Equal(t, 50, p.Threshold())
}

func TestPollerSucceedsOnSecondCall(t *testing.T) {
	var calls atomic.Int32
	rec := newRecorder()
	p := rec.attach(New[string](tick, 10).Poll(func(ctx context.Context) (bool, string, error) {
		n := calls.Add(1)
		if n == 1 {
			return false, "first", nil
		}
		return true, "second", nil
	}))

	p.Start(context.Background())
	rec.wait(t)

	result, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", result)

	time.Sleep(5 * tick)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"second"}, rec.successes)
	assert.Empty(t, rec.failures)
	assert.Equal(t, [][2]int{{1, 10}}, rec.progress)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, Succeeded, p.State())
}

func TestPollerThresholdExceeded(t *testing.T) {
	var calls atomic.Int32
	rec := newRecorder()
	p := rec.attach(New[string](tick, 3).Poll(func(ctx context.Context) (bool, string, error) {
		calls.Add(1)
		return false, "pending", nil
	}))

	p.Start(context.Background())
	rec.wait(t)

	time.Sleep(5 * tick)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.failures, 1)
	assert.Empty(t, rec.successes)
	assert.Equal(t, "Exceed polling threshold 3", rec.failures[0].Error())
	assert.ErrorIs(t, rec.failures[0], ErrThresholdExceeded)

	var te *ThresholdError
	require.ErrorAs(t, rec.failures[0], &te)
	assert.Equal(t, 3, te.Threshold)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}}, rec.progress)
	assert.Equal(t, Failed, p.State())
}

func TestPollerForwardsTaskError(t *testing.T) {
	dummy := errors.New("Dummy error")
	rec := newRecorder()
	p := rec.attach(New[string](tick, 5).Poll(func(ctx context.Context) (bool, string, error) {
		return false, "", dummy
	}))

	p.Start(context.Background())
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.failures, 1)
	assert.Same(t, dummy, rec.failures[0])
	assert.Equal(t, "Dummy error", rec.failures[0].Error())
	assert.Empty(t, rec.successes)
}

func TestPollerStopCancelsPendingCycle(t *testing.T) {
	var calls atomic.Int32
	rec := newRecorder()
	p := rec.attach(New[string](50*time.Millisecond, 5).Poll(func(ctx context.Context) (bool, string, error) {
		calls.Add(1)
		return true, "late", nil
	}))

	p.Start(context.Background())
	assert.Equal(t, Scheduled, p.State())
	p.Stop()
	rec.wait(t)

	time.Sleep(100 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, int32(0), calls.Load())
	require.Len(t, rec.failures, 1)
	assert.ErrorIs(t, rec.failures[0], ErrStopped)
	assert.Empty(t, rec.successes)

	_, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestPollerStopDuringRunningTaskDiscardsResult(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	rec := newRecorder()
	p := rec.attach(New[string](tick, 5).Poll(func(ctx context.Context) (bool, string, error) {
		close(entered)
		<-release
		return true, "ignored", nil
	}))

	p.Start(context.Background())
	<-entered
	p.Stop()
	close(release)
	rec.wait(t)

	time.Sleep(5 * tick)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.failures, 1)
	assert.ErrorIs(t, rec.failures[0], ErrStopped)
	assert.Empty(t, rec.successes)
}

func TestPollerStopIsNoopWhenIdleOrFinished(t *testing.T) {
	rec := newRecorder()
	p := rec.attach(New[string](tick, 5).Poll(func(ctx context.Context) (bool, string, error) {
		return true, "ok", nil
	}))

	p.Stop()
	assert.Equal(t, Idle, p.State())

	p.Start(context.Background())
	rec.wait(t)
	p.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"ok"}, rec.successes)
	assert.Empty(t, rec.failures)
}

func TestPollerRestartResetsAttempts(t *testing.T) {
	var calls atomic.Int32
	rec := newRecorder()
	p := rec.attach(New[string](tick, 2).Poll(func(ctx context.Context) (bool, string, error) {
		calls.Add(1)
		return false, "", nil
	}))

	p.Start(context.Background())
	rec.wait(t)
	assert.Equal(t, int32(2), calls.Load())

	p.Start(context.Background())
	rec.wait(t)
	assert.Equal(t, int32(4), calls.Load())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.failures, 2)
	for _, err := range rec.failures {
		assert.EqualError(t, err, "Exceed polling threshold 2")
	}
}

func TestPollerStartOnLiveRunRestartsInterval(t *testing.T) {
	const interval = 40 * time.Millisecond
	var calls atomic.Int32
	rec := newRecorder()
	p := rec.attach(New[string](interval, 5).Poll(func(ctx context.Context) (bool, string, error) {
		calls.Add(1)
		return true, "ok", nil
	}))

	p.Start(context.Background())
	time.Sleep(interval / 2)
	require.Equal(t, Scheduled, p.State())
	restarted := time.Now()
	p.Start(context.Background())

	rec.wait(t)
	assert.GreaterOrEqual(t, time.Since(restarted), interval, "the first cycle waits a full interval after the restart")

	v, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	time.Sleep(2 * interval)
	assert.Equal(t, int32(1), calls.Load(), "the replaced cycle never runs")
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"ok"}, rec.successes)
	assert.Empty(t, rec.failures)
}

func TestPollerWithoutTaskFails(t *testing.T) {
	rec := newRecorder()
	p := rec.attach(New[string](tick, 2))
	p.Start(context.Background())
	rec.wait(t)

	_, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNoTask)
}

func TestPollerContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()
	p := rec.attach(New[string](time.Hour, 2).Poll(func(ctx context.Context) (bool, string, error) {
		return true, "never", nil
	}))

	p.Start(ctx)
	cancel()
	rec.wait(t)

	_, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Failed, p.State())
}

func TestWaitBeforeStart(t *testing.T) {
	_, err := New[int](tick, 1).Wait(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestRun(t *testing.T) {
	var calls atomic.Int32
	got, err := Run(context.Background(), tick, 10, func(ctx context.Context) (bool, int, error) {
		n := calls.Add(1)
		return n == 3, int(n), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = Run(ctx, tick, 1000, func(ctx context.Context) (bool, int, error) {
		return false, 0, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "scheduled", Scheduled.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, Failed.Terminal())
	assert.False(t, Running.Terminal())
}
