package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSink struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingSink) RecordError(component string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[component]++
}

func (c *countingSink) get(component string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[component]
}

func TestBackoff(t *testing.T) {
	testCases := []struct {
		name     string
		attempt  int
		min, max time.Duration
	}{
		{name: "first attempt", attempt: 1, min: 100 * time.Millisecond, max: time.Second},
		{name: "capped", attempt: 10, min: 100 * time.Millisecond, max: time.Second},
		{name: "huge attempt", attempt: 200, min: time.Millisecond, max: 30 * time.Second},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := Backoff(tc.min, tc.max, tc.attempt)
			assert.Greater(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, tc.max)
		})
	}
}

func TestTask_ContinuesAfterErrors(t *testing.T) {
	reg := NewRegistry()
	sink := &countingSink{}
	var calls atomic.Int32

	task := NewTask("resolver", 5*time.Millisecond, func(context.Context) error {
		if calls.Add(1)%2 == 1 {
			return errors.New("store unavailable")
		}
		return nil
	}, nil, reg, sink)

	task.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() >= 4 }, time.Second, time.Millisecond)
	task.Stop()

	assert.GreaterOrEqual(t, sink.get("resolver"), 2)
	st := reg.Snapshot()
	require.Len(t, st, 1)
	assert.Equal(t, StateStopped, st[0].State)
	assert.Equal(t, "store unavailable", st[0].LastError)
}

func TestTask_StopWaitsForInflightCycle(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	var once sync.Once

	task := NewTask("emitter", time.Millisecond, func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-release
		// the cycle context is never cancelled by Stop
		assert.NoError(t, ctx.Err())
		finished.Store(true)
		return nil
	}, nil, nil, nil)

	task.Start(context.Background())
	<-started

	stopped := make(chan struct{})
	go func() {
		task.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight cycle completed")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-stopped
	assert.True(t, finished.Load())
}

func TestTask_RecoversPanic(t *testing.T) {
	reg := NewRegistry()
	task := NewTask("housekeeping", time.Hour, func(context.Context) error { panic("boom") }, nil, reg, nil)
	task.RunOnce(context.Background())

	st := reg.Snapshot()
	require.Len(t, st, 1)
	assert.Equal(t, int64(1), st[0].Failures)
}

func TestSupervisor_RestartsAdapter(t *testing.T) {
	reg := NewRegistry()
	var runs atomic.Int32

	sup := NewSupervisor("binance", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("disconnected")
		}
		<-ctx.Done()
		return nil
	}, nil, reg, nil)
	sup.BackoffMin = time.Millisecond
	sup.BackoffMax = 2 * time.Millisecond

	sup.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	sup.Stop()

	st := reg.Snapshot()
	require.Len(t, st, 1)
	assert.Equal(t, int64(2), st[0].Failures)
	assert.Equal(t, StateStopped, st[0].State)
}

func TestRegistry_Degraded(t *testing.T) {
	reg := NewRegistry()
	assert.True(t, reg.Healthy())
	reg.MarkDegraded("resolver", errors.New("missing signal store"))
	assert.False(t, reg.Healthy())
}
