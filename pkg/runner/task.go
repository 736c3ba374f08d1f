package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	applogger "SigPull/pkg/logger"
)

// ErrorSink receives cycle errors from tasks and supervisors.
type ErrorSink interface {
	RecordError(component string)
}

// Task runs fn on a fixed interval. Cycle errors are reported and the next
// cycle still runs. Stop prevents new cycles and waits for a running one.
type Task struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
	log      *applogger.Logger
	registry *Registry
	errs     ErrorSink
	// Immediate runs the first cycle right after Start instead of after one interval.
	Immediate bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTask(name string, interval time.Duration, fn func(ctx context.Context) error, lgr *applogger.Logger, reg *Registry, errs ErrorSink) *Task {
	if lgr == nil {
		lgr = applogger.Nop()
	}
	return &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		log:      lgr.With(name),
		registry: reg,
		errs:     errs,
	}
}

func (t *Task) Name() string { return t.name }

// Start launches the loop. Calling Start on a running task is a no-op.
func (t *Task) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	// Cycles get a context detached from ctx cancellation so Stop never
	// interrupts an in-flight cycle.
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.registry.update(t.name, func(s *Status) { s.State = StateRunning })

	go t.loop(loopCtx, context.WithoutCancel(ctx), t.done)
}

func (t *Task) loop(loopCtx, cycleCtx context.Context, done chan struct{}) {
	defer close(done)

	if t.Immediate {
		t.RunOnce(cycleCtx)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			// A stop that raced with the tick wins.
			if loopCtx.Err() != nil {
				return
			}
			t.RunOnce(cycleCtx)
		}
	}
}

// RunOnce executes a single cycle synchronously and reports its outcome.
func (t *Task) RunOnce(ctx context.Context) {
	start := time.Now()
	err := t.safe(ctx)

	t.registry.update(t.name, func(s *Status) {
		s.Cycles++
		s.LastRun = start
		if err != nil {
			s.Failures++
			s.LastError = err.Error()
		}
	})
	if err != nil {
		if t.errs != nil {
			t.errs.RecordError(t.name)
		}
		t.log.Warn("cycle failed", applogger.Error(err), applogger.Duration("took_ms", time.Since(start)))
	}
}

func (t *Task) safe(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("panic in cycle")
			t.log.Error("cycle panic", applogger.Any("panic", r))
		}
	}()
	return t.fn(ctx)
}

// Stop prevents future cycles and blocks until an in-flight cycle finishes.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	t.registry.update(t.name, func(s *Status) {
		if s.State == StateRunning {
			s.State = StateStopped
		}
	})
}
