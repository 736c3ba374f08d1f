package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	applogger "SigPull/pkg/logger"
)

// Supervisor keeps a long-running adapter alive. When run returns (with or
// without an error) before Stop, it is restarted after an exponential backoff.
// The backoff resets once the adapter has stayed up for ResetAfter.
type Supervisor struct {
	name       string
	run        func(ctx context.Context) error
	log        *applogger.Logger
	registry   *Registry
	errs       ErrorSink
	BackoffMin time.Duration
	BackoffMax time.Duration
	ResetAfter time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSupervisor(name string, run func(ctx context.Context) error, lgr *applogger.Logger, reg *Registry, errs ErrorSink) *Supervisor {
	if lgr == nil {
		lgr = applogger.Nop()
	}
	return &Supervisor{
		name:       name,
		run:        run,
		log:        lgr.With(name),
		registry:   reg,
		errs:       errs,
		BackoffMin: time.Second,
		BackoffMax: 30 * time.Second,
		ResetAfter: time.Minute,
	}
}

func (s *Supervisor) Name() string { return s.name }

func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.registry.update(s.name, func(st *Status) { st.State = StateRunning })
	go s.loop(ctx, s.done)
}

func (s *Supervisor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		started := time.Now()
		err := s.safe(ctx)
		if ctx.Err() != nil {
			return
		}

		if time.Since(started) >= s.ResetAfter {
			attempt = 0
		}
		attempt++
		delay := Backoff(s.BackoffMin, s.BackoffMax, attempt)

		s.registry.update(s.name, func(st *Status) {
			st.Failures++
			st.LastRun = started
			if err != nil {
				st.LastError = err.Error()
			}
		})
		if s.errs != nil {
			s.errs.RecordError(s.name)
		}
		s.log.Warn("adapter exited, restarting",
			applogger.Error(err),
			applogger.Int("attempt", attempt),
			applogger.Duration("backoff_ms", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		s.registry.update(s.name, func(st *Status) { st.Cycles++ })
	}
}

var errAdapterPanic = errors.New("adapter panic")

func (s *Supervisor) safe(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("adapter panic", applogger.Any("panic", r))
			err = errAdapterPanic
		}
	}()
	return s.run(ctx)
}

// Stop cancels the adapter and waits for it to return.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.registry.update(s.name, func(st *Status) { st.State = StateStopped })
}
