package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	domsvc "SigPull/internal/domain/service"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *fixedClock { return &fixedClock{now: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSignalStore struct {
	mu       sync.Mutex
	rows     map[string]models.Signal
	order    []string
	saves    int
	insertFn func(models.Signal) error
}

func newFakeSignalStore() *fakeSignalStore {
	return &fakeSignalStore{rows: make(map[string]models.Signal)}
}

func (s *fakeSignalStore) Insert(_ context.Context, sig models.Signal) error {
	if s.insertFn != nil {
		if err := s.insertFn(sig); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[sig.ID] = sig
	s.order = append(s.order, sig.ID)
	return nil
}

func (s *fakeSignalStore) ListRecent(_ context.Context, n int) ([]models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Signal, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.rows[s.order[i]])
	}
	return out, nil
}

func (s *fakeSignalStore) SaveResult(_ context.Context, id string, u models.ResultUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.rows[id]
	if !ok {
		return domrepo.ErrSignalNotFound
	}
	if sig.Result.Terminal() {
		return domrepo.ErrAlreadyResolved
	}
	sig.Result, sig.FinalPrice = u.Result, u.FinalPrice
	s.rows[id] = sig
	s.saves++
	return nil
}

func (s *fakeSignalStore) get(id string) models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id]
}

type fakeLearnerStore struct {
	mu      sync.Mutex
	state   *models.LearnerState
	saves   int
	loadErr error
	saveErr error
}

func (s *fakeLearnerStore) Load(context.Context) (models.LearnerState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return models.LearnerState{}, false, s.loadErr
	}
	if s.state == nil {
		return models.LearnerState{}, false, nil
	}
	return s.state.Clone(), true, nil
}

func (s *fakeLearnerStore) Save(_ context.Context, st models.LearnerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	c := st.Clone()
	s.state = &c
	s.saves++
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (b *recordingBus) Publish(_ context.Context, e models.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, e)
	return nil
}

func (b *recordingBus) ofType(t models.EventType) []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Event
	for _, e := range b.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type stubDetector struct {
	report domsvc.ManipulationReport
	err    error
}

func (d stubDetector) Analyze(context.Context, []models.Tick, []models.Bar) (domsvc.ManipulationReport, error) {
	return d.report, d.err
}

type stepSimulator struct{ calls int }

func (s *stepSimulator) Tick(symbol string, now time.Time) models.Tick {
	s.calls++
	return models.Tick{Symbol: symbol, Price: 1 + float64(s.calls)/1000, Qty: 1, Time: now.Unix() + int64(s.calls), Source: "synthetic"}
}

type countingMetrics struct {
	domrepo.NopMetrics
	mu     sync.Mutex
	errors map[string]int
}

func (m *countingMetrics) RecordError(c string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[c]++
}

var errBoom = errors.New("boom")

// trendBars builds n one-second bars climbing by step from p. Each bar opens
// at the previous close.
func trendBars(n int, p, step float64) []models.Bar {
	out := make([]models.Bar, n)
	open := p
	for i := range out {
		close := open + step
		out[i] = models.Bar{Time: int64(1000 + i), Open: open, Close: close, High: max(open, close), Low: min(open, close), Volume: 1}
		open = close
	}
	return out
}

func loadBars(a *BarAggregator, symbol string, bars []models.Bar) {
	for _, b := range bars {
		a.AppendTick(symbol, b.Open, 0, b.Time)
		a.AppendTick(symbol, b.High, 0, b.Time)
		a.AppendTick(symbol, b.Low, 0, b.Time)
		a.AppendTick(symbol, b.Close, b.Volume, b.Time)
	}
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
