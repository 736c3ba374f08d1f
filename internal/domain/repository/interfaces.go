package repository

import (
	"context"
	"errors"

	"SigPull/internal/domain/models"
)

var (
	// ErrAlreadyResolved is returned when a signal already holds a terminal result.
	ErrAlreadyResolved = errors.New("signal already resolved")
	ErrSignalNotFound  = errors.New("signal not found")
)

// TickStream is a live trade feed.
type TickStream interface {
	Name() string
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	// Read delivers ticks until the stream fails or ctx ends. The error channel
	// yields at most one error.
	Read(ctx context.Context) (<-chan models.Tick, <-chan error)
	Close() error
	IsConnected() bool
}

// TickPublisher forwards ticks onto a bus instead of applying them locally.
type TickPublisher interface {
	Publish(ctx context.Context, t models.Tick) error
	Close() error
}

// TickArchive stores raw ticks for later analysis.
type TickArchive interface {
	StoreBatch(ctx context.Context, ticks []models.Tick) error
}

// BarReader is the read-only view of the bar store.
type BarReader interface {
	// Snapshot returns a copy of the most recent n bars (all when n <= 0), oldest first.
	Snapshot(symbol string, n int) []models.Bar
	Last(symbol string) (models.Bar, bool)
	Len(symbol string) int
	Symbols() []string
}

// SignalStore persists signals and their one-time result.
type SignalStore interface {
	Insert(ctx context.Context, s models.Signal) error
	// ListRecent returns up to n signals, newest first.
	ListRecent(ctx context.Context, n int) ([]models.Signal, error)
	// SaveResult sets the result of a pending signal. It returns ErrAlreadyResolved
	// if another writer got there first, leaving the stored result untouched.
	SaveResult(ctx context.Context, id string, u models.ResultUpdate) error
}

// LearnerStore holds the single learner state record.
type LearnerStore interface {
	// Load returns the stored state, or found=false when none exists yet.
	Load(ctx context.Context) (state models.LearnerState, found bool, err error)
	Save(ctx context.Context, state models.LearnerState) error
}

// Broadcaster publishes events to connected clients and downstream consumers.
type Broadcaster interface {
	Publish(ctx context.Context, e models.Event) error
}

type Metrics interface {
	RecordTick(symbol, source string, price float64)
	RecordBars(symbol string, n int)
	RecordSignal(symbol, direction string, confidence int)
	RecordResult(symbol, result string)
	RecordLearnerWeights(weights map[string]float64)
	RecordError(component string)
	RecordLatency(op string, seconds float64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordTick(string, string, float64)      {}
func (NopMetrics) RecordBars(string, int)                  {}
func (NopMetrics) RecordSignal(string, string, int)        {}
func (NopMetrics) RecordResult(string, string)             {}
func (NopMetrics) RecordLearnerWeights(map[string]float64) {}
func (NopMetrics) RecordError(string)                      {}
func (NopMetrics) RecordLatency(string, float64)           {}
