package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	domsvc "SigPull/internal/domain/service"
	"SigPull/internal/services/features"
	"SigPull/internal/services/patterns"
	applogger "SigPull/pkg/logger"
)

// TickSimulator produces a stand-in tick for a symbol without enough history.
type TickSimulator interface {
	Tick(symbol string, now time.Time) models.Tick
}

type EmitterConfig struct {
	MinConfidence int
	Expiry        time.Duration
	// Window is how many recent 1s bars are scored.
	Window     int
	HTFSeconds int64
	// MinHistory triggers a simulated tick when fewer bars are held.
	MinHistory int
}

const manipulationBars = 120

// SignalEmitter scores every watched symbol once per cycle and publishes the
// signals that clear the confidence floor.
type SignalEmitter struct {
	cfg     EmitterConfig
	watch   *Watchlist
	bars    *BarAggregator
	learner *Learner
	manip   domsvc.ManipulationDetector
	store   domrepo.SignalStore
	bus     domrepo.Broadcaster
	sim     TickSimulator
	clock   domsvc.Clock
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewSignalEmitter(
	cfg EmitterConfig,
	watch *Watchlist,
	bars *BarAggregator,
	learner *Learner,
	manip domsvc.ManipulationDetector,
	store domrepo.SignalStore,
	bus domrepo.Broadcaster,
	sim TickSimulator,
	clock domsvc.Clock,
	metrics domrepo.Metrics,
	lgr *applogger.Logger,
) *SignalEmitter {
	if cfg.Window <= 0 {
		cfg.Window = 300
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = time.Minute
	}
	if clock == nil {
		clock = domsvc.SystemClock{}
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if lgr == nil {
		lgr = applogger.Nop()
	}
	return &SignalEmitter{
		cfg:     cfg,
		watch:   watch,
		bars:    bars,
		learner: learner,
		manip:   manip,
		store:   store,
		bus:     bus,
		sim:     sim,
		clock:   clock,
		metrics: metrics,
		log:     lgr.With("emitter"),
	}
}

// EmitCycle runs one pass over the watch list. A failing symbol does not stop
// the others; their errors are joined.
func (e *SignalEmitter) EmitCycle(ctx context.Context) error {
	start := time.Now()
	defer func() { e.metrics.RecordLatency("emit_cycle", time.Since(start).Seconds()) }()

	var errs []error
	for _, pair := range e.watch.Pairs() {
		if err := e.emit(ctx, pair); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pair.Symbol, err))
		}
	}
	return errors.Join(errs...)
}

func (e *SignalEmitter) emit(ctx context.Context, pair models.Pair) error {
	if e.sim != nil && e.bars.Len(pair.Symbol) < e.cfg.MinHistory {
		t := e.sim.Tick(pair.Symbol, e.clock.Now())
		e.bars.AppendTick(t.Symbol, t.Price, t.Qty, t.Time)
	}

	sig, ok := e.Compute(ctx, pair)
	if !ok || sig.Confidence < e.cfg.MinConfidence {
		return nil
	}

	if err := e.store.Insert(ctx, sig); err != nil {
		e.metrics.RecordError("signal_store")
		return fmt.Errorf("insert signal: %w", err)
	}
	e.metrics.RecordSignal(sig.Symbol, string(sig.Direction), sig.Confidence)

	line := fmt.Sprintf("Signal %s %s conf:%d", sig.Symbol, sig.Direction, sig.Confidence)
	e.log.Info(line, applogger.String("id", sig.ID), applogger.Symbol(sig.Symbol))
	if e.bus == nil {
		return nil
	}
	if err := e.bus.Publish(ctx, models.Event{Type: models.EventSignal, Data: sig}); err != nil {
		e.metrics.RecordError("broadcast")
		return fmt.Errorf("publish signal: %w", err)
	}
	if err := e.bus.Publish(ctx, models.Event{Type: models.EventLog, Data: line}); err != nil {
		e.metrics.RecordError("broadcast")
		return fmt.Errorf("publish log: %w", err)
	}
	return nil
}

// Compute builds a signal for pair from the bars currently held without
// persisting it. ok is false when there is not enough history.
func (e *SignalEmitter) Compute(ctx context.Context, pair models.Pair) (models.Signal, bool) {
	window := e.bars.Snapshot(pair.Symbol, e.cfg.Window)
	base, ok := ComputeBase(window)
	if !ok {
		return models.Signal{}, false
	}

	htf := features.Resample(e.bars.Snapshot(pair.Symbol, 0), e.cfg.HTFSeconds)
	conf := patterns.Score(window, htf)

	var report domsvc.ManipulationReport
	if e.manip != nil {
		r, err := e.manip.Analyze(ctx, nil, tailBars(window, manipulationBars))
		if err != nil {
			e.log.Warn("manipulation analysis failed", applogger.Symbol(pair.Symbol), applogger.Error(err))
			e.metrics.RecordError("manipulation")
		} else {
			report = r
		}
	}
	fv := patterns.Extract(window, conf, report.Score > 0)

	confidence := clampConfidence(base.Confidence + conf.Score)
	if e.learner != nil {
		confidence = clampConfidence(confidence + e.learner.PredictBoost(fv))
	}

	notes := joinNotes(base.Notes)
	if report.Score > 0 {
		confidence = clampConfidence(confidence - int(math.Round(report.Score/3)))
		reasons, _ := json.Marshal(report.Reasons)
		notes += " | manip:" + string(reasons)
	}

	now := e.clock.Now()
	return models.Signal{
		ID:         uuid.NewString(),
		Symbol:     pair.Symbol,
		Market:     string(pair.Market),
		Direction:  base.Direction,
		Entry:      base.Entry(),
		Confidence: confidence,
		Time:       now,
		Expiry:     now.Add(e.cfg.Expiry),
		Features:   fv,
		Notes:      notes,
	}, true
}

// EmitNow computes and stores a signal for one symbol on request, regardless
// of the confidence floor. It does not broadcast.
func (e *SignalEmitter) EmitNow(ctx context.Context, symbol string) (models.Signal, error) {
	if symbol == "" {
		// no pair requested: use the first watched symbol
		if syms := e.watch.Symbols(); len(syms) > 0 {
			symbol = syms[0]
		}
	}
	pair, ok := e.watch.Lookup(symbol)
	if !ok {
		return models.Signal{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	sig, ok := e.Compute(ctx, pair)
	if !ok {
		return models.Signal{}, ErrNoSignal
	}
	if err := e.store.Insert(ctx, sig); err != nil {
		e.metrics.RecordError("signal_store")
		return models.Signal{}, fmt.Errorf("insert signal: %w", err)
	}
	e.metrics.RecordSignal(sig.Symbol, string(sig.Direction), sig.Confidence)
	return sig, nil
}

func tailBars(bars []models.Bar, n int) []models.Bar {
	if len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}
