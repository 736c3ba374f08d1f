package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	domsvc "SigPull/internal/domain/service"
	applogger "SigPull/pkg/logger"
)

// ResultResolver settles expired signals against the bar at or after expiry
// and feeds every outcome back to the learner.
type ResultResolver struct {
	store     domrepo.SignalStore
	bars      domrepo.BarReader
	learner   *Learner
	bus       domrepo.Broadcaster
	clock     domsvc.Clock
	scanLimit int
	metrics   domrepo.Metrics
	log       *applogger.Logger
}

// NewResultResolver needs a signal store and a bar reader. learner and bus
// may be nil.
func NewResultResolver(
	store domrepo.SignalStore,
	bars domrepo.BarReader,
	learner *Learner,
	bus domrepo.Broadcaster,
	clock domsvc.Clock,
	scanLimit int,
	metrics domrepo.Metrics,
	lgr *applogger.Logger,
) (*ResultResolver, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: signal store", ErrMissingDependency)
	}
	if bars == nil {
		return nil, fmt.Errorf("%w: bar reader", ErrMissingDependency)
	}
	if scanLimit <= 0 {
		scanLimit = 200
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
	return &ResultResolver{
		store:     store,
		bars:      bars,
		learner:   learner,
		bus:       bus,
		clock:     clock,
		scanLimit: scanLimit,
		metrics:   metrics,
		log:       lgr.With("resolver"),
	}, nil
}

// ResolveCycle settles every pending signal whose expiry has passed. Signals
// that cannot be settled yet stay pending for the next cycle.
func (r *ResultResolver) ResolveCycle(ctx context.Context) error {
	start := time.Now()
	defer func() { r.metrics.RecordLatency("resolve_cycle", time.Since(start).Seconds()) }()

	rows, err := r.store.ListRecent(ctx, r.scanLimit)
	if err != nil {
		r.metrics.RecordError("signal_store")
		return fmt.Errorf("list recent signals: %w", err)
	}

	now := r.clock.Now()
	var errs []error
	for _, sig := range rows {
		if !sig.Pending() || now.Before(sig.Expiry) {
			continue
		}
		if err := r.resolve(ctx, sig); err != nil {
			errs = append(errs, fmt.Errorf("signal %s: %w", sig.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (r *ResultResolver) resolve(ctx context.Context, sig models.Signal) error {
	price, ok := r.finalPrice(sig.Symbol, sig.Expiry.Unix())
	if !ok {
		return nil
	}
	result := models.Outcome(sig.Direction, sig.Entry, price)

	err := r.store.SaveResult(ctx, sig.ID, models.ResultUpdate{
		Result:     result,
		FinalPrice: price,
		ResolvedAt: r.clock.Now(),
	})
	switch {
	case errors.Is(err, domrepo.ErrAlreadyResolved):
		r.log.Debug("signal settled elsewhere", applogger.String("id", sig.ID))
		return nil
	case err != nil:
		r.metrics.RecordError("signal_store")
		return fmt.Errorf("save result: %w", err)
	}
	r.metrics.RecordResult(sig.Symbol, string(result))

	var errs []error
	// UNKNOWN is not a win and trains as a loss.
	if r.learner != nil {
		if err := r.learner.RecordOutcome(ctx, sig.Features, result == models.ResultWin); err != nil {
			errs = append(errs, err)
		}
	}

	r.log.Info("signal resolved",
		applogger.String("id", sig.ID),
		applogger.Symbol(sig.Symbol),
		applogger.String("result", string(result)),
		applogger.Float64("final_price", price),
	)
	if r.bus != nil {
		ev := models.Event{Type: models.EventSignalResult, Data: models.ResultEvent{
			ID:         sig.ID,
			Symbol:     sig.Symbol,
			Time:       sig.Time,
			Result:     result,
			FinalPrice: price,
		}}
		if err := r.bus.Publish(ctx, ev); err != nil {
			r.metrics.RecordError("broadcast")
			errs = append(errs, fmt.Errorf("publish result: %w", err))
		}
	}
	return errors.Join(errs...)
}

// finalPrice is the close of the first bar at or after expirySec, or of the
// newest bar when none has formed yet.
func (r *ResultResolver) finalPrice(symbol string, expirySec int64) (float64, bool) {
	bars := r.bars.Snapshot(symbol, 0)
	if len(bars) == 0 {
		return 0, false
	}
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Time >= expirySec })
	if i == len(bars) {
		i--
	}
	bar := bars[i]
	if math.IsNaN(bar.Close) || math.IsInf(bar.Close, 0) {
		return 0, false
	}
	return bar.Close, true
}
