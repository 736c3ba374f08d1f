package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	applogger "SigPull/pkg/logger"
)

const fallbackAlpha = 0.03

// Learner is a single-layer perceptron over the boolean feature vector.
// RecordOutcome is the only mutator and persists the whole state before it
// returns.
type Learner struct {
	store   domrepo.LearnerStore
	metrics domrepo.Metrics
	log     *applogger.Logger

	mu    sync.RWMutex
	state models.LearnerState
}

// NewLearner loads the stored state, creating and saving the default one when
// the store is empty. An unreadable or unwritable store is logged and the
// learner starts from the default state; only a missing store is an error.
func NewLearner(ctx context.Context, store domrepo.LearnerStore, alpha float64, metrics domrepo.Metrics, lgr *applogger.Logger) (*Learner, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: learner store", ErrMissingDependency)
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if lgr == nil {
		lgr = applogger.Nop()
	}

	log := lgr.With("learner")
	state, found, err := store.Load(ctx)
	switch {
	case err != nil:
		// The stored copy is left as is until the next outcome overwrites it.
		metrics.RecordError("learner")
		log.Warn("learner state unreadable, starting from defaults", applogger.Error(err))
		state = models.DefaultLearnerState(alpha)
	case !found:
		state = models.DefaultLearnerState(alpha)
		if err := store.Save(ctx, state); err != nil {
			metrics.RecordError("learner")
			log.Warn("save default learner state", applogger.Error(err))
		}
	}
	if state.Weights == nil {
		state.Weights = models.DefaultLearnerState(alpha).Weights
	}

	l := &Learner{store: store, metrics: metrics, log: log, state: state}
	metrics.RecordLearnerWeights(state.Weights)
	return l, nil
}

// PredictBoost is round(10 * w.x). The manipulation weight is part of the dot
// product and usually drifts negative.
func (l *Learner) PredictBoost(fv models.FeatureVector) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return predict(l.state.Weights, fv)
}

// predict sums in a fixed order so equal inputs always round the same way.
func predict(w map[string]float64, fv models.FeatureVector) int {
	in := fv.Inputs()
	dot := 0.0
	for _, k := range models.LearnedFeatures {
		dot += w[k] * in[k]
	}
	dot += w[models.WeightManipulation] * in[models.WeightManipulation]
	return int(math.Round(dot * 10))
}

// RecordOutcome applies the delta rule for one resolved signal and saves the
// state. The in-memory update stands even when the save fails.
func (l *Learner) RecordOutcome(ctx context.Context, fv models.FeatureVector, won bool) error {
	l.mu.Lock()
	y := 0.0
	if won {
		y = 1
	}
	pred := 0.0
	if predict(l.state.Weights, fv) > 0 {
		pred = 1
	}
	e := y - pred

	alpha := l.state.Alpha
	if alpha == 0 {
		alpha = fallbackAlpha
	}
	in := fv.Inputs()
	for _, k := range models.LearnedFeatures {
		l.state.Weights[k] += alpha * e * in[k]
	}
	l.state.Weights[models.WeightManipulation] += alpha * (-e) * in[models.WeightManipulation]

	if won {
		l.state.Stats.Wins++
	} else {
		l.state.Stats.Losses++
	}
	snapshot := l.state.Clone()
	// Saving under the lock keeps stored states in update order.
	err := l.store.Save(ctx, snapshot)
	l.mu.Unlock()

	l.metrics.RecordLearnerWeights(snapshot.Weights)
	if err != nil {
		l.metrics.RecordError("learner")
		return fmt.Errorf("persist learner state: %w", err)
	}
	l.log.Debug("learner updated",
		applogger.Bool("won", won),
		applogger.Float64("error", e),
		applogger.Int("wins", snapshot.Stats.Wins),
		applogger.Int("losses", snapshot.Stats.Losses),
	)
	return nil
}

// State returns a copy of the current state.
func (l *Learner) State() models.LearnerState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Clone()
}
