package usecase

import (
	"context"
	"math"

	"SigPull/internal/domain/models"
	"SigPull/internal/services/features"
	applogger "SigPull/pkg/logger"
)

const driftMinBars = 50

// Housekeeper runs maintenance passes over the bar store.
type Housekeeper struct {
	bars           *BarAggregator
	driftThreshold float64
	log            *applogger.Logger
}

func NewHousekeeper(bars *BarAggregator, driftThreshold float64, lgr *applogger.Logger) *Housekeeper {
	if driftThreshold <= 0 {
		driftThreshold = 0.002
	}
	if lgr == nil {
		lgr = applogger.Nop()
	}
	return &Housekeeper{bars: bars, driftThreshold: driftThreshold, log: lgr.With("housekeeper")}
}

// Repair drops corrupt bars from every series.
func (h *Housekeeper) Repair(_ context.Context) error {
	for _, sym := range h.bars.Symbols() {
		if n := h.bars.Repair(sym); n > 0 {
			h.log.Warn("bars repaired", applogger.Symbol(sym), applogger.Int("removed", n))
		}
	}
	return nil
}

// Drift describes how far the last close sits from the mean of the history.
type Drift struct {
	Symbol string
	Delta  float64
	Mean   float64
	Vol    float64
}

// Drift logs symbols whose last close is more than the threshold away from
// the mean close of the retained history.
func (h *Housekeeper) Drift(_ context.Context) error {
	for _, d := range h.Drifts() {
		h.log.Info("price drift",
			applogger.Symbol(d.Symbol),
			applogger.Float64("delta", d.Delta),
			applogger.Float64("mean", d.Mean),
			applogger.Float64("volatility", d.Vol),
		)
	}
	return nil
}

func (h *Housekeeper) Drifts() []Drift {
	var out []Drift
	for _, sym := range h.bars.Symbols() {
		bars := h.bars.Snapshot(sym, 0)
		if len(bars) < driftMinBars {
			continue
		}
		if d, ok := drift(sym, bars, h.driftThreshold); ok {
			out = append(out, d)
		}
	}
	return out
}

func drift(sym string, bars []models.Bar, threshold float64) (Drift, bool) {
	mean := features.MeanClose(bars)
	delta := bars[len(bars)-1].Close - mean
	if math.Abs(delta) <= mean*threshold {
		return Drift{}, false
	}
	rets := features.ComputeLogReturns(bars)
	return Drift{
		Symbol: sym,
		Delta:  delta,
		Mean:   mean,
		Vol:    features.StdDev(rets, min(60, len(rets))),
	}, true
}
