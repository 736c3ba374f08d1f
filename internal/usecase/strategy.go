package usecase

import (
	"strings"

	"SigPull/internal/domain/models"
	"SigPull/internal/services/features"
	"SigPull/internal/services/patterns"
)

const (
	minStrategyBars = 12
	entryRangeBars  = 14
	baseConfidence  = 50
)

// BaseSignal is the short-timeframe call before structural and learned boosts.
type BaseSignal struct {
	Direction  models.Direction
	Low, High  float64
	Places     int32
	Confidence int
	Notes      []string
}

func (b BaseSignal) Entry() string {
	return models.FormatEntry(b.Low, b.High, b.Places)
}

// ComputeBase picks a direction from momentum, then engulfing, then the last
// close change, and scores the candle patterns that agree with it.
func ComputeBase(bars []models.Bar) (BaseSignal, bool) {
	if len(bars) < minStrategyBars {
		return BaseSignal{}, false
	}
	last := bars[len(bars)-1]
	if last.Close <= 0 {
		return BaseSignal{}, false
	}

	mom, _ := patterns.MomentumCluster(bars)
	engulf := patterns.Engulfing(bars)

	var dir models.Direction
	var notes []string
	switch {
	case mom.Recent > 0:
		dir = models.DirectionCall
		notes = append(notes, "momentum up")
	case mom.Recent < 0:
		dir = models.DirectionPut
		notes = append(notes, "momentum down")
	case engulf == patterns.BiasBull:
		dir = models.DirectionCall
	case engulf == patterns.BiasBear:
		dir = models.DirectionPut
	case last.Close < bars[len(bars)-2].Close:
		dir = models.DirectionPut
	default:
		dir = models.DirectionCall
	}

	conf := baseConfidence
	if (engulf == patterns.BiasBull && dir == models.DirectionCall) || (engulf == patterns.BiasBear && dir == models.DirectionPut) {
		conf += 10
		notes = append(notes, "engulfing "+engulf.String())
	}
	if patterns.PinBar(last) {
		conf += 5
		notes = append(notes, "pin bar")
	}
	if (dir == models.DirectionCall && mom.Change > 0) || (dir == models.DirectionPut && mom.Change < 0) {
		conf += 5
		notes = append(notes, "accelerating")
	}
	if dir == models.DirectionCall && patterns.TripleTop(bars) {
		conf -= 10
		notes = append(notes, "triple top")
	}

	half := features.MeanRange(bars, entryRangeBars) / 2
	return BaseSignal{
		Direction:  dir,
		Low:        last.Close - half,
		High:       last.Close + half,
		Places:     features.PricePlaces(last.Close),
		Confidence: conf,
		Notes:      notes,
	}, true
}

func joinNotes(notes []string) string {
	return strings.Join(notes, ", ")
}

func clampConfidence(c int) int {
	return max(0, min(99, c))
}
