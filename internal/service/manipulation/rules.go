package manipulation

import (
	"context"

	"SigPull/internal/domain/models"
	domsvc "SigPull/internal/domain/service"
	"SigPull/internal/services/features"
)

const (
	ReasonRangeSpike  = "range_spike"
	ReasonVolumeSpike = "volume_spike"
	ReasonFlatTape    = "flat_tape"
)

// Rule thresholds and the score each rule contributes.
const (
	rangeSpikeMult  = 4.0
	volumeSpikeMult = 5.0
	flatTapeBars    = 10

	scoreRangeSpike  = 30
	scoreVolumeSpike = 20
	scoreFlatTape    = 15
)

// Rules scores the bar window with fixed heuristics. Ticks are ignored.
type Rules struct{}

var _ domsvc.ManipulationDetector = Rules{}

func (Rules) Analyze(_ context.Context, _ []models.Tick, bars []models.Bar) (domsvc.ManipulationReport, error) {
	report := domsvc.ManipulationReport{Reasons: []string{}}
	if len(bars) < 2 {
		return report, nil
	}
	last := bars[len(bars)-1]
	prior := bars[:len(bars)-1]

	if med := features.MedianRange(prior); med > 0 && last.Range() > rangeSpikeMult*med {
		report.Score += scoreRangeSpike
		report.Reasons = append(report.Reasons, ReasonRangeSpike)
	}
	if mean := features.MeanVolume(prior); mean > 0 && last.Volume > volumeSpikeMult*mean {
		report.Score += scoreVolumeSpike
		report.Reasons = append(report.Reasons, ReasonVolumeSpike)
	}
	if flatTape(bars) {
		report.Score += scoreFlatTape
		report.Reasons = append(report.Reasons, ReasonFlatTape)
	}
	return report, nil
}

// flatTape reports a tape whose last closes never moved.
func flatTape(bars []models.Bar) bool {
	if len(bars) < flatTapeBars {
		return false
	}
	recent := bars[len(bars)-flatTapeBars:]
	for _, b := range recent[1:] {
		if b.Close != recent[0].Close {
			return false
		}
	}
	return true
}
