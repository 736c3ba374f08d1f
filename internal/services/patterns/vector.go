package patterns

import (
	"SigPull/internal/domain/models"
	"SigPull/internal/services/features"
)

const (
	volumeLookback = 20
	volumeMult     = 2.0
	roundTolerance = 0.0005
)

// Extract builds the feature vector recorded on a signal. It reuses the
// confluence result so both see the same detectors.
func Extract(bars []models.Bar, c Confluence, manipulated bool) models.FeatureVector {
	fv := models.FeatureVector{
		BOS:          c.BOS.Bias != BiasNone,
		FVG:          c.FVG,
		Volume:       features.VolumeSpike(bars, volumeLookback, volumeMult),
		Manipulation: manipulated,
	}
	if len(bars) > 0 {
		last := bars[len(bars)-1]
		fv.Wick = PinBar(last) || c.Sweep.Magnitude > 0
		fv.Round = features.NearRoundNumber(last.Close, roundTolerance)
	}
	return fv
}
