package models

// Feature names as used in learner weights.
const (
	FeatureBOS         = "bos"
	FeatureFVG         = "fvg"
	FeatureVolume      = "volume"
	FeatureWick        = "wick"
	FeatureRound       = "round"
	WeightManipulation = "manipulation_penalty"
)

// LearnedFeatures are the weights updated with the outcome sign.
// WeightManipulation is updated with the opposite sign.
var LearnedFeatures = []string{FeatureBOS, FeatureFVG, FeatureVolume, FeatureWick, FeatureRound}

// FeatureVector records which detectors fired when a signal was emitted.
type FeatureVector struct {
	BOS          bool `json:"bos"`
	FVG          bool `json:"fvg"`
	Volume       bool `json:"volume"`
	Wick         bool `json:"wick"`
	Round        bool `json:"round"`
	Manipulation bool `json:"manipulation"`
}

// Inputs maps each weight name to its 0/1 input.
func (f FeatureVector) Inputs() map[string]float64 {
	return map[string]float64{
		FeatureBOS:         b2f(f.BOS),
		FeatureFVG:         b2f(f.FVG),
		FeatureVolume:      b2f(f.Volume),
		FeatureWick:        b2f(f.Wick),
		FeatureRound:       b2f(f.Round),
		WeightManipulation: b2f(f.Manipulation),
	}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
