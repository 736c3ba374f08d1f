package models

// LearnerStats counts resolved outcomes fed to the learner.
type LearnerStats struct {
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
}

// LearnerState is the persisted perceptron state.
type LearnerState struct {
	Version int                `json:"version"`
	Weights map[string]float64 `json:"weights"`
	Alpha   float64            `json:"alpha"`
	Stats   LearnerStats       `json:"stats"`
}

// DefaultLearnerState has every weight at zero.
func DefaultLearnerState(alpha float64) LearnerState {
	w := make(map[string]float64, len(LearnedFeatures)+1)
	for _, k := range LearnedFeatures {
		w[k] = 0
	}
	w[WeightManipulation] = 0
	return LearnerState{Version: 1, Weights: w, Alpha: alpha}
}

// Clone returns a deep copy.
func (s LearnerState) Clone() LearnerState {
	out := s
	out.Weights = make(map[string]float64, len(s.Weights))
	for k, v := range s.Weights {
		out.Weights[k] = v
	}
	return out
}
