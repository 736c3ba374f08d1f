// Package patterns holds pure detectors over bar windows. Nothing here keeps
// state or does I/O; callers pass snapshots.
package patterns

import (
	"sort"

	"SigPull/internal/domain/models"
)

// Bias is the direction a detector points to.
type Bias int8

const (
	BiasNone Bias = iota
	BiasBull
	BiasBear
)

func (b Bias) String() string {
	switch b {
	case BiasBull:
		return "bull"
	case BiasBear:
		return "bear"
	default:
		return "none"
	}
}

func (b Bias) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// Engulfing checks the last two bars. The last body must be larger in
// magnitude than the previous one, of opposite sign, and close beyond the
// previous open.
func Engulfing(bars []models.Bar) Bias {
	if len(bars) < 2 {
		return BiasNone
	}
	prev, last := bars[len(bars)-2], bars[len(bars)-1]
	pb, lb := prev.Body(), last.Body()
	if abs(lb) <= abs(pb) {
		return BiasNone
	}
	switch {
	case prev.Bearish() && last.Bullish() && last.Close > prev.Open:
		return BiasBull
	case prev.Bullish() && last.Bearish() && last.Close < prev.Open:
		return BiasBear
	}
	return BiasNone
}

// PinBar reports a small body (under a quarter of the range) with one wick
// longer than three bodies.
func PinBar(b models.Bar) bool {
	rng := b.Range()
	if rng <= 0 {
		return false
	}
	body := abs(b.Body())
	if body/rng >= 0.25 {
		return false
	}
	return b.UpperWick() > 3*body || b.LowerWick() > 3*body
}

const tripleTopWindow = 15

// TripleTop looks for three local peaks in the last 15 highs whose top three
// values sit within 0.3% of each other.
func TripleTop(bars []models.Bar) bool {
	if len(bars) < tripleTopWindow {
		return false
	}
	w := bars[len(bars)-tripleTopWindow:]

	var peaks []float64
	for i := 1; i < len(w)-1; i++ {
		if w[i].High > w[i-1].High && w[i].High > w[i+1].High {
			peaks = append(peaks, w[i].High)
		}
	}
	if len(peaks) < 3 {
		return false
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(peaks)))
	hi, lo := peaks[0], peaks[2]
	if lo <= 0 {
		return false
	}
	return (hi-lo)/lo < 0.003
}

// Momentum compares the mean net change of the last six bars with the six before.
type Momentum struct {
	Recent float64 `json:"momentum"`
	Prior  float64 `json:"prev"`
	Change float64 `json:"change"`
}

const momentumSpan = 6

func MomentumCluster(bars []models.Bar) (Momentum, bool) {
	if len(bars) < 2*momentumSpan {
		return Momentum{}, false
	}
	n := len(bars)
	recent := meanBody(bars[n-momentumSpan:])
	prior := meanBody(bars[n-2*momentumSpan : n-momentumSpan])
	return Momentum{Recent: recent, Prior: prior, Change: recent - prior}, true
}

func meanBody(bars []models.Bar) float64 {
	sum := 0.0
	for _, b := range bars {
		sum += b.Body()
	}
	return sum / float64(len(bars))
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
