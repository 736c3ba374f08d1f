package patterns

import (
	"math"

	"SigPull/internal/domain/models"
)

// Structure is a break of structure result. Strength is the breakout size in
// basis points, capped at 50.
type Structure struct {
	Bias     Bias `json:"bias"`
	Strength int  `json:"strength"`
}

const (
	bosLookback    = 6
	bosMaxStrength = 50
)

// BreakOfStructure compares the last high and low with the extremes of the
// lookback window minus its last two bars. A break needs the two closes before
// the last bar to move the same way.
func BreakOfStructure(bars []models.Bar) Structure {
	span := bosLookback + 2
	if len(bars) < span {
		return Structure{}
	}
	recent := bars[len(bars)-span:]
	base := recent[:len(recent)-2]

	prevHigh, prevLow := base[0].High, base[0].Low
	for _, b := range base[1:] {
		prevHigh = math.Max(prevHigh, b.High)
		prevLow = math.Min(prevLow, b.Low)
	}

	last := recent[len(recent)-1]
	c1, c2 := recent[len(recent)-2].Close, recent[len(recent)-3].Close

	switch {
	case last.High > prevHigh && c1 > c2 && prevHigh > 0:
		return Structure{Bias: BiasBull, Strength: bpsCapped((last.High - prevHigh) / prevHigh)}
	case last.Low < prevLow && c1 < c2 && prevLow > 0:
		return Structure{Bias: BiasBear, Strength: bpsCapped((prevLow - last.Low) / prevLow)}
	}
	return Structure{}
}

func bpsCapped(rel float64) int {
	return min(bosMaxStrength, int(math.Round(rel*10000)))
}

const minStructureBars = 6

// ChangeOfCharacter fires when the last body is at least 1.2x the previous
// one with the opposite polarity. The bias follows the last bar.
func ChangeOfCharacter(bars []models.Bar) Bias {
	if len(bars) < minStructureBars {
		return BiasNone
	}
	prev, last := bars[len(bars)-2], bars[len(bars)-1]
	pb, lb := prev.Body(), last.Body()
	if pb*lb >= 0 || abs(lb) < 1.2*abs(pb) {
		return BiasNone
	}
	if lb > 0 {
		return BiasBull
	}
	return BiasBear
}

// Sweep is a liquidity grab by the last bar's wick.
type Sweep struct {
	Bias      Bias    `json:"bias"`
	Magnitude float64 `json:"magnitude"`
}

// LiquiditySweep compares the last bar's wicks with 1.5x the previous body.
// The lower wick is checked first.
func LiquiditySweep(bars []models.Bar) Sweep {
	if len(bars) < minStructureBars {
		return Sweep{}
	}
	prev, last := bars[len(bars)-2], bars[len(bars)-1]
	body := abs(prev.Body())

	if down := last.LowerWick(); down > 1.5*body {
		return Sweep{Bias: BiasBear, Magnitude: down}
	}
	if up := last.UpperWick(); up > 1.5*body {
		return Sweep{Bias: BiasBull, Magnitude: up}
	}
	return Sweep{}
}

// FairValueGap scans the last four bars for a pair that does not overlap.
func FairValueGap(bars []models.Bar) bool {
	n := len(bars)
	if n < 4 {
		return false
	}
	for i := n - 4; i <= n-2; i++ {
		a, b := bars[i], bars[i+1]
		if a.High < b.Low || a.Low > b.High {
			return true
		}
	}
	return false
}

// OrderBlock is the largest-bodied bar of the recent window.
type OrderBlock struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Time   int64   `json:"time"`
}

const orderBlockWindow = 10

func FindOrderBlock(bars []models.Bar) (OrderBlock, bool) {
	if len(bars) < 5 {
		return OrderBlock{}, false
	}
	w := bars[max(0, len(bars)-orderBlockWindow):]
	best := w[0]
	for _, b := range w[1:] {
		if abs(b.Body()) > abs(best.Body()) {
			best = b
		}
	}
	return OrderBlock{
		Top:    math.Max(best.Open, best.Close),
		Bottom: math.Min(best.Open, best.Close),
		Time:   best.Time,
	}, true
}
