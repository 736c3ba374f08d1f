package patterns

import "SigPull/internal/domain/models"

// Confluence weights.
const (
	WeightBOSStrong    = 8
	WeightBOSWeak      = 4
	WeightCHoCH        = 6
	WeightSweep        = 6
	WeightFVG          = 5
	WeightOrderBlock   = 4
	strongBOSThreshold = 10
)

// Confluence is the additive structural boost and the detectors behind it.
type Confluence struct {
	Score      int         `json:"score"`
	BOS        Structure   `json:"bos"`
	CHoCH      Bias        `json:"choch"`
	Sweep      Sweep       `json:"sweep"`
	FVG        bool        `json:"fvg"`
	OrderBlock *OrderBlock `json:"orderBlock,omitempty"`
}

// Score runs every structure detector. bars is the short timeframe, htf the
// higher one used for break of structure.
func Score(bars, htf []models.Bar) Confluence {
	c := Confluence{
		BOS:   BreakOfStructure(htf),
		CHoCH: ChangeOfCharacter(bars),
		Sweep: LiquiditySweep(bars),
		FVG:   FairValueGap(bars),
	}

	if c.BOS.Bias != BiasNone {
		if c.BOS.Strength >= strongBOSThreshold {
			c.Score += WeightBOSStrong
		} else {
			c.Score += WeightBOSWeak
		}
	}
	if c.CHoCH != BiasNone {
		c.Score += WeightCHoCH
	}
	if c.Sweep.Magnitude > 0 {
		c.Score += WeightSweep
	}
	if c.FVG {
		c.Score += WeightFVG
	}
	if ob, ok := FindOrderBlock(bars); ok {
		c.OrderBlock = &ob
		c.Score += WeightOrderBlock
	}
	return c
}
