package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SigPull/internal/domain/models"
)

func oc(open, close float64) models.Bar {
	return models.Bar{Open: open, Close: close, High: max(open, close), Low: min(open, close)}
}

// flat returns n doji bars at price p.
func flat(n int, p float64) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		out[i] = models.Bar{Time: int64(i), Open: p, High: p, Low: p, Close: p}
	}
	return out
}

func TestEngulfing(t *testing.T) {
	testCases := []struct {
		name string
		bars []models.Bar
		want Bias
	}{
		{"bullish", []models.Bar{oc(10, 9), oc(9, 12)}, BiasBull},
		{"bearish", []models.Bar{oc(9, 10), oc(10.5, 8)}, BiasBear},
		{"same polarity", []models.Bar{oc(9, 10), oc(10, 13)}, BiasNone},
		{"smaller body", []models.Bar{oc(10, 7), oc(7, 9)}, BiasNone},
		{"close short of prev open", []models.Bar{oc(10, 9.5), oc(8, 9.8)}, BiasNone},
		{"too few bars", []models.Bar{oc(9, 12)}, BiasNone},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Engulfing(tc.bars))
		})
	}
}

func TestPinBar(t *testing.T) {
	assert.True(t, PinBar(models.Bar{Open: 10, Close: 10.1, High: 10.2, Low: 9}))
	assert.True(t, PinBar(models.Bar{Open: 10, Close: 10, High: 11, Low: 10}))
	assert.False(t, PinBar(models.Bar{Open: 10, Close: 11, High: 11.2, Low: 9.9}))
	assert.False(t, PinBar(models.Bar{Open: 5, Close: 5, High: 5, Low: 5}))
}

func TestTripleTop(t *testing.T) {
	bars := flat(15, 100)
	for _, i := range []int{2, 7, 12} {
		bars[i].High = 101
	}
	assert.True(t, TripleTop(bars))

	bars[7].High = 103
	assert.False(t, TripleTop(bars))

	assert.False(t, TripleTop(bars[:14]))
}

func TestMomentumCluster(t *testing.T) {
	_, ok := MomentumCluster(flat(11, 1))
	assert.False(t, ok)

	bars := flat(12, 1)
	for i := 6; i < 12; i++ {
		bars[i] = oc(1, 1.5)
	}
	m, ok := MomentumCluster(bars)
	require.True(t, ok)
	assert.InDelta(t, 0.5, m.Recent, 1e-12)
	assert.Equal(t, 0.0, m.Prior)
	assert.InDelta(t, 0.5, m.Change, 1e-12)
}

func TestBreakOfStructure(t *testing.T) {
	bars := flat(8, 100)
	bars[5] = models.Bar{Open: 100, Close: 100, High: 100, Low: 100}
	bars[6] = models.Bar{Open: 100, Close: 100.5, High: 100.5, Low: 100}
	bars[7] = models.Bar{Open: 100.5, Close: 101, High: 101, Low: 100.5}

	s := BreakOfStructure(bars)
	assert.Equal(t, BiasBull, s.Bias)
	assert.Equal(t, 50, s.Strength)

	bars[7].High = 100.05
	bars[7].Close = 100.05
	s = BreakOfStructure(bars)
	assert.Equal(t, BiasBull, s.Bias)
	assert.Equal(t, 5, s.Strength)

	bear := flat(8, 100)
	bear[6] = oc(100, 99.9)
	bear[7] = models.Bar{Open: 99.9, Close: 99.8, High: 99.9, Low: 99.8}
	s = BreakOfStructure(bear)
	assert.Equal(t, BiasBear, s.Bias)
	assert.Equal(t, 20, s.Strength)

	assert.Equal(t, Structure{}, BreakOfStructure(bars[:7]))
}

func TestChangeOfCharacter(t *testing.T) {
	testCases := []struct {
		name       string
		prev, last models.Bar
		want       Bias
	}{
		{name: "bearish reversal", prev: oc(10, 11), last: oc(11, 9.5), want: BiasBear},
		{name: "bullish reversal", prev: oc(11, 10), last: oc(10, 12), want: BiasBull},
		{name: "exactly 1.2x counts", prev: oc(10, 15), last: oc(15, 9), want: BiasBear},
		{name: "just under 1.2x", prev: oc(10, 15), last: oc(15, 9.5), want: BiasNone},
		{name: "same polarity", prev: oc(10, 11), last: oc(11, 14), want: BiasNone},
		{name: "smaller body", prev: oc(10, 11), last: oc(11, 10.5), want: BiasNone},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bars := append(flat(4, 10), tc.prev, tc.last)
			assert.Equal(t, tc.want, ChangeOfCharacter(bars))
		})
	}

	bars := append(flat(4, 10), oc(10, 11), oc(11, 9.5))
	assert.Equal(t, BiasNone, ChangeOfCharacter(bars[:5]))
}

func TestLiquiditySweep(t *testing.T) {
	bars := append(flat(4, 10), oc(10, 10.2), models.Bar{Open: 10.2, Close: 10.3, High: 10.3, Low: 9.5})
	s := LiquiditySweep(bars)
	assert.Equal(t, BiasBear, s.Bias)
	assert.InDelta(t, 0.7, s.Magnitude, 1e-9)

	bars[5] = models.Bar{Open: 10.2, Close: 10.3, High: 11, Low: 10.2}
	s = LiquiditySweep(bars)
	assert.Equal(t, BiasBull, s.Bias)

	bars[5] = oc(10.2, 10.3)
	assert.Equal(t, Sweep{}, LiquiditySweep(bars))
}

func TestFairValueGap(t *testing.T) {
	bars := []models.Bar{
		{High: 10, Low: 9}, {High: 10.5, Low: 9.5}, {High: 11, Low: 10}, {High: 11.5, Low: 10.8},
	}
	assert.False(t, FairValueGap(bars))

	bars[3] = models.Bar{High: 12, Low: 11.2}
	assert.True(t, FairValueGap(bars))
	assert.False(t, FairValueGap(bars[:3]))
}

func TestFindOrderBlock(t *testing.T) {
	bars := flat(12, 10)
	bars[1] = oc(10, 20) // outside the last ten
	bars[8] = oc(12, 10)
	bars[8].Time = 8

	ob, ok := FindOrderBlock(bars)
	require.True(t, ok)
	assert.Equal(t, OrderBlock{Top: 12, Bottom: 10, Time: 8}, ob)

	_, ok = FindOrderBlock(bars[:4])
	assert.False(t, ok)
}

func TestScore(t *testing.T) {
	// nothing but an order block on a flat tape
	c := Score(flat(10, 1), flat(10, 1))
	assert.Equal(t, WeightOrderBlock, c.Score)
	require.NotNil(t, c.OrderBlock)

	htf := flat(8, 100)
	htf[6] = oc(100, 100.5)
	htf[7] = models.Bar{Open: 100.5, Close: 101, High: 101, Low: 100.5}

	bars := append(flat(4, 10), oc(10, 11), oc(11, 9.5))
	bars[5].Low = 7 // sweep below

	c = Score(bars, htf)
	assert.Equal(t, BiasBull, c.BOS.Bias)
	assert.Equal(t, BiasBear, c.CHoCH)
	assert.Greater(t, c.Sweep.Magnitude, 0.0)
	assert.False(t, c.FVG)
	assert.Equal(t, WeightBOSStrong+WeightCHoCH+WeightSweep+WeightOrderBlock, c.Score)

	bars[3] = models.Bar{Open: 8, Close: 8, High: 8.5, Low: 8}
	assert.Equal(t, c.Score+WeightFVG, Score(bars, htf).Score)
}

func TestExtract(t *testing.T) {
	bars := flat(21, 110000)
	bars[20].Volume = 10
	for i := 0; i < 20; i++ {
		bars[i].Volume = 1
	}
	c := Confluence{BOS: Structure{Bias: BiasBull, Strength: 3}}

	fv := Extract(bars, c, true)
	assert.Equal(t, models.FeatureVector{BOS: true, Volume: true, Round: true, Manipulation: true}, fv)

	assert.Equal(t, models.FeatureVector{}, Extract(nil, Confluence{}, false))
}
