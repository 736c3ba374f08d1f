package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SigPull/internal/domain/models"
)

func TestResample(t *testing.T) {
	bars := []models.Bar{
		{Time: 118, Open: 1, High: 2, Low: 1, Close: 2, Volume: 1},
		{Time: 119, Open: 2, High: 3, Low: 2, Close: 3, Volume: 1},
		{Time: 120, Open: 3, High: 4, Low: 0.5, Close: 1, Volume: 2},
		{Time: 150, Open: 1, High: 5, Low: 1, Close: 4, Volume: 3},
		{Time: 181, Open: 4, High: 4, Low: 4, Close: 4, Volume: 1},
	}

	got := Resample(bars, 60)
	require.Len(t, got, 3)
	assert.Equal(t, models.Bar{Time: 60, Open: 1, High: 3, Low: 1, Close: 3, Volume: 2}, got[0])
	assert.Equal(t, models.Bar{Time: 120, Open: 3, High: 5, Low: 0.5, Close: 4, Volume: 5}, got[1])
	assert.Equal(t, int64(180), got[2].Time)

	// the input is left untouched
	assert.Equal(t, int64(118), bars[0].Time)
}

func TestVolumeSpike(t *testing.T) {
	bars := make([]models.Bar, 21)
	for i := range bars {
		bars[i] = models.Bar{Time: int64(i), Volume: 1}
	}
	assert.False(t, VolumeSpike(bars, 20, 2))
	bars[20].Volume = 2.5
	assert.True(t, VolumeSpike(bars, 20, 2))
	assert.False(t, VolumeSpike(bars[:5], 20, 2))
}

func TestNearRoundNumber(t *testing.T) {
	assert.True(t, NearRoundNumber(110000, 0.0005))
	assert.True(t, NearRoundNumber(1.0999, 0.0005))
	assert.False(t, NearRoundNumber(1.0950, 0.0005))
	assert.False(t, NearRoundNumber(0, 0.0005))
}

func TestMedianAndMeanRange(t *testing.T) {
	bars := []models.Bar{{High: 2, Low: 1}, {High: 5, Low: 1}, {High: 3, Low: 1}}
	assert.Equal(t, 2.0, MedianRange(bars))
	assert.InDelta(t, 7.0/3, MeanRange(bars, 0), 1e-12)
	assert.Equal(t, 2.0, MeanRange(bars, 1))
}

func TestComputeLogReturns(t *testing.T) {
	r := ComputeLogReturns([]models.Bar{{Close: 1}, {Close: math.E}, {Close: 0}})
	require.Len(t, r, 2)
	assert.InDelta(t, 1.0, r[0], 1e-12)
	assert.Equal(t, 0.0, r[1])
}

func TestStdDev(t *testing.T) {
	xs := []float64{9, 1, 2, 3, 4}
	assert.InDelta(t, math.Sqrt(1.25), StdDev(xs, 4), 1e-9)
	assert.Zero(t, StdDev(xs, 6))
	assert.Zero(t, StdDev(xs, 1))
	assert.Zero(t, StdDev([]float64{5, 5, 5}, 3))
}
