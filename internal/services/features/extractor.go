package features

import (
	"math"
	"sort"

	"github.com/markcheno/go-talib"

	"SigPull/internal/domain/models"
	"SigPull/pkg/util"
)

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(bars)-1, or nil if insufficient data.
func ComputeLogReturns(bars []models.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1].Close, bars[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// StdDev is the population standard deviation of the last window values.
func StdDev(xs []float64, window int) float64 {
	if window <= 1 || len(xs) < window {
		return 0
	}
	out := talib.StdDev(xs, window, 1)
	return out[len(out)-1]
}

// Resample folds bars into buckets of width seconds. Input must be time ordered.
func Resample(bars []models.Bar, width int64) []models.Bar {
	if width <= 1 || len(bars) == 0 {
		out := make([]models.Bar, len(bars))
		copy(out, bars)
		return out
	}

	out := make([]models.Bar, 0, len(bars)/int(min(width, int64(len(bars))))+1)
	for _, b := range bars {
		bucket := util.BucketStart(b.Time, width)
		if n := len(out); n > 0 && out[n-1].Time == bucket {
			last := &out[n-1]
			last.High = math.Max(last.High, b.High)
			last.Low = math.Min(last.Low, b.Low)
			last.Close = b.Close
			last.Volume += b.Volume
			continue
		}
		b.Time = bucket
		out = append(out, b)
	}
	return out
}

// MeanRange is the average high-low range of the last n bars.
func MeanRange(bars []models.Bar, n int) float64 {
	w := tail(bars, n)
	if len(w) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range w {
		sum += b.Range()
	}
	return sum / float64(len(w))
}

// MedianRange is the median high-low range of the given bars.
func MedianRange(bars []models.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	rs := make([]float64, len(bars))
	for i, b := range bars {
		rs[i] = b.Range()
	}
	sort.Float64s(rs)
	mid := len(rs) / 2
	if len(rs)%2 == 0 {
		return (rs[mid-1] + rs[mid]) / 2
	}
	return rs[mid]
}

// MeanVolume averages volume over bars.
func MeanVolume(bars []models.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.Volume
	}
	return sum / float64(len(bars))
}

// MeanClose averages closes over bars.
func MeanClose(bars []models.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.Close
	}
	return sum / float64(len(bars))
}

// VolumeSpike is true when the last bar's volume exceeds mult times the mean
// volume of the lookback bars before it.
func VolumeSpike(bars []models.Bar, lookback int, mult float64) bool {
	if len(bars) < lookback+1 || lookback < 1 {
		return false
	}
	prev := bars[len(bars)-1-lookback : len(bars)-1]
	mean := MeanVolume(prev)
	return mean > 0 && bars[len(bars)-1].Volume > mult*mean
}

// NearRoundNumber reports whether price sits within tol (relative) of a round
// level one order of magnitude below the price.
func NearRoundNumber(price, tol float64) bool {
	if price <= 0 || math.IsInf(price, 0) || math.IsNaN(price) {
		return false
	}
	step := math.Pow(10, math.Floor(math.Log10(price))-1)
	level := math.Round(price/step) * step
	return math.Abs(price-level) <= price*tol
}

// PricePlaces picks a display precision from the price magnitude.
func PricePlaces(price float64) int32 {
	switch p := math.Abs(price); {
	case p >= 1000:
		return 2
	case p >= 10:
		return 3
	default:
		return 5
	}
}

func tail(bars []models.Bar, n int) []models.Bar {
	if n <= 0 || n >= len(bars) {
		return bars
	}
	return bars[len(bars)-n:]
}
