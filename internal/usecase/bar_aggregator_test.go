package usecase

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SigPull/internal/domain/models"
)

func TestBarAggregator_AppendTick(t *testing.T) {
	a := NewBarAggregator(10, nil)
	const t0 = int64(1_700_000_000)

	a.AppendTick("BTCUSDT", 100, 1, t0)
	a.AppendTick("BTCUSDT", 102, 1, t0)
	a.AppendTick("BTCUSDT", 101, 1, t0+1)

	got := a.Snapshot("BTCUSDT", 0)
	require.Len(t, got, 2)
	assert.Equal(t, models.Bar{Time: t0, Open: 100, High: 102, Low: 100, Close: 102, Volume: 2}, got[0])
	assert.Equal(t, models.Bar{Time: t0 + 1, Open: 101, High: 101, Low: 101, Close: 101, Volume: 1}, got[1])
}

func TestBarAggregator_LateTickFoldsIntoLastBar(t *testing.T) {
	a := NewBarAggregator(10, nil)
	a.AppendTick("X", 10, 1, 100)
	a.AppendTick("X", 11, 1, 101)
	a.AppendTick("X", 9, 1, 99)

	got := a.Snapshot("X", 0)
	require.Len(t, got, 2)
	assert.Equal(t, int64(101), got[1].Time)
	assert.Equal(t, 9.0, got[1].Close)
	assert.Equal(t, 9.0, got[1].Low)
	assert.Equal(t, 2.0, got[1].Volume)
}

func TestBarAggregator_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := NewBarAggregator(500, nil)

	sec := int64(1000)
	for i := 0; i < 5000; i++ {
		// mostly forward, sometimes a gap, sometimes a step back
		switch r := rng.Intn(10); {
		case r < 5:
		case r < 8:
			sec++
		case r < 9:
			sec += int64(rng.Intn(30))
		default:
			sec -= int64(rng.Intn(5))
		}
		a.AppendTick("EURUSD", 1+rng.Float64(), rng.Float64(), sec)
	}

	bars := a.Snapshot("EURUSD", 0)
	require.NotEmpty(t, bars)
	assert.LessOrEqual(t, len(bars), 500)
	for i, b := range bars {
		assert.GreaterOrEqual(t, b.High, max(b.Open, b.Close))
		assert.LessOrEqual(t, b.Low, min(b.Open, b.Close))
		if i > 0 {
			assert.Greater(t, b.Time, bars[i-1].Time)
		}
	}
}

func TestBarAggregator_Capacity(t *testing.T) {
	a := NewBarAggregator(3, nil)
	for i := int64(0); i < 5; i++ {
		a.AppendTick("X", float64(i+1), 1, i)
	}
	got := a.Snapshot("X", 0)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{2, 3, 4}, []int64{got[0].Time, got[1].Time, got[2].Time})

	last, ok := a.Last("X")
	require.True(t, ok)
	assert.Equal(t, 5.0, last.Close)

	tail := a.Snapshot("X", 2)
	assert.Equal(t, int64(3), tail[0].Time)
	assert.Equal(t, 3, a.Len("X"))
}

func TestBarAggregator_SnapshotIsACopy(t *testing.T) {
	a := NewBarAggregator(10, nil)
	a.AppendTick("X", 1, 1, 1)
	snap := a.Snapshot("X", 0)
	snap[0].Close = 99

	last, _ := a.Last("X")
	assert.Equal(t, 1.0, last.Close)

	assert.Nil(t, a.Snapshot("missing", 0))
	_, ok := a.Last("missing")
	assert.False(t, ok)
}

func TestBarAggregator_Repair(t *testing.T) {
	a := NewBarAggregator(10, nil)
	a.AppendTick("X", 1, 1, 10)
	a.AppendTick("X", 0, 1, 11)
	a.AppendTick("X", -2, 1, 12)
	a.AppendTick("X", 3, 1, 13)

	assert.Equal(t, 2, a.Repair("X"))
	got := a.Snapshot("X", 0)
	require.Len(t, got, 2)
	assert.Equal(t, int64(13), got[1].Time)

	// appends keep working after a repair
	a.AppendTick("X", 4, 1, 14)
	assert.Equal(t, 3, a.Len("X"))
	assert.Equal(t, 0, a.Repair("X"))
	assert.Equal(t, 0, a.Repair("missing"))
}

func TestBarAggregator_Symbols(t *testing.T) {
	a := NewBarAggregator(10, nil)
	a.AppendTick("EURUSD", 1, 1, 1)
	a.AppendTick("BTCUSDT", 1, 1, 1)
	assert.Equal(t, []string{"BTCUSDT", "EURUSD"}, a.Symbols())
}

func TestBarAggregator_ConcurrentReadWrite(t *testing.T) {
	a := NewBarAggregator(100, nil)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			sym := []string{"A", "B"}[w%2]
			for i := 0; i < 1000; i++ {
				a.AppendTick(sym, float64(i+1), 1, int64(i/3))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				bars := a.Snapshot("A", 50)
				for j := 1; j < len(bars); j++ {
					if bars[j].Time <= bars[j-1].Time {
						t.Errorf("unordered snapshot")
						return
					}
				}
				a.Last("B")
				a.Symbols()
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, a.Len("A"), 100)
}
