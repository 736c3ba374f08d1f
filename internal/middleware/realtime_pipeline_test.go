package middleware

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"SigPull/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProc struct {
	mu    sync.Mutex
	ticks []models.Tick
	fail  int // fail this many calls before succeeding
}

func (r *recordingProc) Process(_ context.Context, t models.Tick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return errors.New("downstream unavailable")
	}
	r.ticks = append(r.ticks, t)
	return nil
}

func (r *recordingProc) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

func TestPipeline_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		tick    models.Tick
		wantErr error
	}{
		{name: "ok", tick: models.Tick{Symbol: "btcusdt", Price: 1, Qty: 1, Time: 1}},
		{name: "zero price passes", tick: models.Tick{Symbol: "X", Price: 0, Time: 1}},
		{name: "empty symbol", tick: models.Tick{Symbol: "  ", Price: 1}, wantErr: ErrEmptySymbol},
		{name: "nan price", tick: models.Tick{Symbol: "X", Price: math.NaN()}, wantErr: ErrNonFinite},
		{name: "inf qty", tick: models.Tick{Symbol: "X", Price: 1, Qty: math.Inf(1)}, wantErr: ErrNonFinite},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			proc := &recordingProc{}
			p := NewRealtimePipeline(proc, nil)
			err := p.Process(context.Background(), tc.tick)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Zero(t, proc.count())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, proc.count())
		})
	}
}

func TestPipeline_NormalizesTick(t *testing.T) {
	proc := &recordingProc{}
	p := NewRealtimePipeline(proc, nil)
	require.NoError(t, p.Process(context.Background(), models.Tick{Symbol: " ethusdt", Price: 1, Time: 1_700_000_000_500}))
	require.Len(t, proc.ticks, 1)
	assert.Equal(t, "ETHUSDT", proc.ticks[0].Symbol)
	assert.Equal(t, int64(1_700_000_000), proc.ticks[0].Time)
}

func TestPipeline_Throttle(t *testing.T) {
	proc := &recordingProc{}
	now := time.Unix(1_700_000_000, 0)
	p := NewRealtimePipeline(proc, nil, WithMaxRPS(2))
	p.now = func() time.Time { return now }
	ctx := context.Background()

	tick := models.Tick{Symbol: "X", Price: 1, Time: 1}
	require.NoError(t, p.Process(ctx, tick))
	require.NoError(t, p.Process(ctx, tick)) // throttled silently
	now = now.Add(500 * time.Millisecond)
	require.NoError(t, p.Process(ctx, tick))
	assert.Equal(t, 2, proc.count())
}

func TestPipeline_BuffersAndRetries(t *testing.T) {
	proc := &recordingProc{fail: 2}
	p := NewRealtimePipeline(proc, nil, WithBufferSize(4))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := p.Process(ctx, models.Tick{Symbol: "X", Price: 1, Time: 1})
	require.Error(t, err)
	assert.Equal(t, 1, p.Buffered())

	p.Start(ctx)
	p.Start(ctx) // idempotent
	assert.Eventually(t, func() bool { return proc.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	p.Stop()
	p.Stop()
	assert.Zero(t, p.Buffered())
}
