package usecase

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SigPull/internal/domain/models"
	domsvc "SigPull/internal/domain/service"
)

type emitterFixture struct {
	clock  *fixedClock
	bars   *BarAggregator
	store  *fakeSignalStore
	bus    *recordingBus
	lstore *fakeLearnerStore
	sim    *stepSimulator
}

func newEmitterFixture() *emitterFixture {
	return &emitterFixture{
		clock:  newClock(t0),
		bars:   NewBarAggregator(1000, nil),
		store:  newFakeSignalStore(),
		bus:    &recordingBus{},
		lstore: &fakeLearnerStore{},
		sim:    &stepSimulator{},
	}
}

func (f *emitterFixture) emitter(t *testing.T, minConf int, det domsvc.ManipulationDetector) *SignalEmitter {
	t.Helper()
	watch := NewWatchlist([]MarketSymbols{{Market: models.MarketCrypto, Symbols: []string{"btcusdt"}}}, nil)
	cfg := EmitterConfig{MinConfidence: minConf, Expiry: time.Minute, Window: 300, HTFSeconds: 60, MinHistory: 30}
	return NewSignalEmitter(cfg, watch, f.bars, newTestLearner(t, f.lstore), det, f.store, f.bus, f.sim, f.clock, nil, nil)
}

func TestSignalEmitter_EmitsAboveFloor(t *testing.T) {
	f := newEmitterFixture()
	loadBars(f.bars, "BTCUSDT", trendBars(40, 101, 0.25))
	e := f.emitter(t, 10, nil)

	require.NoError(t, e.EmitCycle(context.Background()))

	rows, _ := f.store.ListRecent(context.Background(), 10)
	require.Len(t, rows, 1)
	sig := rows[0]
	assert.NotEmpty(t, sig.ID)
	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Equal(t, "crypto", sig.Market)
	assert.Equal(t, models.DirectionCall, sig.Direction)
	// base 50 plus an order block
	assert.Equal(t, 54, sig.Confidence)
	assert.Equal(t, t0, sig.Time)
	assert.Equal(t, t0.Add(time.Minute), sig.Expiry)
	assert.Equal(t, models.ResultPending, sig.Result)

	mid, err := models.EntryMidpoint(sig.Entry)
	require.NoError(t, err)
	assert.InDelta(t, 111, mid, 1e-9)

	require.Len(t, f.bus.ofType(models.EventSignal), 1)
	logs := f.bus.ofType(models.EventLog)
	require.Len(t, logs, 1)
	assert.Equal(t, "Signal BTCUSDT CALL conf:54", logs[0].Data)
	assert.Equal(t, 0, f.sim.calls)
}

func TestSignalEmitter_BelowFloorIsDropped(t *testing.T) {
	f := newEmitterFixture()
	loadBars(f.bars, "BTCUSDT", trendBars(40, 101, 0.25))
	e := f.emitter(t, 99, nil)

	require.NoError(t, e.EmitCycle(context.Background()))
	rows, _ := f.store.ListRecent(context.Background(), 10)
	assert.Empty(t, rows)
	assert.Empty(t, f.bus.events)
}

func TestSignalEmitter_SimulatesThinHistory(t *testing.T) {
	f := newEmitterFixture()
	e := f.emitter(t, 0, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, e.EmitCycle(context.Background()))
	}
	assert.Equal(t, 5, f.sim.calls)
	assert.Equal(t, 5, f.bars.Len("BTCUSDT"))
	rows, _ := f.store.ListRecent(context.Background(), 10)
	assert.Empty(t, rows, "fewer than 12 bars cannot produce a signal")
}

func TestSignalEmitter_ManipulationPenalty(t *testing.T) {
	f := newEmitterFixture()
	loadBars(f.bars, "BTCUSDT", trendBars(40, 101, 0.25))
	det := stubDetector{report: domsvc.ManipulationReport{Score: 30, Reasons: []string{"range_spike"}}}
	e := f.emitter(t, 0, det)

	sig, ok := e.Compute(context.Background(), models.Pair{Symbol: "BTCUSDT", Market: models.MarketCrypto})
	require.True(t, ok)
	assert.Equal(t, 44, sig.Confidence)
	assert.True(t, sig.Features.Manipulation)
	assert.True(t, strings.HasSuffix(sig.Notes, ` | manip:["range_spike"]`), sig.Notes)
}

func TestSignalEmitter_DetectorErrorIsIgnored(t *testing.T) {
	f := newEmitterFixture()
	loadBars(f.bars, "BTCUSDT", trendBars(40, 101, 0.25))
	e := f.emitter(t, 0, stubDetector{err: errBoom})

	sig, ok := e.Compute(context.Background(), models.Pair{Symbol: "BTCUSDT"})
	require.True(t, ok)
	assert.Equal(t, 54, sig.Confidence)
	assert.False(t, sig.Features.Manipulation)
}

func TestSignalEmitter_ConfidenceIsClamped(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		f := newEmitterFixture()
		loadBars(f.bars, "BTCUSDT", trendBars(40, 101, 0.25))
		st := models.DefaultLearnerState(0.05)
		st.Weights[models.WeightManipulation] = (rng.Float64() - 0.5) * 1000
		f.lstore.state = &st

		det := stubDetector{report: domsvc.ManipulationReport{Score: rng.Float64() * 600}}
		e := f.emitter(t, 0, det)
		sig, ok := e.Compute(context.Background(), models.Pair{Symbol: "BTCUSDT"})
		require.True(t, ok)
		assert.GreaterOrEqual(t, sig.Confidence, 0)
		assert.LessOrEqual(t, sig.Confidence, 99)
	}

	f := newEmitterFixture()
	loadBars(f.bars, "BTCUSDT", trendBars(40, 101, 0.25))
	st := models.DefaultLearnerState(0.05)
	st.Weights[models.WeightManipulation] = 100
	f.lstore.state = &st
	e := f.emitter(t, 0, stubDetector{report: domsvc.ManipulationReport{Score: 1}})
	sig, _ := e.Compute(context.Background(), models.Pair{Symbol: "BTCUSDT"})
	assert.Equal(t, 99, sig.Confidence)
}

func TestSignalEmitter_StoreFailureContinues(t *testing.T) {
	f := newEmitterFixture()
	f.store.insertFn = func(models.Signal) error { return errBoom }
	loadBars(f.bars, "BTCUSDT", trendBars(40, 101, 0.25))
	e := f.emitter(t, 0, nil)

	err := e.EmitCycle(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Empty(t, f.bus.events)
}

func TestSignalEmitter_EmitNow(t *testing.T) {
	f := newEmitterFixture()
	e := f.emitter(t, 99, nil)

	_, err := e.EmitNow(context.Background(), "DOGEUSDT")
	require.ErrorIs(t, err, ErrUnknownSymbol)

	_, err = e.EmitNow(context.Background(), "btcusdt")
	require.ErrorIs(t, err, ErrNoSignal)

	loadBars(f.bars, "BTCUSDT", trendBars(40, 101, 0.25))
	sig, err := e.EmitNow(context.Background(), " btcusdt ")
	require.NoError(t, err)
	assert.Equal(t, 54, sig.Confidence)
	assert.Equal(t, sig, f.store.get(sig.ID))
	assert.Empty(t, f.bus.events)
}
