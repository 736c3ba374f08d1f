package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	testCases := []struct {
		name      string
		direction Direction
		entry     string
		close     float64
		want      Result
	}{
		{name: "call above midpoint wins", direction: DirectionCall, entry: "100–102", close: 103, want: ResultWin},
		{name: "call below midpoint loses", direction: DirectionCall, entry: "100–102", close: 99, want: ResultLoss},
		{name: "call at midpoint wins", direction: DirectionCall, entry: "100–102", close: 101, want: ResultWin},
		{name: "put below midpoint wins", direction: DirectionPut, entry: "100–102", close: 99, want: ResultWin},
		{name: "put at midpoint wins", direction: DirectionPut, entry: "100–102", close: 101, want: ResultWin},
		{name: "put above midpoint loses", direction: DirectionPut, entry: "100–102", close: 103, want: ResultLoss},
		{name: "thousands separators", direction: DirectionCall, entry: "109,950.5 – 110,050.5", close: 110001, want: ResultWin},
		{name: "ascii hyphen is not a range", direction: DirectionCall, entry: "100-102", close: 103, want: ResultUnknown},
		{name: "garbage", direction: DirectionPut, entry: "n/a", close: 1, want: ResultUnknown},
		{name: "empty", direction: DirectionCall, entry: "", close: 1, want: ResultUnknown},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Outcome(tc.direction, tc.entry, tc.close))
		})
	}
}

func TestEntryRoundTrip(t *testing.T) {
	entry := FormatEntry(1.08912, 1.09088, 4)
	assert.Equal(t, "1.0891–1.0909", entry)

	mid, err := EntryMidpoint(entry)
	require.NoError(t, err)
	assert.InDelta(t, 1.09, mid, 1e-12)

	_, err = EntryMidpoint("1.0–x")
	assert.ErrorIs(t, err, ErrUnparseableEntry)
}

func TestSignalJSON(t *testing.T) {
	sig := Signal{ID: "a", Symbol: "EURUSD", Direction: DirectionCall, Entry: "1–2"}

	raw, err := json.Marshal(sig)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Nil(t, m["result"])
	assert.Contains(t, m, "featureVector")

	sig.Result = ResultWin
	raw, err = json.Marshal(sig)
	require.NoError(t, err)

	var back Signal
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, ResultWin, back.Result)
}

func TestSignalPending(t *testing.T) {
	var s Signal
	assert.False(t, s.Pending(), "no expiry means nothing to resolve")
}

func TestLearnerStateClone(t *testing.T) {
	s := DefaultLearnerState(0.05)
	c := s.Clone()
	c.Weights[FeatureBOS] = 1
	assert.Equal(t, 0.0, s.Weights[FeatureBOS])
	assert.Len(t, s.Weights, 6)
}
