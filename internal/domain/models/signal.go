package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
)

// Result is the terminal outcome of a signal. The zero value means pending.
type Result string

const (
	ResultPending Result = ""
	ResultWin     Result = "WIN"
	ResultLoss    Result = "LOSS"
	ResultUnknown Result = "UNKNOWN"
)

func (r Result) Terminal() bool { return r != ResultPending }

// MarshalJSON encodes a pending result as null.
func (r Result) MarshalJSON() ([]byte, error) {
	if r == ResultPending {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

func (r *Result) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = ResultPending
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*r = Result(s)
	return nil
}

// EntrySeparator separates the low and high bound of an entry range.
const EntrySeparator = "–"

var ErrUnparseableEntry = errors.New("unparseable entry range")

// Signal is a directional call with a confidence score and an expiry.
// Result is written exactly once by the resolver.
type Signal struct {
	ID         string        `json:"id"`
	Symbol     string        `json:"symbol"`
	Market     string        `json:"market,omitempty"`
	Direction  Direction     `json:"direction"`
	Entry      string        `json:"entry"`
	Confidence int           `json:"confidence"`
	Time       time.Time     `json:"time_iso"`
	Expiry     time.Time     `json:"expiry_iso"`
	Features   FeatureVector `json:"featureVector"`
	Notes      string        `json:"notes,omitempty"`
	Result     Result        `json:"result"`
	FinalPrice float64       `json:"final_price,omitempty"`
}

// Pending reports a signal that still waits for resolution.
func (s Signal) Pending() bool {
	return !s.Result.Terminal() && !s.Expiry.IsZero()
}

// FormatEntry renders "low–high" rounded to places decimals.
func FormatEntry(low, high float64, places int32) string {
	return decimal.NewFromFloat(low).StringFixed(places) + EntrySeparator + decimal.NewFromFloat(high).StringFixed(places)
}

// EntryMidpoint parses "low–high" (thousands separators allowed) and returns the midpoint.
func EntryMidpoint(entry string) (float64, error) {
	parts := strings.Split(entry, EntrySeparator)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrUnparseableEntry, entry)
	}

	var bounds [2]decimal.Decimal
	for i, p := range parts {
		d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(p), ",", ""))
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrUnparseableEntry, entry)
		}
		bounds[i] = d
	}

	mid, _ := bounds[0].Add(bounds[1]).Div(decimal.NewFromInt(2)).Float64()
	return mid, nil
}

// Outcome compares the resolved close against the entry midpoint.
// CALL wins at or above the midpoint, PUT wins at or below it.
func Outcome(direction Direction, entry string, close float64) Result {
	mid, err := EntryMidpoint(entry)
	if err != nil {
		return ResultUnknown
	}

	var won bool
	switch direction {
	case DirectionCall:
		won = close >= mid
	case DirectionPut:
		won = close <= mid
	default:
		return ResultUnknown
	}
	if won {
		return ResultWin
	}
	return ResultLoss
}

// ResultUpdate is the terminal write for a signal.
type ResultUpdate struct {
	Result     Result    `json:"result"`
	FinalPrice float64   `json:"final_price"`
	ResolvedAt time.Time `json:"resolved_at"`
}
