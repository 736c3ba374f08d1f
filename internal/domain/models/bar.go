package models

// Tick is a single trade print delivered by a feed.
type Tick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Qty    float64 `json:"qty"`
	// Time is the trade time in unix seconds.
	Time   int64  `json:"time"`
	Source string `json:"source,omitempty"`
}

// Bar is one fixed-interval OHLCV bucket. Time is the bucket start in unix seconds.
type Bar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Body is close minus open; negative for bearish bars.
func (b Bar) Body() float64 { return b.Close - b.Open }

func (b Bar) Range() float64 { return b.High - b.Low }

func (b Bar) Bullish() bool { return b.Close > b.Open }

func (b Bar) Bearish() bool { return b.Close < b.Open }

// UpperWick and LowerWick measure the shadows outside the body.
func (b Bar) UpperWick() float64 { return b.High - max(b.Open, b.Close) }

func (b Bar) LowerWick() float64 { return min(b.Open, b.Close) - b.Low }
