package synthetic

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"SigPull/internal/domain/models"

	"github.com/shopspring/decimal"
)

const source = "synthetic"

// profile is the price shape used for one symbol.
type profile struct {
	base   float64
	spread float64 // full width of one step's noise
	places int32
	maxQty float64
}

func profileFor(symbol string) profile {
	switch {
	case strings.Contains(symbol, "BTC"):
		return profile{base: 110000, spread: 200, places: 0, maxQty: 1}
	case strings.HasPrefix(symbol, "EUR"):
		return profile{base: 1.09, spread: 0.0018, places: 4, maxQty: 100}
	default:
		return profile{base: 1.0, spread: 0.0018, places: 4, maxQty: 100}
	}
}

// reversion pulls the walk back toward the base price each step.
const reversion = 0.1

// Generator produces a mean-reverting random walk per symbol for instruments
// that have no live feed yet.
type Generator struct {
	mu   sync.Mutex
	rng  *rand.Rand
	last map[string]float64
}

func New(seed uint64) *Generator {
	return &Generator{
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		last: make(map[string]float64),
	}
}

// Tick returns the next simulated trade for symbol at now.
func (g *Generator) Tick(symbol string, now time.Time) models.Tick {
	p := profileFor(symbol)

	g.mu.Lock()
	prev, ok := g.last[symbol]
	if !ok {
		prev = p.base
	}
	noise := (g.rng.Float64() - 0.5) * p.spread
	qty := g.rng.Float64() * p.maxQty
	next := prev + noise + (p.base-prev)*reversion
	next = decimal.NewFromFloat(next).Round(p.places).InexactFloat64()
	if next <= 0 {
		next = p.base
	}
	g.last[symbol] = next
	g.mu.Unlock()

	return models.Tick{
		Symbol: symbol,
		Price:  next,
		Qty:    qty,
		Time:   now.Unix(),
		Source: source,
	}
}
