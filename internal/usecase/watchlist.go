package usecase

import (
	"SigPull/internal/domain/models"
	"SigPull/pkg/util"
)

const (
	FeedLive      = "live"
	FeedSynthetic = "synthetic"
)

// Watchlist is the ordered set of watched pairs with their market type.
// The first category that lists a symbol wins.
type Watchlist struct {
	pairs []models.Pair
	index map[string]int
}

// NewWatchlist normalises and de-duplicates the symbols of each market in
// order. live reports whether a symbol has a real feed; nil means none do.
func NewWatchlist(markets []MarketSymbols, live func(symbol string) bool) *Watchlist {
	w := &Watchlist{index: make(map[string]int)}
	for _, m := range markets {
		for _, sym := range util.NormalizeSymbols(m.Symbols) {
			if _, dup := w.index[sym]; dup {
				continue
			}
			feed := FeedSynthetic
			if live != nil && live(sym) {
				feed = FeedLive
			}
			w.index[sym] = len(w.pairs)
			w.pairs = append(w.pairs, models.Pair{Symbol: sym, Market: m.Market, Feed: feed, Available: true})
		}
	}
	return w
}

// MarketSymbols is one watch-list category.
type MarketSymbols struct {
	Market  models.MarketType
	Symbols []string
}

func (w *Watchlist) Pairs() []models.Pair {
	out := make([]models.Pair, len(w.pairs))
	copy(out, w.pairs)
	return out
}

func (w *Watchlist) Symbols() []string {
	out := make([]string, len(w.pairs))
	for i, p := range w.pairs {
		out[i] = p.Symbol
	}
	return out
}

// Lookup resolves a raw symbol to its pair.
func (w *Watchlist) Lookup(symbol string) (models.Pair, bool) {
	i, ok := w.index[util.NormalizeSymbol(symbol)]
	if !ok {
		return models.Pair{}, false
	}
	return w.pairs[i], true
}

// Live lists the symbols served by a real feed.
func (w *Watchlist) Live() []string {
	var out []string
	for _, p := range w.pairs {
		if p.Feed == FeedLive {
			out = append(out, p.Symbol)
		}
	}
	return out
}

func (w *Watchlist) Len() int { return len(w.pairs) }
