package usecase

import (
	"context"
	"sort"
	"sync"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
)

// BarAggregator owns the per-symbol 1-second bar history. It is the only
// writer; everything else reads copies through the BarReader methods.
type BarAggregator struct {
	capacity int
	metrics  domrepo.Metrics

	mu     sync.RWMutex
	series map[string]*barRing
}

// barRing is a bounded FIFO of bars with its own lock.
type barRing struct {
	mu   sync.RWMutex
	buf  []models.Bar
	head int
	n    int
}

func NewBarAggregator(capacity int, metrics domrepo.Metrics) *BarAggregator {
	if capacity <= 0 {
		capacity = 2000
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &BarAggregator{capacity: capacity, metrics: metrics, series: make(map[string]*barRing)}
}

// AppendTick folds a trade into the symbol's bar for its second. A tick for a
// new second opens a bar; a tick older than the last bar is folded into the
// last bar so bucket times stay strictly increasing.
func (a *BarAggregator) AppendTick(symbol string, price, qty float64, sec int64) {
	r := a.ring(symbol)

	r.mu.Lock()
	if last := r.last(); last != nil && sec <= last.Time {
		last.Close = price
		last.High = max(last.High, price)
		last.Low = min(last.Low, price)
		last.Volume += qty
	} else {
		r.push(a.capacity, models.Bar{Time: sec, Open: price, High: price, Low: price, Close: price, Volume: qty})
	}
	n := r.n
	r.mu.Unlock()

	a.metrics.RecordBars(symbol, n)
}

// Process applies a tick. It lets the aggregator sit behind the ingest pipeline.
func (a *BarAggregator) Process(_ context.Context, t models.Tick) error {
	a.AppendTick(t.Symbol, t.Price, t.Qty, t.Time)
	return nil
}

func (a *BarAggregator) Snapshot(symbol string, n int) []models.Bar {
	r := a.lookup(symbol)
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyTail(n)
}

func (a *BarAggregator) Last(symbol string) (models.Bar, bool) {
	r := a.lookup(symbol)
	if r == nil {
		return models.Bar{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if last := r.last(); last != nil {
		return *last, true
	}
	return models.Bar{}, false
}

func (a *BarAggregator) Len(symbol string) int {
	r := a.lookup(symbol)
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.n
}

// Symbols lists every symbol that has received a tick, sorted.
func (a *BarAggregator) Symbols() []string {
	a.mu.RLock()
	out := make([]string, 0, len(a.series))
	for s := range a.series {
		out = append(out, s)
	}
	a.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Repair drops bars with a non-positive close or a time not after the bar
// kept before it. It returns how many bars were removed.
func (a *BarAggregator) Repair(symbol string) int {
	r := a.lookup(symbol)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.copyTail(0)
	kept := all[:0]
	for _, b := range all {
		if b.Close <= 0 {
			continue
		}
		if len(kept) > 0 && b.Time <= kept[len(kept)-1].Time {
			continue
		}
		kept = append(kept, b)
	}
	removed := r.n - len(kept)
	if removed > 0 {
		r.reset(kept)
	}
	return removed
}

func (a *BarAggregator) ring(symbol string) *barRing {
	if r := a.lookup(symbol); r != nil {
		return r
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.series[symbol]
	if !ok {
		r = &barRing{}
		a.series[symbol] = r
	}
	return r
}

func (a *BarAggregator) lookup(symbol string) *barRing {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.series[symbol]
}

func (r *barRing) last() *models.Bar {
	if r.n == 0 {
		return nil
	}
	return &r.buf[(r.head+r.n-1)%len(r.buf)]
}

func (r *barRing) push(capacity int, b models.Bar) {
	if len(r.buf) < capacity {
		// still growing; head stays at zero
		r.buf = append(r.buf, b)
		r.n++
		return
	}
	r.buf[r.head] = b
	r.head = (r.head + 1) % len(r.buf)
}

// copyTail copies the newest n bars oldest first; n <= 0 copies all.
func (r *barRing) copyTail(n int) []models.Bar {
	if n <= 0 || n > r.n {
		n = r.n
	}
	out := make([]models.Bar, n)
	start := r.n - n
	for i := range out {
		out[i] = r.buf[(r.head+start+i)%len(r.buf)]
	}
	return out
}

func (r *barRing) reset(bars []models.Bar) {
	buf := make([]models.Bar, len(bars), cap(r.buf))
	copy(buf, bars)
	r.buf, r.head, r.n = buf, 0, len(bars)
}

var _ domrepo.BarReader = (*BarAggregator)(nil)
