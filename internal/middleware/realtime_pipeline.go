package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	applogger "SigPull/pkg/logger"
	"SigPull/pkg/util"
)

var (
	ErrEmptySymbol = errors.New("tick symbol empty")
	ErrNonFinite   = errors.New("tick price or qty not finite")
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, t models.Tick) error
}

// RealtimePipeline sits between a live stream and the tick processor.
// It validates, optionally throttles per symbol, and buffers ticks the
// downstream refused so they can be retried.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	log     *applogger.Logger
	maxRPS  int
	bufSize int
	bufCh   chan models.Tick

	mu       sync.Mutex
	stopCh   chan struct{}
	done     chan struct{}
	lastSeen map[string]time.Time // per-symbol last accepted time
	now      func() time.Time
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS caps accepted ticks per second per symbol. 0 disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer size for ticks the downstream refused.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func WithLogger(l *applogger.Logger) PipelineOption {
	return func(p *RealtimePipeline) {
		if l != nil {
			p.log = l.With("pipeline")
		}
	}
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		log:      applogger.Nop(),
		bufSize:  1000,
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.Tick, p.bufSize)
	return p
}

func (p *RealtimePipeline) Name() string { return "pipeline" }

// Start launches background retry of buffered ticks.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.stopCh != nil {
		p.mu.Unlock()
		return
	}
	stop, done := make(chan struct{}), make(chan struct{})
	p.stopCh, p.done = stop, done
	p.mu.Unlock()

	go func() {
		defer close(done)
		const minBackoff = 50 * time.Millisecond
		backoff := minBackoff
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case t := <-p.bufCh:
				if err := p.proc.Process(ctx, t); err != nil {
					p.metrics.RecordError("pipeline_flush")
					select {
					case <-time.After(backoff):
					case <-stop:
						return
					case <-ctx.Done():
						return
					}
					if backoff < 2*time.Second {
						backoff *= 2
					}
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- t:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
						p.log.Warn("buffered tick dropped", applogger.Symbol(t.Symbol), applogger.Error(err))
					}
					continue
				}
				backoff = minBackoff
			}
		}
	}()
}

// Stop halts the retry loop and waits for it to exit.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	stop, done := p.stopCh, p.done
	p.stopCh, p.done = nil, nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Buffered is the number of ticks waiting for retry.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles and forwards t, buffering it when the downstream fails.
func (p *RealtimePipeline) Process(ctx context.Context, t models.Tick) error {
	start := p.now()
	t.Symbol = util.NormalizeSymbol(t.Symbol)
	t.Time = util.NormalizeUnix(t.Time)
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(t.Symbol, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- t:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", p.now().Sub(start).Seconds())
	return nil
}

// validateTick rejects only what the bar store cannot hold. Non-positive
// prices pass and are dropped later by the repair pass.
func validateTick(t models.Tick) error {
	if t.Symbol == "" {
		return ErrEmptySymbol
	}
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || math.IsNaN(t.Qty) || math.IsInf(t.Qty, 0) {
		return fmt.Errorf("%w: %s", ErrNonFinite, t.Symbol)
	}
	return nil
}

func (p *RealtimePipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastSeen[symbol]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
