package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SigPull/internal/domain/models"
	drepo "SigPull/internal/domain/repository"
)

const (
	BackendDirect = "direct"
	BackendKafka  = "kafka"
)

// TickProcessor routes ticks to the configured backend: straight into the bar
// store, or onto the ticks topic for a consumer to apply. With an archive set,
// ticks are also buffered and written in batches.
type TickProcessor struct {
	backend string
	bars    *BarAggregator
	pub     drepo.TickPublisher
	archive drepo.TickArchive
	metrics drepo.Metrics
	batchSz int

	mu      sync.Mutex
	pending []models.Tick
}

func NewTickProcessor(
	backend string,
	bars *BarAggregator,
	pub drepo.TickPublisher,
	archive drepo.TickArchive,
	metrics drepo.Metrics,
	batchSz int,
) *TickProcessor {
	if batchSz <= 0 {
		batchSz = 500
	}
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	return &TickProcessor{
		backend: backend,
		bars:    bars,
		pub:     pub,
		archive: archive,
		metrics: metrics,
		batchSz: batchSz,
	}
}

// Process handles a single tick.
func (p *TickProcessor) Process(ctx context.Context, t models.Tick) error {
	start := time.Now()

	var err error
	switch p.backend {
	case BackendKafka:
		if p.pub == nil {
			err = fmt.Errorf("%w: tick publisher", ErrMissingDependency)
		} else {
			err = p.pub.Publish(ctx, t)
		}
	case BackendDirect, "":
		p.bars.AppendTick(t.Symbol, t.Price, t.Qty, t.Time)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process tick: %w", err)
	}
	p.metrics.RecordTick(t.Symbol, t.Source, t.Price)

	if p.archive != nil {
		// The tick is already applied; an archive failure must not make the
		// caller retry it. Flush records the error.
		_ = p.buffer(ctx, t)
	}
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

func (p *TickProcessor) buffer(ctx context.Context, t models.Tick) error {
	p.mu.Lock()
	p.pending = append(p.pending, t)
	full := len(p.pending) >= p.batchSz
	p.mu.Unlock()
	if !full {
		return nil
	}
	return p.Flush(ctx)
}

// Flush writes buffered ticks to the archive. Failed batches are dropped.
func (p *TickProcessor) Flush(ctx context.Context) error {
	if p.archive == nil {
		return nil
	}
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	if err := p.archive.StoreBatch(ctx, batch); err != nil {
		p.metrics.RecordError("archive")
		return fmt.Errorf("archive %d ticks: %w", len(batch), err)
	}
	p.metrics.RecordLatency("archive_batch", time.Since(start).Seconds())
	return nil
}

// Close flushes the archive buffer and closes the publisher.
func (p *TickProcessor) Close(ctx context.Context) error {
	err := p.Flush(ctx)
	if p.pub != nil {
		if cerr := p.pub.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
