package usecase

import (
	"context"
	"errors"
	"fmt"

	"SigPull/internal/domain/models"
	drepo "SigPull/internal/domain/repository"
	applogger "SigPull/pkg/logger"
)

// TickSink is what the collector forwards ticks to.
type TickSink interface {
	Process(ctx context.Context, t models.Tick) error
}

var errStreamClosed = errors.New("tick stream closed")

// TickCollector pumps one live stream into a sink. Run returns when the stream
// fails so a supervisor can reconnect it.
type TickCollector struct {
	stream  drepo.TickStream
	symbols []string
	sink    TickSink
	metrics drepo.Metrics
	log     *applogger.Logger
}

func NewTickCollector(stream drepo.TickStream, symbols []string, sink TickSink, metrics drepo.Metrics, lgr *applogger.Logger) *TickCollector {
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	if lgr == nil {
		lgr = applogger.Nop()
	}
	return &TickCollector{stream: stream, symbols: symbols, sink: sink, metrics: metrics, log: lgr.With("collector")}
}

// IsConnected returns true if the stream is connected.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Run connects, subscribes and consumes until ctx ends or the stream fails.
func (c *TickCollector) Run(ctx context.Context) error {
	if len(c.symbols) == 0 {
		<-ctx.Done()
		return nil
	}
	defer c.stream.Close()

	if err := c.stream.Connect(ctx); err != nil {
		return fmt.Errorf("%s connect: %w", c.stream.Name(), err)
	}
	if err := c.stream.Subscribe(ctx, c.symbols); err != nil {
		return fmt.Errorf("%s subscribe: %w", c.stream.Name(), err)
	}
	c.log.Info("stream subscribed", applogger.String("stream", c.stream.Name()), applogger.Strings("symbols", c.symbols))

	ticks, errs := c.stream.Read(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			if err == nil {
				err = errStreamClosed
			}
			c.metrics.RecordError("stream")
			return fmt.Errorf("%s read: %w", c.stream.Name(), err)
		case t, ok := <-ticks:
			if !ok {
				return errStreamClosed
			}
			// A tick the sink rejects is dropped; the stream keeps going.
			if err := c.sink.Process(ctx, t); err != nil {
				c.log.Debug("tick dropped", applogger.Symbol(t.Symbol), applogger.Error(err))
			}
		}
	}
}
