package broadcast

import (
	"context"
	"errors"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	"SigPull/pkg/logger"
)

// Fanout publishes to every sink and joins their errors. One failing sink does
// not stop delivery to the others.
type Fanout []domrepo.Broadcaster

func (f Fanout) Publish(ctx context.Context, e models.Event) error {
	var errs []error
	for _, b := range f {
		if b == nil {
			continue
		}
		if err := b.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink turns collected error logs into log events so clients see them.
type LogSink struct {
	bus domrepo.Broadcaster
}

func NewLogSink(bus domrepo.Broadcaster) *LogSink { return &LogSink{bus: bus} }

var _ logger.Sink = (*LogSink)(nil)

func (s *LogSink) PublishLogs(ctx context.Context, entries []logger.AggregatedLogEntry) error {
	var errs []error
	for _, e := range entries {
		if err := s.bus.Publish(ctx, models.Event{Type: models.EventLog, Data: e}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
