package broadcast

import (
	"context"
	"fmt"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	rtmetrics "SigPull/internal/service/metrics"
)

// EventProducer is the part of the kafka producer the broadcaster needs.
type EventProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaBroadcaster mirrors events onto a topic for downstream consumers.
// Signal and result events are keyed by symbol, the rest by event type.
type KafkaBroadcaster struct {
	producer EventProducer
	topic    string
}

func NewKafkaBroadcaster(p EventProducer, topic string) *KafkaBroadcaster {
	return &KafkaBroadcaster{producer: p, topic: topic}
}

var _ domrepo.Broadcaster = (*KafkaBroadcaster)(nil)

func (k *KafkaBroadcaster) Publish(ctx context.Context, e models.Event) error {
	if err := k.producer.Publish(ctx, k.topic, eventKey(e), e); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}
	rtmetrics.EventsBroadcast.WithLabelValues("kafka", string(e.Type)).Inc()
	return nil
}

func eventKey(e models.Event) []byte {
	switch d := e.Data.(type) {
	case models.Signal:
		return []byte(d.Symbol)
	case *models.Signal:
		return []byte(d.Symbol)
	case models.ResultEvent:
		return []byte(d.Symbol)
	}
	return []byte(e.Type)
}
