package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	pkgkafka "SigPull/pkg/kafka"
	"SigPull/pkg/util"
)

// KafkaTicksHandler applies ticks from the ticks topic to the bar store.
type KafkaTicksHandler struct {
	topic   string
	bars    *BarAggregator
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, bars *BarAggregator, metrics domrepo.Metrics) *KafkaTicksHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &KafkaTicksHandler{topic: topic, bars: bars, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// Handle decodes one tick. Malformed payloads are returned as errors so the
// consumer can dead-letter them.
func (h *KafkaTicksHandler) Handle(_ context.Context, b []byte) error {
	var t models.Tick
	if err := json.Unmarshal(b, &t); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode tick: %w", err)
	}
	if t.Symbol == "" {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode tick: empty symbol")
	}
	t.Time = util.NormalizeUnix(t.Time)

	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(t.Time, 0)).Seconds())
	h.bars.AppendTick(t.Symbol, t.Price, t.Qty, t.Time)
	h.metrics.RecordTick(t.Symbol, t.Source, t.Price)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
