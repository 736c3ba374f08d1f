package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	pkgch "SigPull/pkg/clickhouse"
	pkgkafka "SigPull/pkg/kafka"
)

// CHTickArchive writes raw ticks to ClickHouse.
type CHTickArchive struct {
	db    conn
	table string
}

func NewCHTickArchive(ch *pkgch.Client) *CHTickArchive {
	return &CHTickArchive{db: ch.DB(), table: ch.Database() + "." + ticksTable}
}

// StoreBatch inserts ticks using multi-row VALUES in chunks.
func (s *CHTickArchive) StoreBatch(ctx context.Context, ticks []models.Tick) error {
	const chunkSize = 2000
	for start := 0; start < len(ticks); start += chunkSize {
		end := min(start+chunkSize, len(ticks))
		q, args := tickInsert(s.table, ticks[start:end])
		if q == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert ticks: %w", err)
		}
	}
	return nil
}

func tickInsert(table string, ticks []models.Tick) (string, []any) {
	values := make([]string, 0, len(ticks))
	args := make([]any, 0, len(ticks)*5)
	for _, t := range ticks {
		if t.Symbol == "" || t.Time == 0 {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?)")
		args = append(args, time.Unix(t.Time, 0).UTC(), t.Symbol, t.Price, t.Qty, t.Source)
	}
	if len(values) == 0 {
		return "", nil
	}
	return fmt.Sprintf("INSERT INTO %s (ts, symbol, price, qty, source) VALUES %s", table, strings.Join(values, ",")), args
}

// KafkaTickPublisher puts ticks on the ticks topic keyed by symbol, so one
// symbol always lands on one partition and keeps its order.
type KafkaTickPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaTickPublisher(producer *pkgkafka.Producer, topic string) *KafkaTickPublisher {
	return &KafkaTickPublisher{producer: producer, topic: topic}
}

func (p *KafkaTickPublisher) Publish(ctx context.Context, t models.Tick) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.Symbol), t)
}

func (p *KafkaTickPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var (
	_ domrepo.TickArchive   = (*CHTickArchive)(nil)
	_ domrepo.TickPublisher = (*KafkaTickPublisher)(nil)
)
