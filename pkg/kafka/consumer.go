package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	applogger "SigPull/pkg/logger"
	"SigPull/pkg/runner"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic per registered handler. Messages of one partition are
// always handled by the same worker, in offset order.
type Consumer struct {
	cfg       *ConsumerConfig
	log       *applogger.Logger
	handlers  map[string]MessageHandler
	hook      ConsumerHook
	newReader func(topic string) Reader
	dlq       Writer
}

type job struct {
	reader  Reader
	handler MessageHandler
	msg     kafka.Message
}

func NewConsumer(lgr *applogger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "default",
		WorkerCount: 1,
		BufferSize:  100,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if lgr == nil {
		lgr = applogger.Nop()
	}
	initMetrics()

	c := &Consumer{
		cfg:      cfg,
		log:      lgr.With("kafka_consumer"),
		handlers: make(map[string]MessageHandler),
		hook:     NoopHook{},
	}
	c.newReader = func(topic string) Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

// RegisterHandler registers a handler for its topic. A second handler for the same topic is ignored.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.log.Warn("handler already registered", applogger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// SetHook installs lifecycle hooks around message handling.
func (c *Consumer) SetHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Run consumes until ctx is cancelled or a reader fails. It returns nil on cancellation
// so that a supervisor restarts it only after real failures.
func (c *Consumer) Run(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queues := make([]chan job, c.cfg.WorkerCount)
	var workers sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan job, c.cfg.BufferSize)
		workers.Add(1)
		go func(q chan job) {
			defer workers.Done()
			for j := range q {
				c.handle(ctx, j)
			}
		}(queues[i])
	}

	errCh := make(chan error, len(c.handlers))
	var readers sync.WaitGroup
	for topic, h := range c.handlers {
		r := c.newReader(topic)
		readers.Add(1)
		go func(h MessageHandler, r Reader) {
			defer readers.Done()
			defer r.Close()
			if err := c.fetch(ctx, h, r, queues); err != nil {
				errCh <- err
				cancel()
			}
		}(h, r)
		c.log.Info("consuming", applogger.String("topic", topic), applogger.String("group", c.cfg.GroupID))
	}

	readers.Wait()
	for _, q := range queues {
		close(q)
	}
	workers.Wait()

	if c.dlq != nil {
		_ = c.dlq.Close()
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (c *Consumer) fetch(ctx context.Context, h MessageHandler, r Reader, queues []chan job) error {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch %s: %w", h.Topic(), err)
		}

		q := queues[msg.Partition%len(queues)]
		select {
		case q <- job{reader: r, handler: h, msg: msg}:
			consumerQueue.WithLabelValues(h.Topic()).Set(float64(len(q)))
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, j job) {
	topic := j.handler.Topic()
	start := time.Now()

	var err error
	for attempt := 1; ; attempt++ {
		err = c.attempt(ctx, j)
		if err == nil || attempt > c.cfg.RetryMax {
			break
		}
		c.hook.OnError(ctx, topic, j.msg, j.msg.Value, err)
		select {
		case <-time.After(runner.Backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-ctx.Done():
			return
		}
	}
	observeHandle(topic, time.Since(start), err)

	if err != nil {
		c.log.Error("message dropped after retries",
			applogger.String("topic", topic),
			applogger.Int("partition", j.msg.Partition),
			applogger.Int64("offset", j.msg.Offset),
			applogger.Error(err),
		)
		if c.dlq == nil {
			// Leave the offset uncommitted; it is redelivered after a restart.
			return
		}
		if dlqErr := c.dlq.WriteMessages(ctx, kafka.Message{
			Topic:   c.cfg.DLQTopic,
			Key:     j.msg.Key,
			Value:   j.msg.Value,
			Headers: []kafka.Header{{Key: "source_topic", Value: []byte(topic)}},
		}); dlqErr != nil {
			c.log.Error("dlq write failed", applogger.String("dlq", c.cfg.DLQTopic), applogger.Error(dlqErr))
			return
		}
	}

	if cerr := j.reader.CommitMessages(ctx, j.msg); cerr != nil && ctx.Err() == nil {
		c.log.Warn("commit failed", applogger.String("topic", topic), applogger.Error(cerr))
	}
}

func (c *Consumer) attempt(ctx context.Context, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	hctx, msg, data, err := c.hook.BeforeHandle(ctx, j.handler.Topic(), j.msg, j.msg.Value)
	if err != nil {
		return err
	}
	err = j.handler.Handle(hctx, data)
	c.hook.AfterHandle(hctx, j.handler.Topic(), msg, data, err)
	return err
}
