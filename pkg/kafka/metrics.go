package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once
	registerer  prometheus.Registerer = prometheus.DefaultRegisterer

	producerMsgs    *prometheus.CounterVec
	producerBytes   *prometheus.CounterVec
	producerLatency *prometheus.HistogramVec

	consumerMsgs    *prometheus.CounterVec
	consumerLatency *prometheus.HistogramVec
	consumerQueue   *prometheus.GaugeVec
)

// SetMetricsRegisterer swaps the registerer used for kafka metrics.
// It must be called before the first producer or consumer is created.
func SetMetricsRegisterer(reg prometheus.Registerer) { registerer = reg }

func initMetrics() {
	metricsOnce.Do(func() {
		producerMsgs = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sigpull_kafka_producer_messages_total", Help: "Messages published to Kafka"},
			[]string{"topic", "result"},
		)
		producerBytes = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sigpull_kafka_producer_bytes_total", Help: "Payload bytes published"},
			[]string{"topic"},
		)
		producerLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "sigpull_kafka_producer_publish_seconds", Help: "Publish latency", Buckets: prometheus.DefBuckets},
			[]string{"topic"},
		)
		consumerMsgs = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sigpull_kafka_consumer_messages_total", Help: "Messages handled by the consumer"},
			[]string{"topic", "result"},
		)
		consumerLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "sigpull_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
		consumerQueue = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "sigpull_kafka_consumer_queue_depth", Help: "Messages waiting per worker queue"},
			[]string{"topic"},
		)
		registerer.MustRegister(producerMsgs, producerBytes, producerLatency, consumerMsgs, consumerLatency, consumerQueue)
	})
}

func observePublish(topic string, bytes int64, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMsgs.WithLabelValues(topic, result).Add(float64(count))
	producerBytes.WithLabelValues(topic).Add(float64(bytes))
	producerLatency.WithLabelValues(topic).Observe(dur.Seconds())
}

func observeHandle(topic string, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	consumerMsgs.WithLabelValues(topic, result).Inc()
	consumerLatency.WithLabelValues(topic).Observe(dur.Seconds())
}
