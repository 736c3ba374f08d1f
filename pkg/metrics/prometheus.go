package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements the domain Metrics interface using Prometheus.
type Recorder struct {
	ticks       *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	bars        *prometheus.GaugeVec
	signals     *prometheus.CounterVec
	confidence  *prometheus.HistogramVec
	results     *prometheus.CounterVec
	learnerW    *prometheus.GaugeVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New registers the recorder's collectors with reg (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{Name: "sigpull_ticks_total", Help: "Ticks applied to the bar store"},
			[]string{"symbol", "source"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{Name: "sigpull_last_price", Help: "Last traded price per symbol"},
			[]string{"symbol"},
		),
		bars: f.NewGaugeVec(
			prometheus.GaugeOpts{Name: "sigpull_bars_retained", Help: "Bars currently retained per symbol"},
			[]string{"symbol"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{Name: "sigpull_signals_emitted_total", Help: "Signals emitted"},
			[]string{"symbol", "direction"},
		),
		confidence: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sigpull_signal_confidence",
				Help:    "Final confidence of emitted signals",
				Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 99},
			},
			[]string{"symbol"},
		),
		results: f.NewCounterVec(
			prometheus.CounterOpts{Name: "sigpull_signal_results_total", Help: "Resolved signal outcomes"},
			[]string{"symbol", "result"},
		),
		learnerW: f.NewGaugeVec(
			prometheus.GaugeOpts{Name: "sigpull_learner_weight", Help: "Current learner weight per feature"},
			[]string{"feature"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{Name: "sigpull_errors_total", Help: "Errors by component"},
			[]string{"component"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sigpull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordTick(symbol, source string, price float64) {
	r.ticks.WithLabelValues(symbol, source).Inc()
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordBars(symbol string, n int) {
	r.bars.WithLabelValues(symbol).Set(float64(n))
}

func (r *Recorder) RecordSignal(symbol, direction string, confidence int) {
	r.signals.WithLabelValues(symbol, direction).Inc()
	r.confidence.WithLabelValues(symbol).Observe(float64(confidence))
}

func (r *Recorder) RecordResult(symbol, result string) {
	r.results.WithLabelValues(symbol, result).Inc()
}

func (r *Recorder) RecordLearnerWeights(weights map[string]float64) {
	for k, v := range weights {
		r.learnerW.WithLabelValues(k).Set(v)
	}
}

func (r *Recorder) RecordError(component string) {
	r.errorsTotal.WithLabelValues(component).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
