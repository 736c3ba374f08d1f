package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	WSClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sigpull",
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected websocket clients",
		},
	)

	WSControl = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sigpull",
			Subsystem: "ws",
			Name:      "control_messages_total",
			Help:      "Websocket control messages by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	EventsBroadcast = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sigpull",
			Subsystem: "broadcast",
			Name:      "events_total",
			Help:      "Events handed to broadcast sinks",
		},
		[]string{"sink", "type"},
	)

	ClockOffset = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sigpull",
			Subsystem: "timesync",
			Name:      "offset_milliseconds",
			Help:      "Last measured offset between reference time and the local clock",
		},
	)
)

// Register adds the realtime collectors to reg once per process.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	once.Do(func() {
		reg.MustRegister(WSClients, WSControl, EventsBroadcast, ClockOffset)
	})
}
