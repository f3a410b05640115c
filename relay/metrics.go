package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	Connections     prometheus.Gauge
	Rooms           prometheus.Gauge
	Deliveries      *prometheus.CounterVec
	DroppedEvents   *prometheus.CounterVec
	Inconsistencies prometheus.Counter
	HandlerFaults   prometheus.Counter
	BroadcastFanout prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what most tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "connections",
			Help:      "Connections currently registered.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "deliveries_total",
			Help:      "Per-recipient delivery attempts by result.",
		}, []string{"result"}),
		DroppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "dropped_events_total",
			Help:      "Inbound events dropped by reason.",
		}, []string{"reason"}),
		Inconsistencies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "registry_inconsistencies_total",
			Help:      "Dangling room members removed by self-healing.",
		}),
		HandlerFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "handler_faults_total",
			Help:      "Event handlers aborted by a recovered panic.",
		}),
		BroadcastFanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "broadcast_fanout",
			Help:      "Recipients targeted per broadcast.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Connections,
			m.Rooms,
			m.Deliveries,
			m.DroppedEvents,
			m.Inconsistencies,
			m.HandlerFaults,
			m.BroadcastFanout,
		)
	}
	return m
}
