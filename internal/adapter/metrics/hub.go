package metrics

import "github.com/prometheus/client_golang/prometheus"

// HubMetrics holds Prometheus metrics for the connection registry, the
// subscription index and the broadcast dispatcher.
type HubMetrics struct {
	ActiveConnections prometheus.Gauge
	ActiveChannels    prometheus.Gauge
	ControlFrames     *prometheus.CounterVec
	ProtocolErrors    *prometheus.CounterVec
	Broadcasts        *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	BroadcastDuration prometheus.Histogram
	PayloadBytes      prometheus.Histogram
}

// NewHubMetrics creates and registers hub metrics on the given registry.
func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_connections",
			Help:      "Number of registered connections.",
		}),
		ActiveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_channels",
			Help:      "Number of channels with at least one subscriber.",
		}),
		ControlFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "control_frames_total",
			Help:      "Total number of applied control frames, by action.",
		}, []string{"action"}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "protocol_errors_total",
			Help:      "Total number of ignored control frames, by reason.",
		}, []string{"reason"}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Total number of broadcast calls, by scope.",
		}, []string{"scope"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "deliveries_total",
			Help:      "Total number of per-connection deliveries, by result.",
		}, []string{"result"}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcast_duration_seconds",
			Help:      "Duration of a broadcast call across all recipients.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		PayloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "payload_bytes",
			Help:      "Size of serialized broadcast payloads.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 7),
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.ActiveChannels, m.ControlFrames, m.ProtocolErrors,
		m.Broadcasts, m.Deliveries, m.BroadcastDuration, m.PayloadBytes)
	return m
}
