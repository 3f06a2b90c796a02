package transport

import "github.com/prometheus/client_golang/prometheus"

// Metrics wires the mesh's send/receive counts into Prometheus, the
// domain-stack observability surface SPEC_FULL.md §2 calls for at the
// transport boundary (the layer the original instruments with its own
// message-count tallies in node_controller.c's stats dump).
type Metrics struct {
	FramesSent     *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	BytesSent      prometheus.Counter
	BytesReceived  prometheus.Counter
}

// NewMetrics registers the mesh's counters against reg. Pass
// prometheus.DefaultRegisterer to expose them on the process-wide
// /metrics handler.
func NewMetrics(reg prometheus.Registerer, node string) *Metrics {
	m := &Metrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "dme",
			Subsystem:   "transport",
			Name:        "frames_sent_total",
			Help:        "Frames written to a peer connection, labeled by destination node.",
			ConstLabels: prometheus.Labels{"node": node},
		}, []string{"to"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "dme",
			Subsystem:   "transport",
			Name:        "frames_received_total",
			Help:        "Frames read from a peer connection, labeled by source node.",
			ConstLabels: prometheus.Labels{"node": node},
		}, []string{"from"}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "dme",
			Subsystem:   "transport",
			Name:        "bytes_sent_total",
			Help:        "Payload bytes written across all peer connections.",
			ConstLabels: prometheus.Labels{"node": node},
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "dme",
			Subsystem:   "transport",
			Name:        "bytes_received_total",
			Help:        "Payload bytes read across all peer connections.",
			ConstLabels: prometheus.Labels{"node": node},
		}),
	}
	reg.MustRegister(m.FramesSent, m.FramesReceived, m.BytesSent, m.BytesReceived)
	return m
}
