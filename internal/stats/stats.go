// Package stats exposes the session counters and gauges a running mirror
// endpoint wants on a /metrics scrape: frames emitted per kind, frames
// dropped (backpressure or encode failure), current reconnect delay, last
// observed latency, and resync count.
//
// Grounded on the domain stack's prometheus/client_golang dependency;
// there is no teacher precedent for metrics (geotiff2pmtiles is a batch
// CLI, not a long-running service), so the counter/gauge shapes below
// follow prometheus/client_golang's own promauto conventions directly.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds every metric one mirror endpoint (sender or receiver)
// reports. Callers register it against their own prometheus.Registerer so
// multiple sessions in one process don't collide.
type Recorder struct {
	FramesSent       *prometheus.CounterVec
	FramesDropped    prometheus.Counter
	ReconnectDelayMs prometheus.Gauge
	LastLatencyMs    prometheus.Gauge
	ResyncTotal      prometheus.Counter
}

// New registers and returns a Recorder. namespace/subsystem let a process
// running both a sender and a receiver distinguish their metric families.
func New(reg prometheus.Registerer, namespace, subsystem string) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		FramesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "Frames written to the transport, by kind.",
		}, []string{"kind"}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Frames not sent: rejected by a full outbound queue, or abandoned after an encode failure.",
		}),
		ReconnectDelayMs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconnect_delay_ms",
			Help:      "Current exponential backoff delay before the next connect attempt.",
		}),
		LastLatencyMs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_latency_ms",
			Help:      "now_ms - ts_ms of the most recently accepted frame.",
		}),
		ResyncTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resync_total",
			Help:      "Resync requests sent after a sequence gap, a malformed or undecodable frame, or a Delta before the first Keyframe.",
		}),
	}
}
