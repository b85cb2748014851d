package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes relay metrics.
type Collector struct {
	sessionsActive      prometheus.Gauge
	participantsActive  prometheus.Gauge
	participantsTotal   prometheus.Counter
	envelopesRelayed    *prometheus.CounterVec
	connectionDurations prometheus.Histogram
}

// NewCollector registers the relay metric set with the default registry.
func NewCollector() *Collector {
	return &Collector{
		sessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "camsync_sessions_active",
			Help: "Number of sessions with at least one connected participant",
		}),

		participantsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "camsync_participants_active",
			Help: "Number of currently connected participants",
		}),

		participantsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "camsync_participants_total",
			Help: "Total number of participant connections accepted",
		}),

		envelopesRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "camsync_envelopes_relayed_total",
			Help: "Total number of envelopes delivered to subscribers",
		}, []string{"type"}),

		connectionDurations: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "camsync_connection_duration_seconds",
			Help:    "Duration of participant connections",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

func (c *Collector) RecordSessionOpened() {
	c.sessionsActive.Inc()
}

func (c *Collector) RecordSessionClosed() {
	c.sessionsActive.Dec()
}

func (c *Collector) RecordParticipantJoined() {
	c.participantsActive.Inc()
	c.participantsTotal.Inc()
}

func (c *Collector) RecordParticipantLeft() {
	c.participantsActive.Dec()
}

func (c *Collector) RecordEnvelopeRelayed(envelopeType string) {
	c.envelopesRelayed.WithLabelValues(envelopeType).Inc()
}

// RecordConnectionDuration observes how long a participant stayed connected.
func (c *Collector) RecordConnectionDuration(seconds float64) {
	c.connectionDurations.Observe(seconds)
}
