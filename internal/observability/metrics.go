package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the gateway.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	CoachingEvents    *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	RateLimited       prometheus.Counter
	CompactionLatency prometheus.Histogram
	AnalysisLatency   prometheus.Histogram

	latency *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active coaching sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		CoachingEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coaching_events_total",
			Help:      "Coaching events by kind and delivery outcome.",
		}, []string{"kind", "outcome"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Completion provider errors by provider and operation.",
		}, []string{"provider", "op"}),
		RateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-identity rate limiter.",
		}),
		CompactionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compaction_latency_ms",
			Help:      "Latency of one history compaction in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000},
		}),
		AnalysisLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deep_analysis_latency_ms",
			Help:      "Latency of one deep-analysis completion call in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000},
		}),
		latency: newStageWindow(256),
	}
}

func (m *Metrics) ObserveProviderError(provider, op string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, op).Inc()
}

func (m *Metrics) ObserveCoachingEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.CoachingEvents.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveCompaction(d time.Duration) {
	if m == nil {
		return
	}
	m.CompactionLatency.Observe(float64(d.Milliseconds()))
	m.latency.Observe("compaction", float64(d.Milliseconds()))
}

func (m *Metrics) ObserveAnalysis(d time.Duration) {
	if m == nil {
		return
	}
	m.AnalysisLatency.Observe(float64(d.Milliseconds()))
	m.latency.Observe("deep_analysis", float64(d.Milliseconds()))
}

func (m *Metrics) ObserveTriggerScan(d time.Duration) {
	if m == nil {
		return
	}
	m.latency.Observe("trigger_scan", float64(d.Microseconds())/1000.0)
}

// LatencySnapshot returns percentile stats over the recent latency window.
func (m *Metrics) LatencySnapshot() StageSnapshot {
	if m == nil {
		return StageSnapshot{}
	}
	return m.latency.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
