package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the bridge engine.
type Metrics struct {
	EventsProcessed    *prometheus.CounterVec
	StepsExecuted      *prometheus.CounterVec
	IssuesCreated      prometheus.Counter
	RemoteRetries      prometheus.Counter
	ProcessingDuration prometheus.Histogram
	ReportsDropped     prometheus.Counter
}

// New creates and registers all bridge metrics.
func New() *Metrics {
	return &Metrics{
		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bugbridge_events_processed_total",
			Help: "Total events processed, labelled by terminal result kind",
		}, []string{"result"}),
		StepsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bugbridge_steps_executed_total",
			Help: "Total step operations that reached the target system",
		}, []string{"kind"}),
		IssuesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bugbridge_issues_created_total",
			Help: "Total target issues created by the bridge",
		}),
		RemoteRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bugbridge_remote_retries_total",
			Help: "Total retry attempts issued against the target system",
		}),
		ProcessingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bugbridge_event_processing_seconds",
			Help:    "Wall time spent processing one event, including retries",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		ReportsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bugbridge_reports_dropped_total",
			Help: "Execution reports dropped because the publish buffer was full",
		}),
	}
}

func (m *Metrics) ObserveProcessed(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.EventsProcessed.WithLabelValues(result).Inc()
	m.ProcessingDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) IncrementStep(kind string) {
	if m == nil {
		return
	}
	m.StepsExecuted.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementIssuesCreated() {
	if m == nil {
		return
	}
	m.IssuesCreated.Inc()
}

func (m *Metrics) AddRetries(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RemoteRetries.Add(float64(n))
}

func (m *Metrics) IncrementReportsDropped() {
	if m == nil {
		return
	}
	m.ReportsDropped.Inc()
}
