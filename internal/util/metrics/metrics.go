package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "artifactview"

// Metrics holds the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	backendDuration *prometheus.HistogramVec
	viewResults     *prometheus.CounterVec
	logBytes        prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Duration of build backend requests by operation and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
		viewResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_results_total",
			Help:      "View results by view and outcome.",
		}, []string{"view", "outcome"}),
		logBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_bytes_served_total",
			Help:      "Build log bytes returned to clients.",
		}),
	}
	reg.MustRegister(m.backendDuration, m.viewResults, m.logBytes)
	return m
}

// ObserveBackend records one backend request.
func (m *Metrics) ObserveBackend(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.backendDuration.WithLabelValues(op, outcome).Observe(d.Seconds())
}

// CountView records the outcome of one view call.
func (m *Metrics) CountView(view, outcome string) {
	if m == nil {
		return
	}
	m.viewResults.WithLabelValues(view, outcome).Inc()
}

// AddLogBytes records log bytes sent to a client.
func (m *Metrics) AddLogBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.logBytes.Add(float64(n))
}
