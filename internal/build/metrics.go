package build

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts pipeline runs. A nil *Metrics disables collection; every
// method is nil-safe so callers never have to check.
type Metrics struct {
	started   prometheus.Counter
	succeeded prometheus.Counter
	failed    prometheus.Counter
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "builds_started_total",
			Help: "Number of build pipelines started.",
		}),
		succeeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "builds_succeeded_total",
			Help: "Number of build pipelines that produced an image.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "builds_failed_total",
			Help: "Number of build pipelines that ended in failure.",
		}),
	}
	reg.MustRegister(m.started, m.succeeded, m.failed)
	return m
}

func (m *Metrics) BuildStarted() {
	if m != nil {
		m.started.Inc()
	}
}

func (m *Metrics) BuildSucceeded() {
	if m != nil {
		m.succeeded.Inc()
	}
}

func (m *Metrics) BuildFailed() {
	if m != nil {
		m.failed.Inc()
	}
}
