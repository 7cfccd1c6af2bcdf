// Package metrics implements the PollMetrics port with Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/releasebot/internal/domain/model"
	"github.com/ericfisherdev/releasebot/internal/domain/port/driven"
)

const namespace = "releasebot"

// Compile-time interface satisfaction check.
var _ driven.PollMetrics = (*Prometheus)(nil)

// Prometheus owns a private registry holding the poll collectors plus the Go
// runtime and process collectors.
type Prometheus struct {
	registry      *prometheus.Registry
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	polls         *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewPrometheus creates and registers all collectors.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by result.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of completed poll cycles.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_polls_total",
			Help:      "Repository polls by outcome.",
		}, []string{"outcome"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Release source failures by kind.",
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by result.",
		}, []string{"result"}),
	}

	p.registry.MustRegister(
		p.cycles,
		p.cycleDuration,
		p.polls,
		p.fetchErrors,
		p.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Pre-create label values so the series exist before the first cycle.
	for _, result := range []string{driven.CycleCompleted, driven.CycleAborted, driven.CycleSkipped} {
		p.cycles.WithLabelValues(result)
	}
	for _, outcome := range model.AllPollOutcomes {
		p.polls.WithLabelValues(string(outcome))
	}
	p.notifications.WithLabelValues("sent")
	p.notifications.WithLabelValues("failed")

	return p
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) ObserveCycle(result string, duration time.Duration) {
	p.cycles.WithLabelValues(result).Inc()
	if result == driven.CycleCompleted {
		p.cycleDuration.Observe(duration.Seconds())
	}
}

func (p *Prometheus) ObserveRepository(outcome model.PollOutcome) {
	p.polls.WithLabelValues(string(outcome)).Inc()
}

func (p *Prometheus) ObserveFetchError(kind string) {
	p.fetchErrors.WithLabelValues(kind).Inc()
}

func (p *Prometheus) ObserveDelivery(ok bool) {
	result := "failed"
	if ok {
		result = "sent"
	}
	p.notifications.WithLabelValues(result).Inc()
}
