// Package metrics exposes Prometheus counters for triaged reviews.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/asthma-review/internal/triage"
)

const namespace = "asthma_review"

// Recorder counts reviews, findings and applied overrides on its own registry.
type Recorder struct {
	registry      *prometheus.Registry
	reviews       *prometheus.CounterVec
	findings      *prometheus.CounterVec
	notes         *prometheus.CounterVec
	publishErrors prometheus.Counter
}

// New creates a Recorder with every counter registered. Escalation labels are
// pre-initialised so a fresh process reports zeros rather than nothing.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_total",
			Help:      "Reviews triaged, by final escalation.",
		}, []string{"escalation"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Rule findings fired, by severity and finding text.",
		}, []string{"severity", "finding"}),
		notes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overrides_total",
			Help:      "Aggregation overrides applied, by note.",
		}, []string{"note"}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Review results that could not be published.",
		}),
	}

	r.registry.MustRegister(r.reviews, r.findings, r.notes, r.publishErrors)

	for _, e := range triage.Escalations {
		r.reviews.WithLabelValues(string(e))
	}
	for _, rule := range triage.Rules() {
		r.findings.WithLabelValues(string(rule.Severity), rule.Finding)
	}
	return r
}

// Observe records one triage result.
func (r *Recorder) Observe(res triage.TriageResult) {
	r.reviews.WithLabelValues(string(res.Escalation)).Inc()
	for _, f := range res.AmberTriggers {
		r.findings.WithLabelValues(string(triage.SeverityAmber), f).Inc()
	}
	for _, f := range res.RedTriggers {
		r.findings.WithLabelValues(string(triage.SeverityRed), f).Inc()
	}
	for _, n := range res.Notes {
		r.notes.WithLabelValues(n).Inc()
	}
}

// PublishFailed counts a result that did not reach the broker.
func (r *Recorder) PublishFailed() {
	r.publishErrors.Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
