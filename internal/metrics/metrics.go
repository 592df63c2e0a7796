// Package metrics wires codegate's request and pipeline counters into
// Prometheus, exposed at /metrics. client_golang sits in the teacher's
// go.mod as an untouched indirect dependency with zero call sites
// anywhere in the retrieved pack; this is where it earns its place — a
// security gateway's operators need to see redaction/alert volume and
// per-provider request rates without grepping logs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/histogram codegate's request path updates.
// Construct one with New and register its Handler alongside the rest of
// the control-plane routes.
type Metrics struct {
	MuxRequests      *prometheus.CounterVec
	MuxErrors        *prometheus.CounterVec
	SecretsRedacted  prometheus.Counter
	PIIRedacted      *prometheus.CounterVec
	BadPackagesFound prometheus.Counter
	PipelineLatency  *prometheus.HistogramVec
}

// New registers every metric against a fresh registry and returns both
// the Metrics handle and an http.Handler serving it in the Prometheus
// exposition format.
func New() (*Metrics, http.Handler) {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MuxRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codegate",
			Name:      "mux_requests_total",
			Help:      "Total requests routed through the muxing router, by destination provider type.",
		}, []string{"provider_type", "is_fim"}),

		MuxErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codegate",
			Name:      "mux_errors_total",
			Help:      "Total muxing router errors, by cause.",
		}, []string{"reason"}),

		SecretsRedacted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codegate",
			Name:      "secrets_redacted_total",
			Help:      "Total secrets redacted from request bodies.",
		}),

		PIIRedacted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codegate",
			Name:      "pii_redacted_total",
			Help:      "Total PII values redacted, by detector type.",
		}, []string{"pii_type"}),

		BadPackagesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codegate",
			Name:      "malicious_packages_found_total",
			Help:      "Total references to known-malicious packages flagged by the pipeline.",
		}),

		PipelineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codegate",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Time spent in each input/output pipeline step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
	}

	reg.MustRegister(m.MuxRequests, m.MuxErrors, m.SecretsRedacted, m.PIIRedacted, m.BadPackagesFound, m.PipelineLatency)
	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
