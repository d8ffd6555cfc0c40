package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	providerRequests   *prometheus.CounterVec
	providerLatency    *prometheus.HistogramVec
	circuitTransitions *prometheus.CounterVec
	failovers          *prometheus.CounterVec
	searchDuration     *prometheus.HistogramVec
	credentialErrors   *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// gateway metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		providerRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightgw_provider_requests_total",
				Help: "Completed provider invocations by outcome.",
			},
			[]string{"provider", "status"},
		),
		providerLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flightgw_provider_latency_seconds",
				Help:    "Latency of provider invocations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		circuitTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightgw_circuit_transitions_total",
				Help: "Circuit breaker state transitions per provider.",
			},
			[]string{"provider", "to"},
		),
		failovers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightgw_failovers_total",
				Help: "Searches that fell past the first eligible candidate.",
			},
			[]string{"capability"},
		),
		searchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flightgw_search_duration_seconds",
				Help:    "End-to-end search duration by capability and mode.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"capability", "mode"},
		),
		credentialErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightgw_credential_errors_total",
				Help: "Credential resolution or initialization failures.",
			},
			[]string{"provider"},
		),
	}
}

// RecordProviderRequest records one completed invocation.
func (m *Metrics) RecordProviderRequest(provider, status string, d time.Duration) {
	m.providerRequests.WithLabelValues(provider, status).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// IncrCircuitTransition counts a circuit state change.
func (m *Metrics) IncrCircuitTransition(provider, to string) {
	m.circuitTransitions.WithLabelValues(provider, to).Inc()
}

// IncrFailover counts a search that had to move past its first candidate.
func (m *Metrics) IncrFailover(capability string) {
	m.failovers.WithLabelValues(capability).Inc()
}

// RecordSearchDuration records the overall duration of a search.
func (m *Metrics) RecordSearchDuration(capability, mode string, d time.Duration) {
	m.searchDuration.WithLabelValues(capability, mode).Observe(d.Seconds())
}

// IncrCredentialError counts a credential failure for a provider.
func (m *Metrics) IncrCredentialError(provider string) {
	m.credentialErrors.WithLabelValues(provider).Inc()
}

// ProviderRequestStats is the gateway-side request tally for one provider,
// read back from the Prometheus counters.
type ProviderRequestStats struct {
	Provider string  `json:"provider"`
	Success  float64 `json:"success"`
	Failure  float64 `json:"failure"`
}

// GetProviderRequestStats returns cumulative per-provider request counts
// for the given provider names, suitable for the admin metrics endpoint.
func (m *Metrics) GetProviderRequestStats(providers []string) []ProviderRequestStats {
	out := make([]ProviderRequestStats, 0, len(providers))
	for _, p := range providers {
		out = append(out, ProviderRequestStats{
			Provider: p,
			Success:  getCounterValue(m.providerRequests, p, "success"),
			Failure:  getCounterValue(m.providerRequests, p, "failure"),
		})
	}
	return out
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
