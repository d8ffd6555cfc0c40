package handler

import (
	"net/http"

	"github.com/farelink/flightgw/internal/domain"
	"github.com/farelink/flightgw/internal/failover"
	"github.com/farelink/flightgw/internal/health"
	"github.com/farelink/flightgw/internal/infra/cache"
	"github.com/farelink/flightgw/internal/infra/observability"
	"github.com/farelink/flightgw/internal/port"
	"github.com/farelink/flightgw/internal/registry"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Deps bundles everything the router serves from.
type Deps struct {
	Registry     *registry.Registry
	Orchestrator *failover.Orchestrator
	Prober       *health.Prober
	Credentials  port.CredentialSource
	Metrics      *observability.Metrics
	AirportCache *cache.InMemory[[]domain.AirportRecord]
	HTTPClient   *http.Client
	// AdminJWTSecret guards the provider admin surface. Empty disables it.
	AdminJWTSecret []byte
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(d Deps, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(d.Prober))
	r.Get("/readyz", readyzHandler(d.Registry))
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		// Search surface (public)
		r.Post("/search/flights", searchFlightsHandler(d.Orchestrator, logger))
		r.Get("/search/airports", searchAirportsHandler(d.Orchestrator, d.AirportCache, logger))

		// Provider admin surface (operator token required)
		r.Group(func(r chi.Router) {
			if len(d.AdminJWTSecret) > 0 {
				r.Use(OperatorAuthMiddleware(d.AdminJWTSecret, logger))
			}
			r.Get("/providers", listProvidersHandler(d, logger))
			r.Post("/providers", registerProviderHandler(d, logger))
			r.Delete("/providers/{name}", deactivateProviderHandler(d.Registry, logger))
			r.Post("/providers/{name}/primary", switchPrimaryHandler(d.Registry, logger))
			r.Post("/providers/{name}/reinitialize", reinitializeProviderHandler(d.Orchestrator, logger))
			r.Get("/providers/{name}/credentials/status", credentialCheckHandler(d.Credentials, d.Registry, logger))
			r.Get("/providers/health", providersHealthHandler(d.Prober))
			r.Get("/metrics/providers", providerMetricsHandler(d.Registry, d.Metrics))
		})
	})

	return r
}

// healthzHandler reports gateway liveness plus a per-provider rollup.
// The gateway is degraded, not down, when some providers are unhealthy.
func healthzHandler(prober *health.Prober) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := prober.Snapshot()

		status := "healthy"
		healthy := 0
		for _, h := range snapshot {
			if h.IsHealthy {
				healthy++
			}
		}
		if len(snapshot) > 0 && healthy == 0 {
			status = "unhealthy"
		} else if healthy < len(snapshot) {
			status = "degraded"
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":    status,
			"providers": snapshot,
		})
	}
}

// readyzHandler reports ready once at least one active provider exists.
func readyzHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := reg.GetPrimary(); !ok {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no active providers"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
