package handler

import (
	"encoding/json"
	"net/http"

	"github.com/farelink/flightgw/internal/domain"
	"github.com/farelink/flightgw/internal/failover"
	"github.com/farelink/flightgw/internal/health"
	"github.com/farelink/flightgw/internal/infra/observability"
	"github.com/farelink/flightgw/internal/port"
	"github.com/farelink/flightgw/internal/provider"
	"github.com/farelink/flightgw/internal/registry"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// providerResponse is the admin view of a provider. Credentials are never
// serialized; only their presence is reported.
type providerResponse struct {
	domain.ProviderConfig
	Configured bool `json:"configured"`
}

func listProvidersHandler(d Deps, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/providers")
		defer span.End()

		configs := d.Registry.All()
		resp := make([]providerResponse, 0, len(configs))
		for _, cfg := range configs {
			resp = append(resp, providerResponse{
				ProviderConfig: cfg,
				Configured:     d.Credentials.Configured(ctx, cfg.Name),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"providers": resp})
	}
}

func registerProviderHandler(d Deps, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/providers")
		defer span.End()

		var cfg domain.ProviderConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		plugin, err := provider.New(cfg, d.HTTPClient, logger)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := d.Registry.Register(cfg); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		d.Orchestrator.RegisterPlugin(plugin)

		logger.Info("provider registered",
			zap.String("provider", cfg.Name),
			zap.String("kind", string(cfg.Kind)),
			zap.String("operator", OperatorFromContext(ctx)),
		)

		registered, _ := d.Registry.Get(cfg.Name)
		writeJSON(w, http.StatusCreated, providerResponse{
			ProviderConfig: registered,
			Configured:     d.Credentials.Configured(ctx, cfg.Name),
		})
	}
}

func deactivateProviderHandler(reg *registry.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/providers/{name}")
		defer span.End()

		name := chi.URLParam(r, "name")
		promote := r.URL.Query().Get("promote")
		if err := reg.Deactivate(name, promote); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		logger.Info("provider deactivated",
			zap.String("provider", name),
			zap.String("operator", OperatorFromContext(ctx)),
		)
		w.WriteHeader(http.StatusNoContent)
	}
}

func switchPrimaryHandler(reg *registry.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/providers/{name}/primary")
		defer span.End()

		name := chi.URLParam(r, "name")
		if err := reg.SwitchPrimary(name); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		logger.Info("primary switched",
			zap.String("provider", name),
			zap.String("operator", OperatorFromContext(ctx)),
		)

		active, _ := reg.GetPrimary()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":            true,
			"activeProviderName": active.Name,
		})
	}
}

func reinitializeProviderHandler(orch *failover.Orchestrator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/providers/{name}/reinitialize")
		defer span.End()

		name := chi.URLParam(r, "name")
		if err := orch.Reinitialize(ctx, name); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		logger.Info("provider reinitialized", zap.String("provider", name))
		writeJSON(w, http.StatusOK, map[string]any{"provider": name, "status": "reinitialized"})
	}
}

func providersHealthHandler(prober *health.Prober) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"providers": prober.Snapshot()})
	}
}

// providerMetricsResponse joins the rolling-window snapshot with circuit
// state and the gateway-side Prometheus tallies.
type providerMetricsResponse struct {
	Name          string                 `json:"name"`
	CircuitStatus domain.CircuitStatus   `json:"circuitStatus"`
	Metrics       domain.ProviderMetrics `json:"metrics"`
}

func providerMetricsHandler(reg *registry.Registry, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		configs := reg.All()

		names := make([]string, 0, len(configs))
		resp := make([]providerMetricsResponse, 0, len(configs))
		for _, cfg := range configs {
			names = append(names, cfg.Name)
			resp = append(resp, providerMetricsResponse{
				Name:          cfg.Name,
				CircuitStatus: reg.BreakerFor(cfg.Name).Status(),
				Metrics:       reg.MetricsFor(cfg.Name).Snapshot(),
			})
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"providers": resp,
			"gateway":   metrics.GetProviderRequestStats(names),
		})
	}
}

// credentialCheckHandler reports whether credentials resolve for a
// provider without ever echoing them back.
func credentialCheckHandler(creds port.CredentialSource, reg *registry.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/providers/{name}/credentials/status")
		defer span.End()

		name := chi.URLParam(r, "name")
		if _, ok := reg.Get(name); !ok {
			handleServiceError(w, &domain.ErrNotFound{Resource: "provider", ID: name}, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"provider":   name,
			"configured": creds.Configured(ctx, name),
		})
	}
}
