package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farelink/flightgw/internal/config"
	"github.com/farelink/flightgw/internal/domain"
	"github.com/farelink/flightgw/internal/failover"
	"github.com/farelink/flightgw/internal/handler"
	"github.com/farelink/flightgw/internal/health"
	"github.com/farelink/flightgw/internal/infra/breaker"
	"github.com/farelink/flightgw/internal/infra/cache"
	"github.com/farelink/flightgw/internal/infra/credstore"
	"github.com/farelink/flightgw/internal/infra/observability"
	"github.com/farelink/flightgw/internal/infra/resilience"
	"github.com/farelink/flightgw/internal/port"
	"github.com/farelink/flightgw/internal/provider"
	"github.com/farelink/flightgw/internal/registry"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_cred_service", cfg.UseCredService),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("attempt_timeout", cfg.AttemptTimeout),
		zap.Duration("search_deadline", cfg.SearchDeadline),
		zap.Int("failure_threshold", cfg.FailureThreshold),
		zap.Duration("circuit_cooldown", cfg.CircuitCooldown),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "flightgw")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	airportCache := cache.New[[]domain.AirportRecord](cfg.AirportCacheTTL)

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Credential source ---
	var creds port.CredentialSource
	var configSource port.ConfigSource
	if cfg.UseCredService && cfg.CredServiceURL != "" {
		logger.Info("using credential service",
			zap.String("cred_service_url", cfg.CredServiceURL),
		)
		resilienceCfg := resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
		}
		cb := resilience.NewCircuitBreaker("credential-service")
		client, err := credstore.New(httpClient, cfg.CredServiceURL, cfg.CredServiceToken, []byte(cfg.CredMasterKey), cb, resilienceCfg, logger)
		if err != nil {
			logger.Fatal("failed to init credential service client", zap.Error(err))
		}
		creds = client
		configSource = client
	} else {
		logger.Warn("credential service not configured, falling back to static sandbox credentials")
		static := credstore.NewStatic(map[string]domain.Credentials{
			"mockair-sandbox": {APIKey: "sandbox"},
		})
		creds = static
	}

	// --- Registry ---
	reg := registry.New(registry.Options{
		Breaker: breaker.Settings{
			FailureThreshold: cfg.FailureThreshold,
			Cooldown:         cfg.CircuitCooldown,
		},
		LatencyWindow: cfg.LatencyWindow,
		OnCircuitTransition: func(provider string, from, to domain.CircuitStatus) {
			metrics.IncrCircuitTransition(provider, string(to))
		},
	}, logger)

	// --- Orchestrator ---
	orch := failover.New(reg, creds, metrics, logger, failover.Options{
		AttemptTimeout:     cfg.AttemptTimeout,
		OverallDeadline:    cfg.SearchDeadline,
		AggregateMaxFanout: cfg.AggregateMaxFanout,
	})

	// --- Provider bootstrap ---
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	registerProviders(bootCtx, reg, orch, configSource, httpClient, logger)
	bootCancel()

	// --- Health prober ---
	prober := health.New(reg, orch.InitializedPlugins, health.Options{
		Interval:       cfg.ProbeInterval,
		ProbeTimeout:   cfg.ProbeTimeout,
		MaxConcurrency: cfg.ProbeMaxConcurrency,
	}, logger)

	probeCtx, probeCancel := context.WithCancel(context.Background())
	defer probeCancel()
	go prober.Run(probeCtx)

	// --- Router ---
	router := handler.NewRouter(handler.Deps{
		Registry:       reg,
		Orchestrator:   orch,
		Prober:         prober,
		Credentials:    creds,
		Metrics:        metrics,
		AirportCache:   airportCache,
		HTTPClient:     httpClient,
		AdminJWTSecret: []byte(cfg.AdminJWTSecret),
	}, logger)

	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set, provider admin surface is unauthenticated")
	}

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	probeCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// registerProviders loads persisted provider records (when a config source
// exists) and registers each config plus its adapter. With no config
// source a single sandbox provider is registered so the gateway comes up
// serving deterministic results.
func registerProviders(ctx context.Context, reg *registry.Registry, orch *failover.Orchestrator, configSource port.ConfigSource, httpClient *http.Client, logger *zap.Logger) {
	configs := []domain.ProviderConfig{}

	if configSource != nil {
		records, err := configSource.ListProviderRecords(ctx)
		if err != nil {
			logger.Error("failed to load provider records, starting with empty registry", zap.Error(err))
		}
		for _, rec := range records {
			configs = append(configs, domain.ProviderConfig{
				Name:         rec.Name,
				DisplayName:  rec.DisplayName,
				Kind:         rec.ProviderKind,
				Environment:  rec.EnvironmentTag,
				Priority:     rec.Priority,
				IsActive:     rec.IsActive,
				IsPrimary:    rec.IsPrimary,
				Capabilities: rec.SupportedCapabilities,
			})
		}
	} else {
		configs = append(configs, domain.ProviderConfig{
			Name:         "mockair-sandbox",
			DisplayName:  "MockAir Sandbox",
			Kind:         domain.KindMockAir,
			Environment:  domain.EnvSandbox,
			Priority:     10,
			IsActive:     true,
			Capabilities: []domain.Capability{domain.CapabilityFlightSearch, domain.CapabilityAirportSearch},
		})
	}

	for _, cfg := range configs {
		plugin, err := provider.New(cfg, httpClient, logger)
		if err != nil {
			logger.Error("skipping provider with unknown kind",
				zap.String("provider", cfg.Name),
				zap.String("kind", string(cfg.Kind)),
			)
			continue
		}
		if err := reg.Register(cfg); err != nil {
			logger.Error("failed to register provider", zap.String("provider", cfg.Name), zap.Error(err))
			continue
		}
		orch.RegisterPlugin(plugin)
		logger.Info("provider registered",
			zap.String("provider", cfg.Name),
			zap.String("kind", string(cfg.Kind)),
			zap.Int("priority", cfg.Priority),
			zap.Bool("active", cfg.IsActive),
		)
	}
}
