// Package health runs out-of-band provider probes and derives the
// per-provider health snapshot served to dashboards. Probing is
// independent of the failover path and never feeds circuit breakers
// or invocation metrics.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/farelink/flightgw/internal/domain"
	"github.com/farelink/flightgw/internal/infra/resilience"
	"github.com/farelink/flightgw/internal/port"
	"github.com/farelink/flightgw/internal/registry"

	"go.uber.org/zap"
)

// Options configures the prober.
type Options struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
	// MaxConcurrency bounds simultaneous vendor probes.
	MaxConcurrency int
}

const (
	DefaultInterval       = 30 * time.Second
	DefaultProbeTimeout   = 3 * time.Second
	DefaultMaxConcurrency = 4
)

type probeRecord struct {
	result    domain.HealthProbeResult
	checkedAt time.Time
}

// Prober periodically calls CheckHealth on every initialized adapter.
type Prober struct {
	registry *registry.Registry
	plugins  func() map[string]port.Plugin
	bulkhead *resilience.Bulkhead
	opts     Options
	logger   *zap.Logger

	mu     sync.RWMutex
	probes map[string]probeRecord
}

// New creates a prober. plugins is a snapshot function, typically the
// orchestrator's InitializedPlugins.
func New(reg *registry.Registry, plugins func() map[string]port.Plugin, opts Options, logger *zap.Logger) *Prober {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Prober{
		registry: reg,
		plugins:  plugins,
		bulkhead: resilience.NewBulkhead(opts.MaxConcurrency),
		opts:     opts,
		logger:   logger,
	}
}

// Run probes on the configured interval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.ProbeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce probes every initialized adapter, bounded by the bulkhead.
func (p *Prober) ProbeOnce(ctx context.Context) {
	plugins := p.plugins()

	var wg sync.WaitGroup
	for name, plugin := range plugins {
		if err := p.bulkhead.Acquire(ctx); err != nil {
			return
		}
		wg.Add(1)
		go func(name string, plugin port.Plugin) {
			defer wg.Done()
			defer p.bulkhead.Release()

			probeCtx, cancel := context.WithTimeout(ctx, p.opts.ProbeTimeout)
			defer cancel()

			result := plugin.CheckHealth(probeCtx)
			p.record(name, result)

			if !result.Healthy {
				p.logger.Warn("provider probe unhealthy",
					zap.String("provider", name),
					zap.String("message", result.Message),
				)
			}
		}(name, plugin)
	}
	wg.Wait()
}

func (p *Prober) record(name string, result domain.HealthProbeResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.probes == nil {
		p.probes = make(map[string]probeRecord)
	}
	p.probes[name] = probeRecord{result: result, checkedAt: time.Now()}
}

// Snapshot derives the health view for every registered provider from
// metrics, circuit state and the latest probe. Nothing is stored
// authoritatively; each call recomputes.
func (p *Prober) Snapshot() []domain.ProviderHealth {
	configs := p.registry.All()

	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]domain.ProviderHealth, 0, len(configs))
	for _, cfg := range configs {
		metrics := p.registry.MetricsFor(cfg.Name).Snapshot()
		status := p.registry.BreakerFor(cfg.Name).Status()

		h := domain.ProviderHealth{
			Name:               cfg.Name,
			IsHealthy:          cfg.IsActive && status == domain.CircuitClosed,
			ErrorCount:         metrics.FailedRequests,
			SuccessRatePercent: metrics.SuccessRatePercent,
			CircuitStatus:      status,
		}
		if probe, ok := p.probes[cfg.Name]; ok {
			h.LatencyMs = probe.result.LatencyMs
			h.Message = probe.result.Message
			checked := probe.checkedAt
			h.LastCheckedAt = &checked
			if !probe.result.Healthy {
				h.IsHealthy = false
			}
		}
		if !cfg.IsActive {
			h.Message = "provider deactivated"
		}
		out = append(out, h)
	}
	return out
}
