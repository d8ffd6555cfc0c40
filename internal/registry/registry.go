// Package registry holds the live set of provider configurations plus the
// lazily created per-provider circuit breaker and metrics state. All reads
// hand out snapshots; the one operation needing mutual exclusion against
// other mutators is the primary switch.
package registry

import (
	"sort"
	"sync"

	"github.com/farelink/flightgw/internal/domain"
	"github.com/farelink/flightgw/internal/infra/breaker"

	"go.uber.org/zap"
)

// Options configures a Registry.
type Options struct {
	Breaker       breaker.Settings
	LatencyWindow int
	// OnCircuitTransition, if set, observes every per-provider circuit
	// state change (for the Prometheus transition counter).
	OnCircuitTransition func(provider string, from, to domain.CircuitStatus)
}

type providerState struct {
	breaker *breaker.Breaker
	metrics *RollingMetrics
}

// Registry is the ordered, priority-sorted set of configured providers.
// Exactly one active config is primary whenever any active config exists.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]*domain.ProviderConfig
	state   map[string]*providerState
	opts    Options
	logger  *zap.Logger
}

// New creates an empty registry.
func New(opts Options, logger *zap.Logger) *Registry {
	if opts.LatencyWindow <= 0 {
		opts.LatencyWindow = DefaultLatencyWindow
	}
	return &Registry{
		configs: make(map[string]*domain.ProviderConfig),
		state:   make(map[string]*providerState),
		opts:    opts,
		logger:  logger,
	}
}

// Register adds or replaces a provider configuration. The first active
// config becomes primary; a config registered with IsPrimary set takes
// the primary role over atomically.
func (r *Registry) Register(cfg domain.ProviderConfig) error {
	if cfg.Name == "" {
		return &domain.ErrValidation{Field: "name", Message: "provider name is required"}
	}
	if len(cfg.Capabilities) == 0 {
		return &domain.ErrValidation{Field: "supportedCapabilities", Message: "at least one capability is required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	wantsPrimary := cfg.IsPrimary
	cfg.IsPrimary = false

	stored := cfg
	r.configs[cfg.Name] = &stored

	if wantsPrimary && stored.IsActive {
		r.setPrimaryLocked(stored.Name)
	} else if r.currentPrimaryLocked() == nil {
		r.promoteLocked()
	}

	r.logger.Info("provider registered",
		zap.String("provider", stored.Name),
		zap.String("kind", string(stored.Kind)),
		zap.Int("priority", stored.Priority),
		zap.Bool("active", stored.IsActive),
		zap.Bool("primary", stored.IsPrimary),
	)
	return nil
}

// Deactivate soft-disables a provider. Deactivating the current primary
// promotes the named successor, or the next-highest-priority active
// config (ties broken by name) when none is nominated.
func (r *Registry) Deactivate(name, promote string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[name]
	if !ok {
		return &domain.ErrNotFound{Resource: "provider", ID: name}
	}

	// Validate the nominated successor before touching any state: a
	// failed deactivation must leave the registry exactly as it was.
	if cfg.IsPrimary && promote != "" {
		succ, ok := r.configs[promote]
		if !ok {
			return &domain.ErrNotFound{Resource: "provider", ID: promote}
		}
		if !succ.IsActive {
			return &domain.ErrInactiveProvider{Provider: promote}
		}
	}

	wasPrimary := cfg.IsPrimary
	cfg.IsActive = false
	cfg.IsPrimary = false

	if wasPrimary {
		if promote != "" {
			r.setPrimaryLocked(promote)
		} else {
			r.promoteLocked()
		}
	}

	r.logger.Info("provider deactivated",
		zap.String("provider", name),
		zap.Bool("was_primary", wasPrimary),
	)
	return nil
}

// SwitchPrimary atomically moves the primary role to the named provider.
// No observer ever sees zero or two primaries between calls.
func (r *Registry) SwitchPrimary(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[name]
	if !ok {
		return &domain.ErrNotFound{Resource: "provider", ID: name}
	}
	if !cfg.IsActive {
		return &domain.ErrInactiveProvider{Provider: name}
	}

	r.setPrimaryLocked(name)
	r.logger.Info("primary provider switched", zap.String("provider", name))
	return nil
}

// GetPrimary returns a copy of the current primary config, if any.
func (r *Registry) GetPrimary() (domain.ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p := r.currentPrimaryLocked(); p != nil {
		return *p, true
	}
	return domain.ProviderConfig{}, false
}

// Get returns a copy of the named config.
func (r *Registry) Get(name string) (domain.ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[name]
	if !ok {
		return domain.ProviderConfig{}, false
	}
	return *cfg, true
}

// ListCandidates returns the active configs supporting the capability,
// sorted ascending by priority with name as the deterministic tie-break.
// The returned slice is a point-in-time snapshot.
func (r *Registry) ListCandidates(cap domain.Capability) []domain.ProviderConfig {
	r.mu.RLock()
	out := make([]domain.ProviderConfig, 0, len(r.configs))
	for _, cfg := range r.configs {
		if cfg.IsActive && cfg.Supports(cap) {
			out = append(out, *cfg)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// All returns a snapshot of every config, active or not, sorted by
// priority then name.
func (r *Registry) All() []domain.ProviderConfig {
	r.mu.RLock()
	out := make([]domain.ProviderConfig, 0, len(r.configs))
	for _, cfg := range r.configs {
		out = append(out, *cfg)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// BreakerFor returns the provider's circuit breaker, creating it on
// first use. The breaker lives for the process lifetime of the entry.
func (r *Registry) BreakerFor(name string) *breaker.Breaker {
	return r.stateFor(name).breaker
}

// MetricsFor returns the provider's rolling metrics, creating them on
// first use.
func (r *Registry) MetricsFor(name string) *RollingMetrics {
	return r.stateFor(name).metrics
}

func (r *Registry) stateFor(name string) *providerState {
	r.mu.RLock()
	st, ok := r.state[name]
	r.mu.RUnlock()
	if ok {
		return st
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.state[name]; ok {
		return st
	}

	settings := r.opts.Breaker
	if hook := r.opts.OnCircuitTransition; hook != nil {
		provider := name
		settings.OnStateChange = func(from, to domain.CircuitStatus) {
			hook(provider, from, to)
		}
	}
	st = &providerState{
		breaker: breaker.New(settings),
		metrics: NewRollingMetrics(r.opts.LatencyWindow),
	}
	r.state[name] = st
	return st
}

// currentPrimaryLocked returns the primary config; caller holds a lock.
func (r *Registry) currentPrimaryLocked() *domain.ProviderConfig {
	for _, cfg := range r.configs {
		if cfg.IsPrimary {
			return cfg
		}
	}
	return nil
}

// setPrimaryLocked moves the primary flag in one critical section.
func (r *Registry) setPrimaryLocked(name string) {
	for _, cfg := range r.configs {
		cfg.IsPrimary = cfg.Name == name
	}
}

// promoteLocked makes the next-highest-priority active config primary.
// Deterministic: priority ascending, then name.
func (r *Registry) promoteLocked() {
	var best *domain.ProviderConfig
	for _, cfg := range r.configs {
		if !cfg.IsActive {
			continue
		}
		if best == nil ||
			cfg.Priority < best.Priority ||
			(cfg.Priority == best.Priority && cfg.Name < best.Name) {
			best = cfg
		}
	}
	if best == nil {
		return
	}
	r.setPrimaryLocked(best.Name)
	r.logger.Info("primary provider auto-promoted", zap.String("provider", best.Name))
}
