// Package failover contains the orchestrator that presents one uniform
// query contract over all configured vendors. It walks the registry's
// candidate list in priority order, gates each attempt on the provider's
// circuit breaker, bounds every vendor call with a timeout, and records
// the outcome exactly once per completed invocation.
package failover

import (
	"context"
	"sync"
	"time"

	"github.com/farelink/flightgw/internal/domain"
	"github.com/farelink/flightgw/internal/infra/observability"
	"github.com/farelink/flightgw/internal/port"
	"github.com/farelink/flightgw/internal/registry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("failover")

// Options bounds the orchestrator's timing and fan-out.
type Options struct {
	// AttemptTimeout bounds a single vendor call. Effective timeout is
	// the smaller of this and the remaining overall deadline.
	AttemptTimeout time.Duration
	// OverallDeadline is the default end-to-end search budget when the
	// caller does not supply one.
	OverallDeadline time.Duration
	// AggregateMaxFanout caps concurrent candidates in aggregate mode.
	AggregateMaxFanout int
}

const (
	DefaultAttemptTimeout     = 5 * time.Second
	DefaultOverallDeadline    = 15 * time.Second
	DefaultAggregateMaxFanout = 3
)

func (o *Options) applyDefaults() {
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = DefaultAttemptTimeout
	}
	if o.OverallDeadline <= 0 {
		o.OverallDeadline = DefaultOverallDeadline
	}
	if o.AggregateMaxFanout <= 0 {
		o.AggregateMaxFanout = DefaultAggregateMaxFanout
	}
}

// Orchestrator routes normalized queries across providers with
// transparent failover.
type Orchestrator struct {
	registry *registry.Registry
	creds    port.CredentialSource
	metrics  *observability.Metrics
	logger   *zap.Logger
	opts     Options

	mu          sync.RWMutex
	plugins     map[string]port.Plugin
	initialized map[string]bool
	// disabled holds providers whose initialization failed; they are
	// excluded from candidates until reinitialized with corrected
	// credentials. Never feeds the circuit breaker.
	disabled map[string]string
}

// New creates an orchestrator over the given registry.
func New(reg *registry.Registry, creds port.CredentialSource, metrics *observability.Metrics, logger *zap.Logger, opts Options) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{
		registry:    reg,
		creds:       creds,
		metrics:     metrics,
		logger:      logger,
		opts:        opts,
		plugins:     make(map[string]port.Plugin),
		initialized: make(map[string]bool),
		disabled:    make(map[string]string),
	}
}

// RegisterPlugin attaches a vendor adapter. Initialization is lazy: the
// first attempt against the provider fetches and decrypts credentials.
func (o *Orchestrator) RegisterPlugin(p port.Plugin) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.plugins[p.Name()] = p
}

// Reinitialize clears a provider's failed-initialization state and
// re-runs Initialize with freshly fetched credentials.
func (o *Orchestrator) Reinitialize(ctx context.Context, name string) error {
	o.mu.Lock()
	delete(o.disabled, name)
	o.initialized[name] = false
	o.mu.Unlock()

	_, err := o.pluginFor(ctx, name)
	return err
}

// InitializedPlugins returns a snapshot of the adapters that are ready
// for traffic, for the out-of-band health prober.
func (o *Orchestrator) InitializedPlugins() map[string]port.Plugin {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[string]port.Plugin, len(o.plugins))
	for name, p := range o.plugins {
		if o.initialized[name] {
			out[name] = p
		}
	}
	return out
}

// SearchFlights runs a flight search in the requested mode. A zero
// deadline falls back to the configured default.
func (o *Orchestrator) SearchFlights(ctx context.Context, query domain.SearchQuery, mode domain.SearchMode, deadline time.Duration) (*domain.SearchResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if mode == "" {
		mode = domain.ModeSequential
	}
	if deadline <= 0 {
		deadline = o.opts.OverallDeadline
	}

	ctx, span := tracer.Start(ctx, "Orchestrator.SearchFlights")
	defer span.End()
	span.SetAttributes(
		attribute.String("search.mode", string(mode)),
		attribute.String("search.origin", query.Origin),
		attribute.String("search.destination", query.Destination),
	)

	start := time.Now()
	defer func() {
		o.metrics.RecordSearchDuration(string(domain.CapabilityFlightSearch), string(mode), time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	searchID := uuid.NewString()

	if mode == domain.ModeAggregate {
		return o.aggregateFlights(ctx, searchID, query)
	}

	offers, provider, err := runSequential(o, ctx, domain.CapabilityFlightSearch,
		func(ctx context.Context, p port.Plugin) ([]domain.Offer, error) {
			return p.SearchFlights(ctx, query)
		})
	if err != nil {
		return nil, err
	}
	return &domain.SearchResult{
		SearchID:   searchID,
		Offers:     offers,
		Provenance: []string{provider},
	}, nil
}

// SearchAirports runs an airport lookup with sequential failover and
// returns the records plus the producing provider.
func (o *Orchestrator) SearchAirports(ctx context.Context, query domain.AirportQuery) ([]domain.AirportRecord, string, error) {
	if err := query.Validate(); err != nil {
		return nil, "", err
	}

	ctx, span := tracer.Start(ctx, "Orchestrator.SearchAirports")
	defer span.End()
	span.SetAttributes(attribute.String("search.term", query.Term))

	start := time.Now()
	defer func() {
		o.metrics.RecordSearchDuration(string(domain.CapabilityAirportSearch), string(domain.ModeSequential), time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, o.opts.OverallDeadline)
	defer cancel()

	return runSequential(o, ctx, domain.CapabilityAirportSearch,
		func(ctx context.Context, p port.Plugin) ([]domain.AirportRecord, error) {
			return p.SearchAirports(ctx, query)
		})
}

// pluginFor returns a ready-to-use adapter for the provider, running
// credential fetch + Initialize on first use. Failures return
// *domain.ErrConfiguration and park the provider until Reinitialize.
func (o *Orchestrator) pluginFor(ctx context.Context, name string) (port.Plugin, error) {
	o.mu.RLock()
	p, ok := o.plugins[name]
	if !ok {
		o.mu.RUnlock()
		return nil, &domain.ErrConfiguration{Provider: name, Reason: "no adapter registered"}
	}
	if reason, bad := o.disabled[name]; bad {
		o.mu.RUnlock()
		return nil, &domain.ErrConfiguration{Provider: name, Reason: reason}
	}
	if o.initialized[name] {
		o.mu.RUnlock()
		return p, nil
	}
	o.mu.RUnlock()

	creds, err := o.creds.Credentials(ctx, name)
	if err != nil {
		o.parkProvider(name, err)
		return nil, err
	}
	if err := p.Initialize(ctx, creds); err != nil {
		confErr, ok := err.(*domain.ErrConfiguration)
		if !ok {
			confErr = &domain.ErrConfiguration{Provider: name, Reason: err.Error()}
		}
		o.parkProvider(name, confErr)
		return nil, confErr
	}

	o.mu.Lock()
	o.initialized[name] = true
	o.mu.Unlock()

	o.logger.Info("provider initialized", zap.String("provider", name))
	return p, nil
}

// parkProvider records a failed initialization. The provider stays out
// of candidate lists until an operator reinitializes it.
func (o *Orchestrator) parkProvider(name string, err error) {
	o.mu.Lock()
	o.disabled[name] = err.Error()
	o.mu.Unlock()

	o.metrics.IncrCredentialError(name)
	o.logger.Warn("provider disabled: initialization failed",
		zap.String("provider", name),
		zap.Error(err),
	)
}

// invokeOutcome carries one attempt's result through the timeout select.
type invokeOutcome[T any] struct {
	value T
	err   error
}

// invoke runs one bounded vendor call and applies metrics and circuit
// updates exactly once. The circuit must already be claimed via Allow.
// If the attempt timeout fires before the call returns, the attempt is
// counted as a transient failure immediately; the late result is
// discarded, never re-applied.
func invoke[T any](o *Orchestrator, ctx context.Context, cfg domain.ProviderConfig, call func(context.Context, port.Plugin) (T, error)) (T, error) {
	var zero T

	p, err := o.pluginFor(ctx, cfg.Name)
	if err != nil {
		// Configuration failure: no vendor traffic happened, so the
		// claimed trial (if any) is released, not counted.
		o.registry.BreakerFor(cfg.Name).ReleaseTrial()
		return zero, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, o.opts.AttemptTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan invokeOutcome[T], 1)
	go func() {
		v, callErr := call(attemptCtx, p)
		done <- invokeOutcome[T]{value: v, err: callErr}
	}()

	var outcome invokeOutcome[T]
	select {
	case outcome = <-done:
	case <-attemptCtx.Done():
		// Move on without waiting for the vendor call to unwind.
		outcome = invokeOutcome[T]{err: &domain.ErrTransient{Provider: cfg.Name, Err: attemptCtx.Err()}}
	}
	latency := time.Since(start)

	br := o.registry.BreakerFor(cfg.Name)
	m := o.registry.MetricsFor(cfg.Name)

	switch err := outcome.err.(type) {
	case nil:
		// Empty result sets are still successes; they do not trip the
		// circuit.
		m.Record(true, latency)
		br.RecordSuccess()
		o.metrics.RecordProviderRequest(cfg.Name, "success", latency)
		return outcome.value, nil

	case *domain.ErrConfiguration:
		// Credentials went bad mid-flight. Not a circuit event.
		br.ReleaseTrial()
		o.parkProvider(cfg.Name, err)
		return zero, err

	default:
		transient, ok := outcome.err.(*domain.ErrTransient)
		if !ok {
			transient = &domain.ErrTransient{Provider: cfg.Name, Err: outcome.err}
		}
		m.Record(false, latency)
		br.RecordFailure()
		o.metrics.RecordProviderRequest(cfg.Name, "failure", latency)
		return zero, transient
	}
}

// runSequential walks the candidates in priority order and returns the
// first success. Providers with open circuits are skipped without any
// vendor traffic or metrics mutation.
func runSequential[T any](o *Orchestrator, ctx context.Context, capability domain.Capability, call func(context.Context, port.Plugin) (T, error)) (T, string, error) {
	var zero T

	candidates := o.registry.ListCandidates(capability)
	attempts := make([]domain.AttemptFailure, 0, len(candidates))

	for i, cfg := range candidates {
		if ctx.Err() != nil {
			attempts = append(attempts, domain.AttemptFailure{Provider: cfg.Name, Reason: "overall deadline exceeded"})
			break
		}

		br := o.registry.BreakerFor(cfg.Name)
		if !br.Allow() {
			attempts = append(attempts, domain.AttemptFailure{Provider: cfg.Name, Reason: (&domain.ErrCircuitOpen{Provider: cfg.Name}).Error()})
			continue
		}

		value, err := invoke(o, ctx, cfg, call)
		if err == nil {
			if i > 0 {
				o.metrics.IncrFailover(string(capability))
				o.logger.Info("failover succeeded",
					zap.String("capability", string(capability)),
					zap.String("provider", cfg.Name),
					zap.Int("candidates_skipped", i),
				)
			}
			return value, cfg.Name, nil
		}

		attempts = append(attempts, domain.AttemptFailure{Provider: cfg.Name, Reason: err.Error()})
	}

	return zero, "", &domain.ErrAllProvidersUnavailable{Capability: capability, Attempts: attempts}
}
