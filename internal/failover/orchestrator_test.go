package failover_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/farelink/flightgw/internal/domain"
	"github.com/farelink/flightgw/internal/failover"
	"github.com/farelink/flightgw/internal/infra/breaker"
	"github.com/farelink/flightgw/internal/infra/credstore"
	"github.com/farelink/flightgw/internal/infra/observability"
	"github.com/farelink/flightgw/internal/registry"

	"go.uber.org/zap"
)

// --- Mocks ---

type fakePlugin struct {
	name string

	mu          sync.Mutex
	initErr     error
	searchErr   error
	offers      []domain.Offer
	airports    []domain.AirportRecord
	delay       time.Duration
	initCalls   int
	searchCalls int
}

func (f *fakePlugin) Name() string              { return f.name }
func (f *fakePlugin) Kind() domain.ProviderKind { return domain.KindMockAir }

func (f *fakePlugin) Initialize(_ context.Context, _ domain.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return f.initErr
}

func (f *fakePlugin) SearchFlights(ctx context.Context, _ domain.SearchQuery) ([]domain.Offer, error) {
	f.mu.Lock()
	f.searchCalls++
	delay, offers, err := f.delay, f.offers, f.searchErr
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return offers, err
}

func (f *fakePlugin) SearchAirports(_ context.Context, _ domain.AirportQuery) ([]domain.AirportRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	return f.airports, f.searchErr
}

func (f *fakePlugin) CheckHealth(_ context.Context) domain.HealthProbeResult {
	return domain.HealthProbeResult{Healthy: true, LatencyMs: 1}
}

func (f *fakePlugin) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchCalls
}

// --- Harness ---

type harness struct {
	registry     *registry.Registry
	orchestrator *failover.Orchestrator
	creds        *credstore.Static
}

func newHarness(t *testing.T, opts failover.Options, plugins ...*fakePlugin) *harness {
	t.Helper()

	reg := registry.New(registry.Options{
		Breaker: breaker.Settings{FailureThreshold: 3, Cooldown: time.Minute},
	}, zap.NewNop())

	creds := credstore.NewStatic(nil)
	orch := failover.New(reg, creds, observability.NewMetrics(), zap.NewNop(), opts)

	for i, p := range plugins {
		creds.Put(p.name, domain.Credentials{APIKey: "key-" + p.name})
		orch.RegisterPlugin(p)
		if err := reg.Register(domain.ProviderConfig{
			Name:        p.name,
			DisplayName: p.name,
			Kind:        domain.KindMockAir,
			Environment: domain.EnvSandbox,
			Priority:    (i + 1) * 10,
			IsActive:    true,
			Capabilities: []domain.Capability{
				domain.CapabilityFlightSearch,
				domain.CapabilityAirportSearch,
			},
		}); err != nil {
			t.Fatalf("register %s: %v", p.name, err)
		}
	}
	return &harness{registry: reg, orchestrator: orch, creds: creds}
}

func validQuery() domain.SearchQuery {
	return domain.SearchQuery{
		Origin:        "GRU",
		Destination:   "LIS",
		DepartureDate: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Adults:        1,
		CabinClass:    "economy",
	}
}

func offer(vendor, id, provider string, price float64) domain.Offer {
	return domain.Offer{
		Vendor:        vendor,
		VendorOfferID: id,
		Provider:      provider,
		TotalPrice:    price,
		Currency:      "USD",
	}
}

// --- Sequential mode ---

func TestSearchFlights_PrimarySuccess(t *testing.T) {
	a := &fakePlugin{name: "alpha", offers: []domain.Offer{offer("AA", "o1", "alpha", 420)}}
	b := &fakePlugin{name: "bravo", offers: []domain.Offer{offer("BB", "o2", "bravo", 380)}}
	h := newHarness(t, failover.Options{}, a, b)

	res, err := h.orchestrator.SearchFlights(context.Background(), validQuery(), domain.ModeSequential, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Provenance) != 1 || res.Provenance[0] != "alpha" {
		t.Errorf("expected provenance [alpha], got %v", res.Provenance)
	}
	if b.calls() != 0 {
		t.Errorf("sequential mode must stop at first success; bravo called %d times", b.calls())
	}
	if res.Partial {
		t.Error("sequential results are never partial")
	}
}

func TestSearchFlights_FailoverIsTransparent(t *testing.T) {
	a := &fakePlugin{name: "alpha", searchErr: errors.New("connection refused")}
	b := &fakePlugin{name: "bravo", offers: []domain.Offer{offer("BB", "o2", "bravo", 380)}}
	h := newHarness(t, failover.Options{}, a, b)

	res, err := h.orchestrator.SearchFlights(context.Background(), validQuery(), domain.ModeSequential, 0)
	if err != nil {
		t.Fatalf("expected transparent failover, got %v", err)
	}
	if res.Provenance[0] != "bravo" {
		t.Errorf("expected provenance bravo, got %v", res.Provenance)
	}

	snap := h.registry.MetricsFor("alpha").Snapshot()
	if snap.FailedRequests != 1 {
		t.Errorf("expected alpha failedRequests=1, got %d", snap.FailedRequests)
	}
	if got := h.registry.MetricsFor("bravo").Snapshot().SuccessfulRequests; got != 1 {
		t.Errorf("expected bravo successfulRequests=1, got %d", got)
	}
}

func TestSearchFlights_ValidationRejectedBeforeProviders(t *testing.T) {
	a := &fakePlugin{name: "alpha"}
	h := newHarness(t, failover.Options{}, a)

	q := validQuery()
	q.Destination = q.Origin
	_, err := h.orchestrator.SearchFlights(context.Background(), q, domain.ModeSequential, 0)

	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if a.calls() != 0 {
		t.Errorf("no provider may be contacted on validation failure; alpha called %d times", a.calls())
	}
}

func TestSearchFlights_CircuitOpensAndSkipsWithoutCalls(t *testing.T) {
	a := &fakePlugin{name: "alpha", searchErr: errors.New("boom")}
	b := &fakePlugin{name: "bravo", offers: []domain.Offer{offer("BB", "o2", "bravo", 380)}}
	h := newHarness(t, failover.Options{}, a, b)

	// Threshold is 3 in the harness.
	for i := 0; i < 3; i++ {
		if _, err := h.orchestrator.SearchFlights(context.Background(), validQuery(), domain.ModeSequential, 0); err != nil {
			t.Fatalf("search %d: %v", i, err)
		}
	}
	if got := h.registry.BreakerFor("alpha").Status(); got != domain.CircuitOpen {
		t.Fatalf("expected alpha circuit OPEN after 3 failures, got %s", got)
	}

	callsBefore := a.calls()
	res, err := h.orchestrator.SearchFlights(context.Background(), validQuery(), domain.ModeSequential, 0)
	if err != nil {
		t.Fatalf("search with open circuit: %v", err)
	}
	if a.calls() != callsBefore {
		t.Error("open circuit must skip the provider without a vendor call")
	}
	if res.Provenance[0] != "bravo" {
		t.Errorf("expected bravo, got %v", res.Provenance)
	}

	// Skips must not mutate alpha's metrics.
	if got := h.registry.MetricsFor("alpha").Snapshot().TotalRequests; got != int64(callsBefore) {
		t.Errorf("expected alpha totalRequests unchanged at %d, got %d", callsBefore, got)
	}
}

func TestSearchFlights_ConfigurationErrorDoesNotPolluteCircuit(t *testing.T) {
	a := &fakePlugin{name: "alpha", initErr: &domain.ErrConfiguration{Provider: "alpha", Reason: "bad key"}}
	b := &fakePlugin{name: "bravo", offers: []domain.Offer{offer("BB", "o2", "bravo", 380)}}
	h := newHarness(t, failover.Options{}, a, b)

	res, err := h.orchestrator.SearchFlights(context.Background(), validQuery(), domain.ModeSequential, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Provenance[0] != "bravo" {
		t.Errorf("expected bravo, got %v", res.Provenance)
	}

	if got := h.registry.BreakerFor("alpha").ConsecutiveFailures(); got != 0 {
		t.Errorf("configuration error contributed %d to consecutiveFailures, want 0", got)
	}
	if got := h.registry.MetricsFor("alpha").Snapshot().TotalRequests; got != 0 {
		t.Errorf("configuration error must not touch invocation metrics, got total=%d", got)
	}

	// Parked until reinitialized: further searches skip alpha entirely.
	h.orchestrator.SearchFlights(context.Background(), validQuery(), domain.ModeSequential, 0)
	if got := a.initCalls; got != 1 {
		t.Errorf("expected a single failed initialize, got %d", got)
	}
}

func TestReinitialize_RestoresParkedProvider(t *testing.T) {
	a := &fakePlugin{name: "alpha", initErr: &domain.ErrConfiguration{Provider: "alpha", Reason: "bad key"}}
	b := &fakePlugin{name: "bravo", offers: []domain.Offer{offer("BB", "o2", "bravo", 380)}}
	h := newHarness(t, failover.Options{}, a, b)

	h.orchestrator.SearchFlights(context.Background(), validQuery(), domain.ModeSequential, 0)

	// Operator fixes the credentials.
	a.mu.Lock()
	a.initErr = nil
	a.offers = []domain.Offer{offer("AA", "o1", "alpha", 300)}
	a.mu.Unlock()

	if err := h.orchestrator.Reinitialize(context.Background(), "alpha"); err != nil {
		t.Fatalf("reinitialize: %v", err)
	}

	res, err := h.orchestrator.SearchFlights(context.Background(), validQuery(), domain.ModeSequential, 0)
	if err != nil {
		t.Fatalf("search after reinitialize: %v", err)
	}
	if res.Provenance[0] != "alpha" {
		t.Errorf("expected alpha back in rotation, got %v", res.Provenance)
	}
}

func TestSearchFlights_EmptyResultIsSuccess(t *testing.T) {
	a := &fakePlugin{name: "alpha", offers: []domain.Offer{}}
	b := &fakePlugin{name: "bravo", offers: []domain.Offer{offer("BB", "o2", "bravo", 380)}}
	h := newHarness(t, failover.Options{}, a, b)

	res, err := h.orchestrator.SearchFlights(context.Background(), validQuery(), domain.ModeSequential, 0)
	if err != nil {
		t.Fatalf("empty result must be a success: %v", err)
	}
	if len(res.Offers) != 0 {
		t.Errorf("expected empty offer list, got %d", len(res.Offers))
	}
	if res.Provenance[0] != "alpha" {
		t.Errorf("expected alpha provenance, got %v", res.Provenance)
	}
	if got := h.registry.BreakerFor("alpha").ConsecutiveFailures(); got != 0 {
		t.Errorf("empty success must not feed the circuit, got %d failures", got)
	}
	if b.calls() != 0 {
		t.Error("empty success must stop the failover walk")
	}
}

func TestSearchFlights_AllProvidersUnavailable(t *testing.T) {
	a := &fakePlugin{name: "alpha", searchErr: errors.New("timeout")}
	b := &fakePlugin{name: "bravo", searchErr: errors.New("refused")}
	h := newHarness(t, failover.Options{}, a, b)

	_, err := h.orchestrator.SearchFlights(context.Background(), validQuery(), domain.ModeSequential, 0)

	var allDown *domain.ErrAllProvidersUnavailable
	if !errors.As(err, &allDown) {
		t.Fatalf("expected aggregate unavailable error, got %v", err)
	}
	if len(allDown.Attempts) != 2 {
		t.Fatalf("expected 2 attempt records, got %d", len(allDown.Attempts))
	}
	if allDown.Attempts[0].Provider != "alpha" || allDown.Attempts[1].Provider != "bravo" {
		t.Errorf("expected per-provider diagnostics in priority order, got %+v", allDown.Attempts)
	}
}

func TestSearchFlights_SlowProviderTimesOutAndFailsOver(t *testing.T) {
	a := &fakePlugin{name: "alpha", delay: 200 * time.Millisecond, offers: []domain.Offer{offer("AA", "o1", "alpha", 300)}}
	b := &fakePlugin{name: "bravo", offers: []domain.Offer{offer("BB", "o2", "bravo", 380)}}
	h := newHarness(t, failover.Options{AttemptTimeout: 30 * time.Millisecond}, a, b)

	res, err := h.orchestrator.SearchFlights(context.Background(), validQuery(), domain.ModeSequential, 0)
	if err != nil {
		t.Fatalf("expected failover past slow provider: %v", err)
	}
	if res.Provenance[0] != "bravo" {
		t.Errorf("expected bravo after alpha timeout, got %v", res.Provenance)
	}

	snap := h.registry.MetricsFor("alpha").Snapshot()
	if snap.FailedRequests != 1 {
		t.Errorf("timeout must count as one transient failure, got %d", snap.FailedRequests)
	}

	// The late response must not be re-applied.
	time.Sleep(250 * time.Millisecond)
	if got := h.registry.MetricsFor("alpha").Snapshot().TotalRequests; got != 1 {
		t.Errorf("late result was re-applied: totalRequests=%d", got)
	}
}

// --- Airports ---

func TestSearchAirports_FailoverAndProvenance(t *testing.T) {
	a := &fakePlugin{name: "alpha", searchErr: errors.New("boom")}
	b := &fakePlugin{name: "bravo", airports: []domain.AirportRecord{{IATACode: "LIS", Name: "Humberto Delgado", City: "Lisbon", Country: "PT"}}}
	h := newHarness(t, failover.Options{}, a, b)

	records, provider, err := h.orchestrator.SearchAirports(context.Background(), domain.AirportQuery{Term: "lis"})
	if err != nil {
		t.Fatalf("airports: %v", err)
	}
	if provider != "bravo" {
		t.Errorf("expected provenance bravo, got %s", provider)
	}
	if len(records) != 1 || records[0].IATACode != "LIS" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestSearchAirports_ShortTermRejected(t *testing.T) {
	a := &fakePlugin{name: "alpha"}
	h := newHarness(t, failover.Options{}, a)

	_, _, err := h.orchestrator.SearchAirports(context.Background(), domain.AirportQuery{Term: "l"})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// --- Aggregate mode ---

func TestAggregate_MergesDedupsAndSortsByPrice(t *testing.T) {
	// Both providers resell the same vendor offer QF-77; identity is
	// vendor + native id, so it merges to the cheaper copy. The two
	// EK-11 entries share a native id but differ in vendor, so they
	// must both survive.
	a := &fakePlugin{name: "alpha", offers: []domain.Offer{
		offer("QF", "77", "alpha", 510),
		offer("EK", "11", "alpha", 700),
	}}
	b := &fakePlugin{name: "bravo", offers: []domain.Offer{
		offer("QF", "77", "bravo", 495),
		offer("LH", "11", "bravo", 330),
	}}
	h := newHarness(t, failover.Options{AggregateMaxFanout: 2}, a, b)

	res, err := h.orchestrator.SearchFlights(context.Background(), validQuery(), domain.ModeAggregate, 0)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	if len(res.Offers) != 3 {
		t.Fatalf("expected 3 offers after dedup, got %d: %+v", len(res.Offers), res.Offers)
	}
	wantPrices := []float64{330, 495, 700}
	for i, want := range wantPrices {
		if res.Offers[i].TotalPrice != want {
			t.Errorf("offer %d: expected price %.0f, got %.0f", i, want, res.Offers[i].TotalPrice)
		}
	}
	if res.Offers[1].Provider != "bravo" {
		t.Errorf("merged QF-77 must keep the cheaper copy from bravo, got %s", res.Offers[1].Provider)
	}
	if res.Partial {
		t.Error("both providers succeeded; result must not be partial")
	}
	if len(res.Provenance) != 2 {
		t.Errorf("expected both providers in provenance, got %v", res.Provenance)
	}
}

func TestAggregate_PartialWhenACandidateFails(t *testing.T) {
	a := &fakePlugin{name: "alpha", offers: []domain.Offer{offer("AA", "o1", "alpha", 300)}}
	b := &fakePlugin{name: "bravo", searchErr: errors.New("boom")}
	h := newHarness(t, failover.Options{AggregateMaxFanout: 2}, a, b)

	res, err := h.orchestrator.SearchFlights(context.Background(), validQuery(), domain.ModeAggregate, 0)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !res.Partial {
		t.Error("expected partial=true when a fanned-out candidate fails")
	}
	if len(res.Provenance) != 1 || res.Provenance[0] != "alpha" {
		t.Errorf("expected provenance [alpha], got %v", res.Provenance)
	}
}

func TestAggregate_FanoutBoundRespected(t *testing.T) {
	a := &fakePlugin{name: "alpha", offers: []domain.Offer{offer("AA", "o1", "alpha", 300)}}
	b := &fakePlugin{name: "bravo", offers: []domain.Offer{offer("BB", "o2", "bravo", 310)}}
	c := &fakePlugin{name: "charlie", offers: []domain.Offer{offer("CC", "o3", "charlie", 320)}}
	h := newHarness(t, failover.Options{AggregateMaxFanout: 2}, a, b, c)

	res, err := h.orchestrator.SearchFlights(context.Background(), validQuery(), domain.ModeAggregate, 0)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if c.calls() != 0 {
		t.Errorf("fan-out capped at 2; charlie called %d times", c.calls())
	}
	if len(res.Offers) != 2 {
		t.Errorf("expected offers from 2 providers, got %d", len(res.Offers))
	}
}

func TestAggregate_AllFailedReturnsUnavailable(t *testing.T) {
	a := &fakePlugin{name: "alpha", searchErr: errors.New("down")}
	b := &fakePlugin{name: "bravo", searchErr: errors.New("down")}
	h := newHarness(t, failover.Options{AggregateMaxFanout: 2}, a, b)

	_, err := h.orchestrator.SearchFlights(context.Background(), validQuery(), domain.ModeAggregate, 0)
	var allDown *domain.ErrAllProvidersUnavailable
	if !errors.As(err, &allDown) {
		t.Fatalf("expected aggregate unavailable error, got %v", err)
	}
	if len(allDown.Attempts) != 2 {
		t.Errorf("expected 2 attempt records, got %d", len(allDown.Attempts))
	}
}
