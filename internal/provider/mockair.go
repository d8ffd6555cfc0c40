package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/farelink/flightgw/internal/domain"
)

// mockAir is a deterministic in-process vendor for sandbox environments
// and tests. Offers are derived from the query so the same search always
// yields the same results.
type mockAir struct {
	name        string
	initialized bool
}

func newMockAir(cfg domain.ProviderConfig) *mockAir {
	return &mockAir{name: cfg.Name}
}

func (m *mockAir) Name() string              { return m.name }
func (m *mockAir) Kind() domain.ProviderKind { return domain.KindMockAir }

func (m *mockAir) Initialize(_ context.Context, creds domain.Credentials) error {
	if creds.APIKey == "" {
		return &domain.ErrConfiguration{Provider: m.name, Reason: "api key is required"}
	}
	m.initialized = true
	return nil
}

func (m *mockAir) SearchFlights(ctx context.Context, query domain.SearchQuery) ([]domain.Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ErrTransient{Provider: m.name, Err: err}
	}

	seed := hashQuery(query)
	carriers := []string{"MK", "FL", "GW"}

	offers := make([]domain.Offer, 0, 3)
	for i := 0; i < 3; i++ {
		stops := int(seed+uint32(i)) % 3
		if query.DirectOnly && stops > 0 {
			continue
		}
		if query.MaxStops != nil && stops > *query.MaxStops {
			continue
		}

		carrier := carriers[i%len(carriers)]
		depart := query.DepartureDate.Add(time.Duration(6+i*4) * time.Hour)
		arrive := depart.Add(time.Duration(7+stops*2) * time.Hour)

		offers = append(offers, domain.Offer{
			Vendor:        carrier,
			VendorOfferID: fmt.Sprintf("%s-%d-%d", carrier, seed, i),
			Provider:      m.name,
			TotalPrice:    float64(180+int(seed)%400+i*55) * float64(query.Adults),
			Currency:      "USD",
			Stops:         stops,
			CabinClass:    query.CabinClass,
			Segments: []domain.Segment{{
				Carrier:          carrier,
				FlightNumber:     fmt.Sprintf("%s%03d", carrier, (seed+uint32(i))%900+100),
				DepartureAirport: strings.ToUpper(query.Origin),
				ArrivalAirport:   strings.ToUpper(query.Destination),
				DepartureTime:    depart,
				ArrivalTime:      arrive,
			}},
		})
	}
	return offers, nil
}

var mockAirports = []domain.AirportRecord{
	{IATACode: "GRU", Name: "Guarulhos International", City: "Sao Paulo", Country: "BR"},
	{IATACode: "GIG", Name: "Galeao International", City: "Rio de Janeiro", Country: "BR"},
	{IATACode: "LIS", Name: "Humberto Delgado", City: "Lisbon", Country: "PT"},
	{IATACode: "LHR", Name: "Heathrow", City: "London", Country: "GB"},
	{IATACode: "JFK", Name: "John F. Kennedy International", City: "New York", Country: "US"},
	{IATACode: "CDG", Name: "Charles de Gaulle", City: "Paris", Country: "FR"},
}

func (m *mockAir) SearchAirports(ctx context.Context, query domain.AirportQuery) ([]domain.AirportRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ErrTransient{Provider: m.name, Err: err}
	}

	term := strings.ToLower(strings.TrimSpace(query.Term))
	out := make([]domain.AirportRecord, 0, len(mockAirports))
	for _, a := range mockAirports {
		if strings.Contains(strings.ToLower(a.IATACode), term) ||
			strings.Contains(strings.ToLower(a.Name), term) ||
			strings.Contains(strings.ToLower(a.City), term) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAir) CheckHealth(_ context.Context) domain.HealthProbeResult {
	if !m.initialized {
		return domain.HealthProbeResult{Healthy: false, Message: "not initialized"}
	}
	return domain.HealthProbeResult{Healthy: true, LatencyMs: 1}
}

func hashQuery(q domain.SearchQuery) uint32 {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%s|%s", strings.ToUpper(q.Origin), strings.ToUpper(q.Destination), q.DepartureDate.Format("2006-01-02"))
	return h.Sum32()
}
