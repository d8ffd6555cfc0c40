package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/farelink/flightgw/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	amadeusSandboxURL = "https://test.api.amadeus.com"
	amadeusLiveURL    = "https://api.amadeus.com"
)

// amadeus adapts the Amadeus Self-Service APIs to the plugin contract.
type amadeus struct {
	name       string
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger

	mu          sync.Mutex
	clientID    string
	clientKey   string
	accessToken string
	tokenExpiry time.Time
}

func newAmadeus(cfg domain.ProviderConfig, httpClient *http.Client, logger *zap.Logger) *amadeus {
	base := amadeusSandboxURL
	if cfg.Environment == domain.EnvLive {
		base = amadeusLiveURL
	}
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}
	return &amadeus{
		name:       cfg.Name,
		httpClient: httpClient,
		baseURL:    base,
		logger:     logger,
	}
}

func (a *amadeus) Name() string              { return a.name }
func (a *amadeus) Kind() domain.ProviderKind { return domain.KindAmadeus }

// Initialize validates credentials with a client-credentials token round
// trip. Any failure here is a configuration error by contract.
func (a *amadeus) Initialize(ctx context.Context, creds domain.Credentials) error {
	if creds.APIKey == "" || creds.APISecret == "" {
		return &domain.ErrConfiguration{Provider: a.name, Reason: "api key and secret are required"}
	}

	a.mu.Lock()
	a.clientID = creds.APIKey
	a.clientKey = creds.APISecret
	a.accessToken = ""
	a.mu.Unlock()

	if err := a.refreshToken(ctx); err != nil {
		return &domain.ErrConfiguration{Provider: a.name, Reason: fmt.Sprintf("token request failed: %v", err)}
	}
	return nil
}

func (a *amadeus) refreshToken(ctx context.Context) error {
	a.mu.Lock()
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {a.clientID},
		"client_secret": {a.clientKey},
	}
	a.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/v1/security/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return err
	}

	a.mu.Lock()
	a.accessToken = token.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn-30) * time.Second)
	a.mu.Unlock()
	return nil
}

// doGet performs an authenticated GET, refreshing the token when stale.
func (a *amadeus) doGet(ctx context.Context, path string, params url.Values, out any) error {
	a.mu.Lock()
	stale := a.accessToken == "" || time.Now().After(a.tokenExpiry)
	a.mu.Unlock()
	if stale {
		if err := a.refreshToken(ctx); err != nil {
			return &domain.ErrTransient{Provider: a.name, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &domain.ErrTransient{Provider: a.name, Err: err}
	}
	a.mu.Lock()
	req.Header.Set("Authorization", "Bearer "+a.accessToken)
	a.mu.Unlock()

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &domain.ErrTransient{Provider: a.name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(a.name, resp.StatusCode, fmt.Errorf("amadeus returned status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ErrTransient{Provider: a.name, Err: err}
	}
	return nil
}

// amadeusOffer is the slice of the flight-offers response we map.
type amadeusOffer struct {
	ID          string `json:"id"`
	Itineraries []struct {
		Segments []struct {
			CarrierCode string `json:"carrierCode"`
			Number      string `json:"number"`
			Departure   struct {
				IATACode string    `json:"iataCode"`
				At       time.Time `json:"at"`
			} `json:"departure"`
			Arrival struct {
				IATACode string    `json:"iataCode"`
				At       time.Time `json:"at"`
			} `json:"arrival"`
		} `json:"segments"`
	} `json:"itineraries"`
	Price struct {
		GrandTotal string `json:"grandTotal"`
		Currency   string `json:"currency"`
	} `json:"price"`
	ValidatingAirlineCodes []string `json:"validatingAirlineCodes"`
}

func (a *amadeus) SearchFlights(ctx context.Context, query domain.SearchQuery) ([]domain.Offer, error) {
	ctx, span := tracer.Start(ctx, "Amadeus.SearchFlights")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider.name", a.name),
		attribute.String("search.origin", query.Origin),
	)

	params := url.Values{
		"originLocationCode":      {strings.ToUpper(query.Origin)},
		"destinationLocationCode": {strings.ToUpper(query.Destination)},
		"departureDate":           {query.DepartureDate.Format("2006-01-02")},
		"adults":                  {strconv.Itoa(query.Adults)},
	}
	if query.Children > 0 {
		params.Set("children", strconv.Itoa(query.Children))
	}
	if query.Infants > 0 {
		params.Set("infants", strconv.Itoa(query.Infants))
	}
	if query.ReturnDate != nil {
		params.Set("returnDate", query.ReturnDate.Format("2006-01-02"))
	}
	if query.CabinClass != "" {
		params.Set("travelClass", strings.ToUpper(query.CabinClass))
	}
	if query.DirectOnly {
		params.Set("nonStop", "true")
	}

	var payload struct {
		Data []amadeusOffer `json:"data"`
	}
	if err := a.doGet(ctx, "/v2/shopping/flight-offers", params, &payload); err != nil {
		return nil, err
	}

	offers := make([]domain.Offer, 0, len(payload.Data))
	for _, raw := range payload.Data {
		offer, ok := a.mapOffer(raw, query)
		if !ok {
			continue
		}
		if query.MaxStops != nil && offer.Stops > *query.MaxStops {
			continue
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

func (a *amadeus) mapOffer(raw amadeusOffer, query domain.SearchQuery) (domain.Offer, bool) {
	if len(raw.Itineraries) == 0 {
		return domain.Offer{}, false
	}
	price, err := strconv.ParseFloat(raw.Price.GrandTotal, 64)
	if err != nil {
		return domain.Offer{}, false
	}

	vendor := "AMADEUS"
	if len(raw.ValidatingAirlineCodes) > 0 {
		vendor = raw.ValidatingAirlineCodes[0]
	}

	segments := make([]domain.Segment, 0, len(raw.Itineraries[0].Segments))
	for _, s := range raw.Itineraries[0].Segments {
		segments = append(segments, domain.Segment{
			Carrier:          s.CarrierCode,
			FlightNumber:     s.CarrierCode + s.Number,
			DepartureAirport: s.Departure.IATACode,
			ArrivalAirport:   s.Arrival.IATACode,
			DepartureTime:    s.Departure.At,
			ArrivalTime:      s.Arrival.At,
		})
	}

	return domain.Offer{
		Vendor:        vendor,
		VendorOfferID: raw.ID,
		Provider:      a.name,
		TotalPrice:    price,
		Currency:      raw.Price.Currency,
		Segments:      segments,
		Stops:         len(segments) - 1,
		CabinClass:    query.CabinClass,
	}, true
}

func (a *amadeus) SearchAirports(ctx context.Context, query domain.AirportQuery) ([]domain.AirportRecord, error) {
	ctx, span := tracer.Start(ctx, "Amadeus.SearchAirports")
	defer span.End()

	params := url.Values{
		"subType": {"AIRPORT"},
		"keyword": {query.Term},
	}

	var payload struct {
		Data []struct {
			IATACode string `json:"iataCode"`
			Name     string `json:"name"`
			Address  struct {
				CityName    string `json:"cityName"`
				CountryCode string `json:"countryCode"`
			} `json:"address"`
		} `json:"data"`
	}
	if err := a.doGet(ctx, "/v1/reference-data/locations", params, &payload); err != nil {
		return nil, err
	}

	records := make([]domain.AirportRecord, 0, len(payload.Data))
	for _, d := range payload.Data {
		records = append(records, domain.AirportRecord{
			IATACode: d.IATACode,
			Name:     d.Name,
			City:     d.Address.CityName,
			Country:  d.Address.CountryCode,
		})
	}
	return records, nil
}

// CheckHealth does a minimal reference-data lookup.
func (a *amadeus) CheckHealth(ctx context.Context) domain.HealthProbeResult {
	start := time.Now()
	_, err := a.SearchAirports(ctx, domain.AirportQuery{Term: "LON"})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return domain.HealthProbeResult{Healthy: false, LatencyMs: latency, Message: err.Error()}
	}
	return domain.HealthProbeResult{Healthy: true, LatencyMs: latency}
}
