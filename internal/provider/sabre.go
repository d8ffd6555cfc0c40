package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/farelink/flightgw/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	sabreSandboxURL = "https://api.cert.platform.sabre.com"
	sabreLiveURL    = "https://api.platform.sabre.com"
)

// sabre adapts the Sabre Dev Studio REST APIs to the plugin contract.
type sabre struct {
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

func newSabre(cfg domain.ProviderConfig, httpClient *http.Client, logger *zap.Logger) *sabre {
	base := sabreSandboxURL
	if cfg.Environment == domain.EnvLive {
		base = sabreLiveURL
	}
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}
	return &sabre{
		name:       cfg.Name,
		httpClient: httpClient,
		baseURL:    base,
		logger:     logger,
	}
}

func (s *sabre) Name() string              { return s.name }
func (s *sabre) Kind() domain.ProviderKind { return domain.KindSabre }

func (s *sabre) Initialize(ctx context.Context, creds domain.Credentials) error {
	if creds.APIKey == "" || creds.APISecret == "" {
		return &domain.ErrConfiguration{Provider: s.name, Reason: "client id and secret are required"}
	}

	s.mu.Lock()
	s.clientID = creds.APIKey
	s.clientKey = creds.APISecret
	s.accessToken = ""
	s.mu.Unlock()

	if err := s.refreshToken(ctx); err != nil {
		return &domain.ErrConfiguration{Provider: s.name, Reason: fmt.Sprintf("token request failed: %v", err)}
	}
	return nil
}

// refreshToken performs the Sabre token exchange. The credentials pair is
// itself base64-wrapped before going into the basic-auth header.
func (s *sabre) refreshToken(ctx context.Context) error {
	s.mu.Lock()
	id := base64.StdEncoding.EncodeToString([]byte(s.clientID))
	secret := base64.StdEncoding.EncodeToString([]byte(s.clientKey))
	s.mu.Unlock()

	body := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v2/auth/token", body)
	if err != nil {
		return err
	}
	pair := base64.StdEncoding.EncodeToString([]byte(id + ":" + secret))
	req.Header.Set("Authorization", "Basic "+pair)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
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

	s.mu.Lock()
	s.accessToken = token.AccessToken
	s.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn-30) * time.Second)
	s.mu.Unlock()
	return nil
}

func (s *sabre) do(ctx context.Context, method, path string, body, out any) error {
	s.mu.Lock()
	stale := s.accessToken == "" || time.Now().After(s.tokenExpiry)
	s.mu.Unlock()
	if stale {
		if err := s.refreshToken(ctx); err != nil {
			return &domain.ErrTransient{Provider: s.name, Err: err}
		}
	}

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &domain.ErrTransient{Provider: s.name, Err: err}
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return &domain.ErrTransient{Provider: s.name, Err: err}
	}
	s.mu.Lock()
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	s.mu.Unlock()
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &domain.ErrTransient{Provider: s.name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(s.name, resp.StatusCode, fmt.Errorf("sabre returned status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ErrTransient{Provider: s.name, Err: err}
	}
	return nil
}

// sabreItinerary is the slice of the BargainFinderMax response we map.
type sabreItinerary struct {
	ID             string `json:"id"`
	PricedItin     string `json:"pricedItinId"`
	ValidatingCode string `json:"validatingCarrierCode"`
	Legs           []struct {
		Segments []struct {
			Carrier      string    `json:"marketingCarrier"`
			FlightNumber string    `json:"flightNumber"`
			Origin       string    `json:"origin"`
			Destination  string    `json:"destination"`
			DepartureAt  time.Time `json:"departureDateTime"`
			ArrivalAt    time.Time `json:"arrivalDateTime"`
		} `json:"segments"`
	} `json:"legs"`
	Fare struct {
		TotalAmount float64 `json:"totalAmount"`
		Currency    string  `json:"currency"`
	} `json:"fare"`
}

func (s *sabre) SearchFlights(ctx context.Context, query domain.SearchQuery) ([]domain.Offer, error) {
	ctx, span := tracer.Start(ctx, "Sabre.SearchFlights")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider.name", s.name),
		attribute.String("search.origin", query.Origin),
	)

	request := map[string]any{
		"origin":        strings.ToUpper(query.Origin),
		"destination":   strings.ToUpper(query.Destination),
		"departureDate": query.DepartureDate.Format("2006-01-02"),
		"passengers": map[string]int{
			"adults":   query.Adults,
			"children": query.Children,
			"infants":  query.Infants,
		},
	}
	if query.ReturnDate != nil {
		request["returnDate"] = query.ReturnDate.Format("2006-01-02")
	}
	if query.CabinClass != "" {
		request["cabinClass"] = strings.ToUpper(query.CabinClass)
	}
	if query.DirectOnly {
		request["maxStops"] = 0
	} else if query.MaxStops != nil {
		request["maxStops"] = *query.MaxStops
	}

	var payload struct {
		Itineraries []sabreItinerary `json:"itineraries"`
	}
	if err := s.do(ctx, http.MethodPost, "/v4/offers/shop", request, &payload); err != nil {
		return nil, err
	}

	offers := make([]domain.Offer, 0, len(payload.Itineraries))
	for _, raw := range payload.Itineraries {
		offer, ok := s.mapItinerary(raw, query)
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

func (s *sabre) mapItinerary(raw sabreItinerary, query domain.SearchQuery) (domain.Offer, bool) {
	if len(raw.Legs) == 0 || raw.Fare.TotalAmount <= 0 {
		return domain.Offer{}, false
	}

	vendor := "SABRE"
	if raw.ValidatingCode != "" {
		vendor = raw.ValidatingCode
	}
	offerID := raw.ID
	if offerID == "" {
		offerID = raw.PricedItin
	}

	segments := make([]domain.Segment, 0, len(raw.Legs[0].Segments))
	for _, seg := range raw.Legs[0].Segments {
		segments = append(segments, domain.Segment{
			Carrier:          seg.Carrier,
			FlightNumber:     seg.Carrier + seg.FlightNumber,
			DepartureAirport: seg.Origin,
			ArrivalAirport:   seg.Destination,
			DepartureTime:    seg.DepartureAt,
			ArrivalTime:      seg.ArrivalAt,
		})
	}

	return domain.Offer{
		Vendor:        vendor,
		VendorOfferID: offerID,
		Provider:      s.name,
		TotalPrice:    raw.Fare.TotalAmount,
		Currency:      raw.Fare.Currency,
		Segments:      segments,
		Stops:         len(segments) - 1,
		CabinClass:    query.CabinClass,
	}, true
}

func (s *sabre) SearchAirports(ctx context.Context, query domain.AirportQuery) ([]domain.AirportRecord, error) {
	ctx, span := tracer.Start(ctx, "Sabre.SearchAirports")
	defer span.End()

	path := "/v1/lists/utilities/geoservices/autocomplete?category=AIR&query=" + url.QueryEscape(query.Term)

	var payload struct {
		Response struct {
			Grouped struct {
				CategoryAir struct {
					DocList struct {
						Docs []struct {
							ID          string `json:"id"`
							Name        string `json:"name"`
							City        string `json:"city"`
							CountryCode string `json:"countryCode"`
						} `json:"docs"`
					} `json:"doclist"`
				} `json:"category:AIR"`
			} `json:"grouped"`
		} `json:"Response"`
	}
	if err := s.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}

	docs := payload.Response.Grouped.CategoryAir.DocList.Docs
	records := make([]domain.AirportRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, domain.AirportRecord{
			IATACode: d.ID,
			Name:     d.Name,
			City:     d.City,
			Country:  d.CountryCode,
		})
	}
	return records, nil
}

// CheckHealth does a minimal autocomplete lookup.
func (s *sabre) CheckHealth(ctx context.Context) domain.HealthProbeResult {
	start := time.Now()
	_, err := s.SearchAirports(ctx, domain.AirportQuery{Term: "NYC"})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return domain.HealthProbeResult{Healthy: false, LatencyMs: latency, Message: err.Error()}
	}
	return domain.HealthProbeResult{Healthy: true, LatencyMs: latency}
}
