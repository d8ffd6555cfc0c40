package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/farelink/flightgw/internal/domain"
	"github.com/farelink/flightgw/internal/failover"
	"github.com/farelink/flightgw/internal/infra/cache"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// flightSearchRequest is the wire shape of a flight search. Dates come in
// as YYYY-MM-DD; mode and deadline are optional tuning knobs.
type flightSearchRequest struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departureDate"`
	ReturnDate    string `json:"returnDate,omitempty"`
	Adults        int    `json:"adults"`
	Children      int    `json:"children"`
	Infants       int    `json:"infants"`
	CabinClass    string `json:"cabinClass,omitempty"`
	MaxStops      *int   `json:"maxStops,omitempty"`
	DirectOnly    bool   `json:"directOnly"`
	Mode          string `json:"mode,omitempty"`
	DeadlineMs    int    `json:"deadlineMs,omitempty"`
}

func (req flightSearchRequest) toQuery() (domain.SearchQuery, error) {
	query := domain.SearchQuery{
		Origin:      strings.ToUpper(strings.TrimSpace(req.Origin)),
		Destination: strings.ToUpper(strings.TrimSpace(req.Destination)),
		Adults:      req.Adults,
		Children:    req.Children,
		Infants:     req.Infants,
		CabinClass:  req.CabinClass,
		MaxStops:    req.MaxStops,
		DirectOnly:  req.DirectOnly,
	}
	if req.DepartureDate != "" {
		d, err := time.Parse("2006-01-02", req.DepartureDate)
		if err != nil {
			return query, &domain.ErrValidation{Field: "departureDate", Message: "expected YYYY-MM-DD"}
		}
		query.DepartureDate = d
	}
	if req.ReturnDate != "" {
		d, err := time.Parse("2006-01-02", req.ReturnDate)
		if err != nil {
			return query, &domain.ErrValidation{Field: "returnDate", Message: "expected YYYY-MM-DD"}
		}
		query.ReturnDate = &d
	}
	return query, nil
}

func searchFlightsHandler(orch *failover.Orchestrator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/search/flights")
		defer span.End()

		var req flightSearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		query, err := req.toQuery()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		mode := domain.SearchMode(req.Mode)
		switch mode {
		case "", domain.ModeSequential, domain.ModeAggregate:
		default:
			writeError(w, http.StatusBadRequest, "mode must be sequential or aggregate")
			return
		}
		span.SetAttributes(
			attribute.String("search.origin", query.Origin),
			attribute.String("search.destination", query.Destination),
			attribute.String("search.mode", string(mode)),
		)

		result, err := orch.SearchFlights(ctx, query, mode, time.Duration(req.DeadlineMs)*time.Millisecond)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func searchAirportsHandler(orch *failover.Orchestrator, airportCache *cache.InMemory[[]domain.AirportRecord], logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/search/airports")
		defer span.End()

		query := domain.AirportQuery{Term: r.URL.Query().Get("q")}
		if err := query.Validate(); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		cacheKey := strings.ToLower(strings.TrimSpace(query.Term))
		if records, ok := airportCache.Get(cacheKey); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			writeJSON(w, http.StatusOK, map[string]any{"airports": records, "cached": true})
			return
		}

		records, provider, err := orch.SearchAirports(ctx, query)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		airportCache.Set(cacheKey, records)

		writeJSON(w, http.StatusOK, map[string]any{
			"airports": records,
			"provider": provider,
			"cached":   false,
		})
	}
}
