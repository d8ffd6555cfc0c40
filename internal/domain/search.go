package domain

import (
	"strings"
	"time"
)

// SearchMode selects how the orchestrator walks the candidate list.
type SearchMode string

const (
	// ModeSequential tries candidates in priority order, returning the
	// first success. This is the default.
	ModeSequential SearchMode = "sequential"
	// ModeAggregate fans out to several candidates concurrently and
	// merges their results.
	ModeAggregate SearchMode = "aggregate"
)

// SearchQuery is the uniform, vendor-agnostic flight query contract.
type SearchQuery struct {
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	DepartureDate time.Time  `json:"departureDate"`
	ReturnDate    *time.Time `json:"returnDate,omitempty"`
	Adults        int        `json:"adults"`
	Children      int        `json:"children"`
	Infants       int        `json:"infants"`
	CabinClass    string     `json:"cabinClass"`
	MaxStops      *int       `json:"maxStops,omitempty"`
	DirectOnly    bool       `json:"directOnly"`
}

// Validate checks the query before any provider is contacted.
func (q SearchQuery) Validate() error {
	if q.Origin == "" {
		return &ErrValidation{Field: "origin", Message: "origin is required"}
	}
	if q.Destination == "" {
		return &ErrValidation{Field: "destination", Message: "destination is required"}
	}
	if strings.EqualFold(q.Origin, q.Destination) {
		return &ErrValidation{Field: "destination", Message: "destination must differ from origin"}
	}
	if q.DepartureDate.IsZero() {
		return &ErrValidation{Field: "departureDate", Message: "departure date is required"}
	}
	if q.ReturnDate != nil && q.ReturnDate.Before(q.DepartureDate) {
		return &ErrValidation{Field: "returnDate", Message: "return date is before departure"}
	}
	if q.Adults < 1 {
		return &ErrValidation{Field: "adults", Message: "at least one adult passenger is required"}
	}
	if q.MaxStops != nil && *q.MaxStops < 0 {
		return &ErrValidation{Field: "maxStops", Message: "maxStops must be >= 0"}
	}
	return nil
}

// Segment is one leg of an offer.
type Segment struct {
	Carrier          string    `json:"carrier"`
	FlightNumber     string    `json:"flightNumber"`
	DepartureAirport string    `json:"departureAirport"`
	ArrivalAirport   string    `json:"arrivalAirport"`
	DepartureTime    time.Time `json:"departureTime"`
	ArrivalTime      time.Time `json:"arrivalTime"`
}

// Offer is a vendor-agnostic priced itinerary.
type Offer struct {
	// Vendor is the originating source of the offer (airline or GDS
	// code); VendorOfferID is that vendor's native identifier. Together
	// they form the dedup identity in aggregate mode. Provider records
	// which plugin produced the offer and is provenance, not identity:
	// two providers reselling the same vendor offer collapse into one.
	Vendor        string    `json:"vendor"`
	VendorOfferID string    `json:"vendorOfferId"`
	Provider      string    `json:"provider"`
	TotalPrice    float64   `json:"totalPrice"`
	Currency      string    `json:"currency"`
	Segments      []Segment `json:"segments"`
	Stops         int       `json:"stops"`
	CabinClass    string    `json:"cabinClass"`
}

// IdentityKey is the normalized dedup key for aggregate merging.
// Identical native ids from different vendors never collapse.
func (o Offer) IdentityKey() string {
	return strings.ToLower(o.Vendor) + "|" + o.VendorOfferID
}

// SearchResult is what the orchestrator hands back to callers.
type SearchResult struct {
	SearchID string  `json:"searchId"`
	Offers   []Offer `json:"offers"`
	// Provenance names the provider that produced the result; in
	// aggregate mode it lists every contributing provider.
	Provenance []string `json:"provenance"`
	Partial    bool     `json:"partial"`
}

// AirportQuery is the uniform airport lookup contract.
type AirportQuery struct {
	Term string `json:"term"`
}

// Validate rejects lookups too short to be useful upstream.
func (q AirportQuery) Validate() error {
	if len(strings.TrimSpace(q.Term)) < 2 {
		return &ErrValidation{Field: "term", Message: "at least 2 characters required"}
	}
	return nil
}

// AirportRecord is a vendor-agnostic airport entry.
type AirportRecord struct {
	IATACode string `json:"iataCode"`
	Name     string `json:"name"`
	City     string `json:"city"`
	Country  string `json:"country"`
}
