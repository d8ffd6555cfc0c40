package domain

import "time"

// ProviderKind enumerates the supported vendor integrations.
// Dispatch is by this tag, not by open-ended dynamic typing.
type ProviderKind string

const (
	KindAmadeus ProviderKind = "amadeus"
	KindSabre   ProviderKind = "sabre"
	KindMockAir ProviderKind = "mockair"
)

// Capability is a query type a provider can serve.
type Capability string

const (
	CapabilityFlightSearch  Capability = "flight_search"
	CapabilityAirportSearch Capability = "airport_search"
)

// Environment selects the vendor endpoint set.
type Environment string

const (
	EnvSandbox Environment = "sandbox"
	EnvLive    Environment = "live"
)

// CircuitStatus is the externally visible state of a provider's circuit.
type CircuitStatus string

const (
	CircuitClosed   CircuitStatus = "CLOSED"
	CircuitOpen     CircuitStatus = "OPEN"
	CircuitHalfOpen CircuitStatus = "HALF_OPEN"
)

// ProviderConfig is the identity and routing policy for one vendor.
// Mutated only through Registry operations, never directly.
type ProviderConfig struct {
	Name        string       `json:"name"`
	DisplayName string       `json:"displayName"`
	Kind        ProviderKind `json:"providerKind"`
	Environment Environment  `json:"environment"`
	// BaseURL overrides the vendor endpoint derived from Environment.
	// Used for self-hosted vendor proxies and tests.
	BaseURL      string       `json:"baseUrl,omitempty"`
	Priority     int          `json:"priority"` // lower = tried first
	IsActive     bool         `json:"isActive"`
	IsPrimary    bool         `json:"isPrimary"`
	Capabilities []Capability `json:"supportedCapabilities"`
}

// Supports reports whether the config lists the given capability.
func (c ProviderConfig) Supports(cap Capability) bool {
	for _, have := range c.Capabilities {
		if have == cap {
			return true
		}
	}
	return false
}

// ProviderRecord is the externally persisted configuration row the
// registry loads on startup or admin change. Credentials stay encrypted.
type ProviderRecord struct {
	Name                  string       `json:"name"`
	DisplayName           string       `json:"displayName"`
	ProviderKind          ProviderKind `json:"providerKind"`
	EnvironmentTag        Environment  `json:"environmentTag"`
	IsActive              bool         `json:"isActive"`
	IsPrimary             bool         `json:"isPrimary"`
	Priority              int          `json:"priority"`
	SupportedCapabilities []Capability `json:"supportedCapabilities"`
	EncryptedCredentials  string       `json:"encryptedCredentials"`
}

// Credentials holds decrypted vendor credentials. Never serialized in
// API responses; only presence is reported via `configured`.
type Credentials struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
	AccountID string `json:"accountId,omitempty"`
}

// ProviderMetrics is a point-in-time snapshot of a provider's counters.
type ProviderMetrics struct {
	TotalRequests      int64      `json:"totalRequests"`
	SuccessfulRequests int64      `json:"successfulRequests"`
	FailedRequests     int64      `json:"failedRequests"`
	AverageLatencyMs   float64    `json:"averageLatencyMs"`
	SuccessRatePercent float64    `json:"successRatePercent"`
	LastUsedAt         *time.Time `json:"lastUsedAt,omitempty"`
}

// ProviderHealth is derived on demand from metrics, circuit state and the
// last out-of-band probe. It has no independent lifecycle.
type ProviderHealth struct {
	Name               string        `json:"name"`
	IsHealthy          bool          `json:"isHealthy"`
	LatencyMs          int64         `json:"latencyMs"`
	LastCheckedAt      *time.Time    `json:"lastCheckedAt,omitempty"`
	ErrorCount         int64         `json:"errorCount"`
	SuccessRatePercent float64       `json:"successRatePercent"`
	CircuitStatus      CircuitStatus `json:"circuitStatus"`
	Message            string        `json:"message,omitempty"`
}

// HealthProbeResult is returned by a plugin's cheap health round trip.
type HealthProbeResult struct {
	Healthy   bool
	LatencyMs int64
	Message   string
}
