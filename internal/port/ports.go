// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the failover
// engine from concrete vendor adapters and backing stores.
package port

import (
	"context"

	"github.com/farelink/flightgw/internal/domain"
)

// Plugin is the capability contract every vendor adapter implements.
//
// Initialize must validate credentials synchronously or via a lightweight
// round trip. A failed Initialize marks the provider unusable until it is
// re-initialized with corrected credentials; it must return
// *domain.ErrConfiguration, never *domain.ErrTransient.
//
// SearchFlights and SearchAirports must respect ctx deadlines; exceeding
// one is treated identically to a network failure.
type Plugin interface {
	Name() string
	Kind() domain.ProviderKind
	Initialize(ctx context.Context, creds domain.Credentials) error
	SearchFlights(ctx context.Context, query domain.SearchQuery) ([]domain.Offer, error)
	SearchAirports(ctx context.Context, query domain.AirportQuery) ([]domain.AirportRecord, error)
	// CheckHealth is a cheap, side-effect-free round trip used by the
	// out-of-band prober, independent of the failover path.
	CheckHealth(ctx context.Context) domain.HealthProbeResult
}

// CredentialSource yields decrypted vendor credentials on demand,
// keyed by provider name. Implementations never persist plaintext.
type CredentialSource interface {
	Credentials(ctx context.Context, providerName string) (domain.Credentials, error)
	// Configured reports presence without exposing the secret material.
	Configured(ctx context.Context, providerName string) bool
}

// ConfigSource loads persisted provider configuration records.
type ConfigSource interface {
	ListProviderRecords(ctx context.Context) ([]domain.ProviderRecord, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
