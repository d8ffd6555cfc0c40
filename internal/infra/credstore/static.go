package credstore

import (
	"context"
	"sync"

	"github.com/farelink/flightgw/internal/domain"
)

// Static is an in-memory credential source for sandbox providers and
// tests. Implements port.CredentialSource.
type Static struct {
	mu    sync.RWMutex
	creds map[string]domain.Credentials
}

// NewStatic creates a static source from the given map.
func NewStatic(creds map[string]domain.Credentials) *Static {
	if creds == nil {
		creds = make(map[string]domain.Credentials)
	}
	return &Static{creds: creds}
}

// Credentials returns the stored credentials for the provider.
func (s *Static) Credentials(_ context.Context, providerName string) (domain.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds, ok := s.creds[providerName]
	if !ok {
		return domain.Credentials{}, &domain.ErrConfiguration{Provider: providerName, Reason: "no credentials configured"}
	}
	return creds, nil
}

// Configured reports whether credentials exist for the provider.
func (s *Static) Configured(_ context.Context, providerName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.creds[providerName]
	return ok
}

// Put stores credentials for a provider.
func (s *Static) Put(providerName string, creds domain.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds[providerName] = creds
}
