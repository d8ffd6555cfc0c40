package domain

import (
	"fmt"
	"strings"
)

// Error types for consistent error handling across the gateway.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a malformed query or request (bad input).
// Rejected before any provider is contacted.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrConfiguration indicates bad or missing credentials for a provider.
// Fatal for that provider only; never counts toward its circuit.
type ErrConfiguration struct {
	Provider string
	Reason   string
}

func (e *ErrConfiguration) Error() string {
	return fmt.Sprintf("provider %s misconfigured: %s", e.Provider, e.Reason)
}

// ErrTransient indicates a timeout, 5xx or connection failure from a
// vendor. The orchestrator moves on to the next candidate; repeated
// occurrences open the provider's circuit.
type ErrTransient struct {
	Provider string
	Err      error
}

func (e *ErrTransient) Error() string {
	return fmt.Sprintf("transient provider error [%s]: %v", e.Provider, e.Err)
}

func (e *ErrTransient) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates a provider was skipped because its circuit
// is open and the cooldown has not elapsed.
type ErrCircuitOpen struct {
	Provider string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit open for provider: %s", e.Provider)
}

// ErrInactiveProvider indicates an operation targeted a deactivated provider.
type ErrInactiveProvider struct {
	Provider string
}

func (e *ErrInactiveProvider) Error() string {
	return fmt.Sprintf("provider is inactive: %s", e.Provider)
}

// AttemptFailure records why one candidate did not produce a result.
type AttemptFailure struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

// ErrAllProvidersUnavailable is returned when every eligible candidate
// was skipped or failed. The only condition under which a search fails
// after validation.
type ErrAllProvidersUnavailable struct {
	Capability Capability
	Attempts   []AttemptFailure
}

func (e *ErrAllProvidersUnavailable) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Provider, a.Reason))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("no providers available for %s", e.Capability)
	}
	return fmt.Sprintf("all providers unavailable for %s (%s)", e.Capability, strings.Join(parts, "; "))
}

// ErrUnauthorized indicates a missing or invalid operator token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}
