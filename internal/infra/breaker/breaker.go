// Package breaker implements the per-provider circuit breaker that gates
// whether a vendor may be attempted. States follow the usual trio:
// CLOSED (normal), OPEN (skipped until cooldown), HALF_OPEN (one trial).
//
// Only transient vendor failures feed this machine. Configuration and
// validation errors are handled upstream and never recorded here.
package breaker

import (
	"sync"
	"time"

	"github.com/farelink/flightgw/internal/domain"
)

// Settings configures a Breaker.
type Settings struct {
	// FailureThreshold is the number of consecutive transient failures
	// that opens the circuit.
	FailureThreshold int
	// Cooldown is how long an open circuit rejects attempts before
	// permitting a single half-open trial.
	Cooldown time.Duration
	// OnStateChange, if set, is invoked (outside the lock) after every
	// transition.
	OnStateChange func(from, to domain.CircuitStatus)
}

const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second
)

// Breaker is a per-provider failure/cooldown state machine. Safe for
// concurrent use; each provider gets its own instance so contention is
// limited to requests targeting the same vendor.
type Breaker struct {
	mu                  sync.Mutex
	status              domain.CircuitStatus
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool

	failureThreshold int
	cooldown         time.Duration
	onStateChange    func(from, to domain.CircuitStatus)

	now func() time.Time // swapped in tests
}

// New creates a closed Breaker. Zero settings fall back to defaults.
func New(s Settings) *Breaker {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}
	if s.Cooldown <= 0 {
		s.Cooldown = DefaultCooldown
	}
	return &Breaker{
		status:           domain.CircuitClosed,
		failureThreshold: s.FailureThreshold,
		cooldown:         s.Cooldown,
		onStateChange:    s.OnStateChange,
		now:              time.Now,
	}
}

// Allow reports whether an attempt may proceed right now. When an open
// circuit's cooldown has elapsed, the first Allow transitions to
// HALF_OPEN and claims the single trial slot; concurrent callers are
// rejected until the trial completes.
func (b *Breaker) Allow() bool {
	b.mu.Lock()

	switch b.status {
	case domain.CircuitClosed:
		b.mu.Unlock()
		return true

	case domain.CircuitOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return false
		}
		b.status = domain.CircuitHalfOpen
		b.trialInFlight = true
		b.mu.Unlock()
		b.notify(domain.CircuitOpen, domain.CircuitHalfOpen)
		return true

	default: // HALF_OPEN
		if b.trialInFlight {
			b.mu.Unlock()
			return false
		}
		b.trialInFlight = true
		b.mu.Unlock()
		return true
	}
}

// RecordSuccess feeds a successful invocation into the machine.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()

	switch b.status {
	case domain.CircuitHalfOpen:
		b.trialInFlight = false
		b.consecutiveFailures = 0
		b.status = domain.CircuitClosed
		b.mu.Unlock()
		b.notify(domain.CircuitHalfOpen, domain.CircuitClosed)
	default:
		b.consecutiveFailures = 0
		b.mu.Unlock()
	}
}

// RecordFailure feeds a transient failure into the machine.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()

	switch b.status {
	case domain.CircuitClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures < b.failureThreshold {
			b.mu.Unlock()
			return
		}
		b.openedAt = b.now()
		b.status = domain.CircuitOpen
		b.mu.Unlock()
		b.notify(domain.CircuitClosed, domain.CircuitOpen)

	case domain.CircuitHalfOpen:
		// Failed trial: cooldown restarts from now.
		b.trialInFlight = false
		b.openedAt = b.now()
		b.status = domain.CircuitOpen
		b.mu.Unlock()
		b.notify(domain.CircuitHalfOpen, domain.CircuitOpen)

	default:
		b.mu.Unlock()
	}
}

// ReleaseTrial abandons a claimed half-open trial without recording an
// outcome. Used when an attempt is aborted before any vendor traffic
// (e.g. a configuration error), which must not feed the machine.
func (b *Breaker) ReleaseTrial() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == domain.CircuitHalfOpen {
		b.trialInFlight = false
	}
}

// Status returns the current externally visible state.
func (b *Breaker) Status() domain.CircuitStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// ConsecutiveFailures returns the current failure streak.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

func (b *Breaker) notify(from, to domain.CircuitStatus) {
	if b.onStateChange != nil && from != to {
		b.onStateChange(from, to)
	}
}
