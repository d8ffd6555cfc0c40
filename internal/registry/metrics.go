package registry

import (
	"sync"
	"time"

	"github.com/farelink/flightgw/internal/domain"
)

// DefaultLatencyWindow caps the rolling latency sample window.
const DefaultLatencyWindow = 100

// RollingMetrics tracks per-provider counters and a bounded FIFO latency
// window. One instance per provider; updated exactly once per completed
// invocation under its own lock, so unrelated providers never contend.
type RollingMetrics struct {
	mu         sync.Mutex
	total      int64
	successful int64
	failed     int64
	lastUsedAt time.Time

	samples []float64 // ring buffer of latency ms
	next    int
	filled  int
	sum     float64
}

// NewRollingMetrics creates a tracker with the given window capacity.
func NewRollingMetrics(window int) *RollingMetrics {
	if window <= 0 {
		window = DefaultLatencyWindow
	}
	return &RollingMetrics{samples: make([]float64, window)}
}

// Record applies one completed invocation: counters, latency window and
// lastUsedAt move together or not at all.
func (m *RollingMetrics) Record(success bool, latency time.Duration) {
	ms := float64(latency.Milliseconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	if success {
		m.successful++
	} else {
		m.failed++
	}

	if m.filled == len(m.samples) {
		m.sum -= m.samples[m.next] // evict oldest
	} else {
		m.filled++
	}
	m.samples[m.next] = ms
	m.sum += ms
	m.next = (m.next + 1) % len(m.samples)

	m.lastUsedAt = time.Now()
}

// Snapshot returns a consistent read of the counters. Success rate is
// derived here; an unused provider reports 100 (presumed healthy).
func (m *RollingMetrics) Snapshot() domain.ProviderMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := domain.ProviderMetrics{
		TotalRequests:      m.total,
		SuccessfulRequests: m.successful,
		FailedRequests:     m.failed,
		SuccessRatePercent: 100,
	}
	if m.total > 0 {
		snap.SuccessRatePercent = float64(m.successful) / float64(m.total) * 100
	}
	if m.filled > 0 {
		snap.AverageLatencyMs = m.sum / float64(m.filled)
	}
	if !m.lastUsedAt.IsZero() {
		t := m.lastUsedAt
		snap.LastUsedAt = &t
	}
	return snap
}

// WindowLen reports how many latency samples are currently held.
func (m *RollingMetrics) WindowLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filled
}
