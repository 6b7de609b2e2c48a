// Package health tracks whether the backend is reachable. The cached answer is
// a pre-flight gate, not a guarantee.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultTimeout = 3 * time.Second
	DefaultTTL     = 30 * time.Second
)

// Prober issues the lightweight liveness request.
type Prober interface {
	Health(ctx context.Context) error
}

type Status struct {
	Known     bool      `json:"known"`
	Online    bool      `json:"online"`
	CheckedAt time.Time `json:"checked_at"`
}

type Monitor struct {
	probe   Prober
	timeout time.Duration
	ttl     time.Duration
	now     func() time.Time

	mu        sync.RWMutex
	lastKnown *bool
	checkedAt time.Time
}

// NewMonitor creates a monitor with no observation yet. timeout bounds each
// probe; ttl is how long a cached answer is trusted by Available.
func NewMonitor(probe Prober, timeout, ttl time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Monitor{
		probe:   probe,
		timeout: timeout,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Check probes the backend and records the result. Any failure, including a
// timeout, counts as offline and is never returned to the caller.
func (m *Monitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	online := true
	if err := m.probe.Health(ctx); err != nil {
		slog.Warn("backend health check failed", "error", err)
		online = false
	}

	m.mu.Lock()
	m.lastKnown = &online
	m.checkedAt = m.now()
	m.mu.Unlock()

	return online
}

// LastKnown returns the cached answer; known is false until the first Check.
func (m *Monitor) LastKnown() (online bool, known bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastKnown == nil {
		return false, false
	}
	return *m.lastKnown, true
}

// Available answers from the cache while it is fresh and re-checks otherwise.
func (m *Monitor) Available(ctx context.Context) bool {
	m.mu.RLock()
	fresh := m.lastKnown != nil && m.now().Sub(m.checkedAt) < m.ttl
	var online bool
	if fresh {
		online = *m.lastKnown
	}
	m.mu.RUnlock()

	if fresh {
		return online
	}
	return m.Check(ctx)
}

func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Status{CheckedAt: m.checkedAt}
	if m.lastKnown != nil {
		s.Known = true
		s.Online = *m.lastKnown
	}
	return s
}
