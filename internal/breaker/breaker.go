// Package breaker implements the process-wide provider availability gate.
//
// Unlike a classic failure-threshold circuit breaker, provider rate limits
// are a binary cooldown: once a provider alias reports a rate limit or
// server error, it is unavailable until a fixed deadline, not until N
// successive successes rebuild confidence. A single Registry is shared by
// every session's dispatcher so that one session's failure immediately
// protects every other session from hammering the same exhausted account.
package breaker

import (
	"sync"
	"time"

	"github.com/ghostmesh/gateway/pkg/models"
)

const (
	rateLimitCooldown = time.Hour
	serverErrCooldown = 5 * time.Minute
)

// Registry tracks cooldown state for every provider alias in the model
// chain configuration.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*models.CircuitBreakerEntry
	now     func() time.Time
}

// NewRegistry creates an empty, process-wide breaker registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*models.CircuitBreakerEntry),
		now:     time.Now,
	}
}

// IsAvailable reports whether alias is currently outside its cooldown
// window.
func (r *Registry) IsAvailable(alias string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[alias]
	if !ok {
		return true
	}
	return r.now().After(e.CooldownUntil)
}

// FirstAvailable returns the first alias in chain that is currently
// available, and false if every alias in the chain is cooling down.
func (r *Registry) FirstAvailable(chain []string) (string, bool) {
	for _, alias := range chain {
		if r.IsAvailable(alias) {
			return alias, true
		}
	}
	return "", false
}

// RecordFailure opens (or extends) the cooldown for alias. rateLimited
// selects the one-hour cooldown; otherwise the five-minute server-error
// cooldown is used. If the alias already has a later cooldown deadline,
// RecordFailure keeps the later one rather than shortening it.
func (r *Registry) RecordFailure(alias string, rateLimited bool, reason string) {
	cooldown := serverErrCooldown
	if rateLimited {
		cooldown = rateLimitCooldown
	}
	deadline := r.now().Add(cooldown)

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[alias]
	if !ok {
		e = &models.CircuitBreakerEntry{Alias: alias}
		r.entries[alias] = e
	}
	if deadline.After(e.CooldownUntil) {
		e.CooldownUntil = deadline
	}
	e.LastFailure = reason
	e.ConsecutiveErr++
}

// RecordSuccess clears any cooldown on alias.
func (r *Registry) RecordSuccess(alias string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[alias]; ok {
		e.CooldownUntil = time.Time{}
		e.ConsecutiveErr = 0
	}
}

// Entry returns a copy of the current breaker state for alias, for
// diagnostics and tests.
func (r *Registry) Entry(alias string) (models.CircuitBreakerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[alias]
	if !ok {
		return models.CircuitBreakerEntry{}, false
	}
	return *e, true
}
