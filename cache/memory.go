// Package cache provides caching implementations for Custos principal
// lookups. The caches are process-local: entries can go stale against
// out-of-band database writes for up to their TTL.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/custos/principal"
)

// Memory is an in-memory principal cache with per-entry TTL expiration.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	maxSize int
}

type entry struct {
	user      *principal.User
	expiresAt time.Time // zero means no expiry
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithMaxSize sets the maximum number of cache entries.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// NewMemory creates a new in-memory principal cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*entry),
		maxSize: 1024,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetUser returns a cached user, if present and not expired.
func (m *Memory) GetUser(_ context.Context, key string) (*principal.User, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}
	return e.user, true
}

// SetUser stores a user. A positive ttl expires the entry after that
// duration; a negative ttl caches it until invalidated; a zero ttl
// stores nothing.
func (m *Memory) SetUser(_ context.Context, key string, u *principal.User, ttl time.Duration) {
	if ttl == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// Evict if at capacity.
	if len(m.entries) >= m.maxSize {
		m.evictExpired()
		if len(m.entries) >= m.maxSize {
			// Evict an arbitrary entry.
			m.evictOne()
		}
	}

	e := &entry{user: u}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = e
}

// Invalidate removes a cached user.
func (m *Memory) Invalidate(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// evictExpired removes all expired entries. Must hold write lock.
func (m *Memory) evictExpired() {
	now := time.Now()
	for k, e := range m.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

// evictOne removes one arbitrary entry. Must hold write lock.
func (m *Memory) evictOne() {
	for k := range m.entries {
		delete(m.entries, k)
		return
	}
}
