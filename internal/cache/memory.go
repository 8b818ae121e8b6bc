// Package cache provides the volatile key store used for fast deduplication:
// a Redis implementation for production and an in-memory TTL map for
// single-process runs and tests. Entries are advisory and may vanish at any
// time; durable state lives in Postgres.
package cache

import (
	"context"
	"sync"
	"time"
)

const evictInterval = 5 * time.Minute

// Memory is a thread-safe in-memory TTL key set.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]time.Time // key -> expiry
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemory creates an in-memory store and starts its eviction loop.
// Call Close to stop the loop.
func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]time.Time),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go m.evictLoop()
	return m
}

// Exists reports whether key is present and not expired.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exp, ok := m.entries[key]
	if !ok || m.now().After(exp) {
		return false, nil
	}
	return true, nil
}

// SetTTL marks key as present for ttl.
func (m *Memory) SetTTL(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = m.now().Add(ttl)
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Flush removes every key, simulating a cache restart.
func (m *Memory) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]time.Time)
}

// Stats returns key counts for the status endpoint.
func (m *Memory) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := 0
	now := m.now()
	for _, exp := range m.entries {
		if now.Before(exp) {
			active++
		}
	}
	return map[string]interface{}{
		"backend":      "memory",
		"total_keys":   len(m.entries),
		"active_keys":  active,
		"expired_keys": len(m.entries) - active,
	}
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close stops the eviction loop.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *Memory) evictLoop() {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.evict()
		case <-m.done:
			return
		}
	}
}

func (m *Memory) evict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for key, exp := range m.entries {
		if now.After(exp) {
			delete(m.entries, key)
		}
	}
}
