package verdictcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	verdict   bool
	expiresAt time.Time // zero means no expiry
}

// Memory is an in-process LRU cache with per-entry TTL. maxEntries <= 0
// means unbounded and ttl <= 0 means entries never expire. Expired entries
// are swept in the background.
type Memory struct {
	lru *expirable.LRU[string, memoryEntry]
	ttl time.Duration

	counters
}

// NewMemory creates an empty memory cache.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	m := &Memory{ttl: ttl}
	m.lru = expirable.NewLRU[string, memoryEntry](max(maxEntries, 0), m.onEvict, ttl)
	return m
}

// onEvict runs under the LRU's lock for both capacity evictions and the
// background sweep of expired entries.
func (m *Memory) onEvict(_ string, e memoryEntry) {
	if !e.expiresAt.IsZero() && !time.Now().Before(e.expiresAt) {
		m.expirations.Add(1)
		return
	}
	m.evictions.Add(1)
}

// Get returns the verdict for key and refreshes its recency.
func (m *Memory) Get(_ context.Context, key string) (bool, bool, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		m.misses.Add(1)
		return false, false, nil
	}
	m.hits.Add(1)
	return e.verdict, true, nil
}

// Set stores verdict under key, evicting the least recently used entry
// beyond the bound. Rewriting a key restarts its TTL.
func (m *Memory) Set(_ context.Context, key string, verdict bool) error {
	e := memoryEntry{verdict: verdict}
	if m.ttl > 0 {
		e.expiresAt = time.Now().Add(m.ttl)
	}
	m.lru.Add(key, e)
	m.writes.Add(1)
	return nil
}

// Len returns the number of stored entries, expired ones included until swept.
func (m *Memory) Len() int {
	return m.lru.Len()
}

// Stats returns a snapshot of the counters.
func (m *Memory) Stats() Stats {
	s := m.snapshot(BackendMemory)
	s.Entries = int64(m.Len())
	return s
}
