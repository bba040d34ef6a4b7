// Package cache provides the pattern caches that sit in front of the
// pattern store: a process-local TTL cache, a GCS-backed shared cache and
// a read-through multi-level combination of the two. Cache I/O failures
// are logged and degrade to a miss; the store behind the cache stays the
// source of truth.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rhoekstra/pattern-engine/internal/engine"
)

// DefaultTTL is how long an in-process cache entry stays fresh.
const DefaultTTL = 15 * time.Minute

type memoryEntry struct {
	patterns  []engine.VerbPattern
	expiresAt time.Time
}

// Memory is a process-local pattern cache with per-entry TTL.
// It is safe for concurrent use and hands out copies only.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory creates a memory cache. A non-positive ttl falls back to
// DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(administration string, f engine.Filters) string {
	return administration + "|" + f.Fingerprint()
}

// GetPatterns implements engine.PatternCache. Expired entries are evicted
// on read.
func (m *Memory) GetPatterns(ctx context.Context, administration string, f engine.Filters) ([]engine.VerbPattern, bool) {
	key := cacheKey(administration, f)

	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}

	out := make([]engine.VerbPattern, len(entry.patterns))
	copy(out, entry.patterns)
	return out, true
}

// StorePatterns implements engine.PatternCache.
func (m *Memory) StorePatterns(ctx context.Context, administration string, f engine.Filters, patterns []engine.VerbPattern) {
	stored := make([]engine.VerbPattern, len(patterns))
	copy(stored, patterns)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[cacheKey(administration, f)] = memoryEntry{
		patterns:  stored,
		expiresAt: m.now().Add(m.ttl),
	}
}

// Invalidate implements engine.PatternCache. It drops every entry of the
// administration, filtered variants included.
func (m *Memory) Invalidate(ctx context.Context, administration string) {
	prefix := administration + "|"

	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
}

var _ engine.PatternCache = (*Memory)(nil)
