package cache

import (
	"context"

	"github.com/rhoekstra/pattern-engine/internal/engine"
)

// MultiLevel chains a fast local cache (L1) in front of a shared one (L2).
// Reads go L1 then L2, backfilling L1 on an L2 hit; writes and
// invalidations go to both levels.
type MultiLevel struct {
	l1 engine.PatternCache
	l2 engine.PatternCache
}

// NewMultiLevel creates a two-level cache. l2 may be nil, leaving a plain
// single-level cache.
func NewMultiLevel(l1, l2 engine.PatternCache) *MultiLevel {
	return &MultiLevel{l1: l1, l2: l2}
}

// GetPatterns implements engine.PatternCache.
func (m *MultiLevel) GetPatterns(ctx context.Context, administration string, f engine.Filters) ([]engine.VerbPattern, bool) {
	if patterns, ok := m.l1.GetPatterns(ctx, administration, f); ok {
		return patterns, true
	}
	if m.l2 == nil {
		return nil, false
	}
	patterns, ok := m.l2.GetPatterns(ctx, administration, f)
	if !ok {
		return nil, false
	}
	m.l1.StorePatterns(ctx, administration, f, patterns)
	return patterns, true
}

// StorePatterns implements engine.PatternCache.
func (m *MultiLevel) StorePatterns(ctx context.Context, administration string, f engine.Filters, patterns []engine.VerbPattern) {
	m.l1.StorePatterns(ctx, administration, f, patterns)
	if m.l2 != nil {
		m.l2.StorePatterns(ctx, administration, f, patterns)
	}
}

// Invalidate implements engine.PatternCache.
func (m *MultiLevel) Invalidate(ctx context.Context, administration string) {
	m.l1.Invalidate(ctx, administration)
	if m.l2 != nil {
		m.l2.Invalidate(ctx, administration)
	}
}

var _ engine.PatternCache = (*MultiLevel)(nil)
