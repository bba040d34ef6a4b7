package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rhoekstra/pattern-engine/internal/engine"
)

func somePatterns() []engine.VerbPattern {
	return []engine.VerbPattern{{
		Administration: "acme",
		BankAccount:    "1300",
		Verb:           "PICNIC",
		DebetAccount:   "4007",
		Occurrences:    3,
		Confidence:     1.0,
	}}
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	if _, ok := m.GetPatterns(ctx, "acme", engine.Filters{}); ok {
		t.Fatal("empty cache must miss")
	}

	want := somePatterns()
	m.StorePatterns(ctx, "acme", engine.Filters{}, want)

	got, ok := m.GetPatterns(ctx, "acme", engine.Filters{})
	if !ok {
		t.Fatal("expected a hit")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("patterns mismatch (-want +got):\n%s", diff)
	}

	// mutating the returned slice must not poison the cache
	got[0].DebetAccount = "9999"
	fresh, _ := m.GetPatterns(ctx, "acme", engine.Filters{})
	if fresh[0].DebetAccount != "4007" {
		t.Error("cache handed out its internal slice")
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.StorePatterns(ctx, "acme", engine.Filters{}, somePatterns())
	if _, ok := m.GetPatterns(ctx, "acme", engine.Filters{}); !ok {
		t.Fatal("expected a hit before expiry")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := m.GetPatterns(ctx, "acme", engine.Filters{}); ok {
		t.Error("expected a miss after the TTL")
	}
}

func TestMemoryFilterVariantsAreSeparate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	m.StorePatterns(ctx, "acme", engine.Filters{}, somePatterns())
	if _, ok := m.GetPatterns(ctx, "acme", engine.Filters{Debet: "4007"}); ok {
		t.Error("filtered lookup must not hit the unfiltered entry")
	}
}

func TestMemoryInvalidateDropsAllVariants(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	m.StorePatterns(ctx, "acme", engine.Filters{}, somePatterns())
	m.StorePatterns(ctx, "acme", engine.Filters{Debet: "4007"}, somePatterns())
	m.StorePatterns(ctx, "umbrella", engine.Filters{}, somePatterns())

	m.Invalidate(ctx, "acme")

	if _, ok := m.GetPatterns(ctx, "acme", engine.Filters{}); ok {
		t.Error("unfiltered entry survived invalidation")
	}
	if _, ok := m.GetPatterns(ctx, "acme", engine.Filters{Debet: "4007"}); ok {
		t.Error("filtered entry survived invalidation")
	}
	if _, ok := m.GetPatterns(ctx, "umbrella", engine.Filters{}); !ok {
		t.Error("invalidation leaked into another administration")
	}
}

// countingCache wraps Memory with hit counters for multi-level assertions.
type countingCache struct {
	*Memory
	gets, stores, invalidates int
}

func newCountingCache() *countingCache {
	return &countingCache{Memory: NewMemory(time.Minute)}
}

func (c *countingCache) GetPatterns(ctx context.Context, administration string, f engine.Filters) ([]engine.VerbPattern, bool) {
	c.gets++
	return c.Memory.GetPatterns(ctx, administration, f)
}

func (c *countingCache) StorePatterns(ctx context.Context, administration string, f engine.Filters, patterns []engine.VerbPattern) {
	c.stores++
	c.Memory.StorePatterns(ctx, administration, f, patterns)
}

func (c *countingCache) Invalidate(ctx context.Context, administration string) {
	c.invalidates++
	c.Memory.Invalidate(ctx, administration)
}

func TestMultiLevelBackfillsL1(t *testing.T) {
	ctx := context.Background()
	l1 := newCountingCache()
	l2 := newCountingCache()
	ml := NewMultiLevel(l1, l2)

	// seed only the shared level
	l2.Memory.StorePatterns(ctx, "acme", engine.Filters{}, somePatterns())

	if _, ok := ml.GetPatterns(ctx, "acme", engine.Filters{}); !ok {
		t.Fatal("expected an L2 hit")
	}
	if l1.stores != 1 {
		t.Errorf("L1 backfill stores = %d, want 1", l1.stores)
	}

	// second read is served locally
	if _, ok := ml.GetPatterns(ctx, "acme", engine.Filters{}); !ok {
		t.Fatal("expected an L1 hit")
	}
	if l2.gets != 1 {
		t.Errorf("L2 gets = %d, want 1", l2.gets)
	}
}

func TestMultiLevelWritesAndInvalidatesBothLevels(t *testing.T) {
	ctx := context.Background()
	l1 := newCountingCache()
	l2 := newCountingCache()
	ml := NewMultiLevel(l1, l2)

	ml.StorePatterns(ctx, "acme", engine.Filters{}, somePatterns())
	if l1.stores != 1 || l2.stores != 1 {
		t.Errorf("stores = (%d, %d), want (1, 1)", l1.stores, l2.stores)
	}

	ml.Invalidate(ctx, "acme")
	if l1.invalidates != 1 || l2.invalidates != 1 {
		t.Errorf("invalidates = (%d, %d), want (1, 1)", l1.invalidates, l2.invalidates)
	}
	if _, ok := ml.GetPatterns(ctx, "acme", engine.Filters{}); ok {
		t.Error("entry survived multi-level invalidation")
	}
}

func TestMultiLevelWithoutL2(t *testing.T) {
	ctx := context.Background()
	ml := NewMultiLevel(NewMemory(time.Minute), nil)

	ml.StorePatterns(ctx, "acme", engine.Filters{}, somePatterns())
	if _, ok := ml.GetPatterns(ctx, "acme", engine.Filters{}); !ok {
		t.Error("single-level configuration must still round-trip")
	}
	ml.Invalidate(ctx, "acme")
	if _, ok := ml.GetPatterns(ctx, "acme", engine.Filters{}); ok {
		t.Error("entry survived invalidation")
	}
}
