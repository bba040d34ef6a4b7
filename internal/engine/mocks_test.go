package engine

import (
	"context"
	"sort"
	"time"
)

// mockSource is a TransactionSource with overridable behavior. When
// QueryFunc is nil it serves Transactions filtered by since and f.
type mockSource struct {
	Transactions []Transaction
	QueryFunc    func(ctx context.Context, administration string, since time.Time, f Filters) ([]Transaction, error)
	QueryCalls   int
}

func (m *mockSource) Query(ctx context.Context, administration string, since time.Time, f Filters) ([]Transaction, error) {
	m.QueryCalls++
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, administration, since, f)
	}
	var out []Transaction
	for _, tx := range m.Transactions {
		if tx.Administration != administration {
			continue
		}
		if !tx.Date.After(since) {
			continue
		}
		if !f.Match(tx) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

// mockLookup answers bank-account membership from a fixed set. Accounts
// maps account codes to true; everything else is not a bank account.
type mockLookup struct {
	Accounts          map[string]bool
	IsBankAccountFunc func(ctx context.Context, administration, accountCode string) (bool, error)
}

func (m *mockLookup) IsBankAccount(ctx context.Context, administration, accountCode string) (bool, error) {
	if m.IsBankAccountFunc != nil {
		return m.IsBankAccountFunc(ctx, administration, accountCode)
	}
	return m.Accounts[accountCode], nil
}

// mockStore is an in-memory PatternStore with call counters and
// overridable failure injection.
type mockStore struct {
	Patterns map[PatternKey]VerbPattern
	Metadata map[string]AnalysisMetadata

	UpsertPatternFunc func(ctx context.Context, p VerbPattern, mode MergeMode) error

	UpsertPatternCalls  int
	UpsertMetadataCalls int
}

func newMockStore() *mockStore {
	return &mockStore{
		Patterns: make(map[PatternKey]VerbPattern),
		Metadata: make(map[string]AnalysisMetadata),
	}
}

func (m *mockStore) UpsertPattern(ctx context.Context, p VerbPattern, mode MergeMode) error {
	m.UpsertPatternCalls++
	if m.UpsertPatternFunc != nil {
		return m.UpsertPatternFunc(ctx, p, mode)
	}
	key := p.Key()
	if existing, ok := m.Patterns[key]; ok && mode == MergeAdditive {
		p.Occurrences += existing.Occurrences
	}
	m.Patterns[key] = p
	return nil
}

func (m *mockStore) ReadAllPatterns(ctx context.Context, administration string) ([]VerbPattern, error) {
	keys := make([]string, 0, len(m.Patterns))
	byKey := make(map[string]VerbPattern, len(m.Patterns))
	for k, p := range m.Patterns {
		if k.Administration != administration {
			continue
		}
		s := k.String()
		keys = append(keys, s)
		byKey[s] = p
	}
	sort.Strings(keys)
	out := make([]VerbPattern, 0, len(keys))
	for _, k := range keys {
		out = append(out, byKey[k])
	}
	return out, nil
}

func (m *mockStore) GetMetadata(ctx context.Context, administration string) (*AnalysisMetadata, error) {
	md, ok := m.Metadata[administration]
	if !ok {
		return nil, nil
	}
	return &md, nil
}

func (m *mockStore) UpsertMetadata(ctx context.Context, md AnalysisMetadata, mode MergeMode) error {
	m.UpsertMetadataCalls++
	if existing, ok := m.Metadata[md.Administration]; ok && mode == MergeAdditive {
		md.TransactionsAnalyzed += existing.TransactionsAnalyzed
	}
	m.Metadata[md.Administration] = md
	return nil
}

// mockCache is a single-level in-memory PatternCache with call counters.
type mockCache struct {
	entries map[string][]VerbPattern

	GetCalls        int
	StoreCalls      int
	InvalidateCalls int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string][]VerbPattern)}
}

func (m *mockCache) GetPatterns(ctx context.Context, administration string, f Filters) ([]VerbPattern, bool) {
	m.GetCalls++
	patterns, ok := m.entries[administration+"|"+f.Fingerprint()]
	return patterns, ok
}

func (m *mockCache) StorePatterns(ctx context.Context, administration string, f Filters, patterns []VerbPattern) {
	m.StoreCalls++
	m.entries[administration+"|"+f.Fingerprint()] = patterns
}

func (m *mockCache) Invalidate(ctx context.Context, administration string) {
	m.InvalidateCalls++
	prefix := administration + "|"
	for k := range m.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.entries, k)
		}
	}
}

func mustDate(t string) time.Time {
	d, err := time.Parse("2006-01-02", t)
	if err != nil {
		panic(err)
	}
	return d
}
