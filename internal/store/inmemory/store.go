// Package inmemory provides in-memory implementations of the engine's
// storage interfaces. They back the CLI dry-run mode and tests; data is
// lost on process exit.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rhoekstra/pattern-engine/internal/engine"
)

// PatternStore is an in-memory engine.PatternStore.
// It is safe for concurrent use and hands out copies only.
type PatternStore struct {
	mu       sync.RWMutex
	patterns map[engine.PatternKey]engine.VerbPattern
	metadata map[string]engine.AnalysisMetadata
}

// NewPatternStore creates an empty in-memory pattern store.
func NewPatternStore() *PatternStore {
	return &PatternStore{
		patterns: make(map[engine.PatternKey]engine.VerbPattern),
		metadata: make(map[string]engine.AnalysisMetadata),
	}
}

// UpsertPattern implements engine.PatternStore.
func (s *PatternStore) UpsertPattern(ctx context.Context, p engine.VerbPattern, mode engine.MergeMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.Key()
	if existing, ok := s.patterns[key]; ok && mode == engine.MergeAdditive {
		p.Occurrences += existing.Occurrences
		if existing.LastSeen.After(p.LastSeen) {
			p.LastSeen = existing.LastSeen
		}
	}
	s.patterns[key] = p
	return nil
}

// ReadAllPatterns implements engine.PatternStore. Patterns come back in
// key order.
func (s *PatternStore) ReadAllPatterns(ctx context.Context, administration string) ([]engine.VerbPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.patterns))
	byKey := make(map[string]engine.VerbPattern, len(s.patterns))
	for k, p := range s.patterns {
		if k.Administration != administration {
			continue
		}
		ks := k.String()
		keys = append(keys, ks)
		byKey[ks] = p
	}
	sort.Strings(keys)

	out := make([]engine.VerbPattern, 0, len(keys))
	for _, k := range keys {
		out = append(out, byKey[k])
	}
	return out, nil
}

// GetMetadata implements engine.PatternStore. Returns (nil, nil) for an
// administration that was never analyzed.
func (s *PatternStore) GetMetadata(ctx context.Context, administration string) (*engine.AnalysisMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	md, ok := s.metadata[administration]
	if !ok {
		return nil, nil
	}
	return &md, nil
}

// UpsertMetadata implements engine.PatternStore.
func (s *PatternStore) UpsertMetadata(ctx context.Context, md engine.AnalysisMetadata, mode engine.MergeMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.metadata[md.Administration]; ok && mode == engine.MergeAdditive {
		md.TransactionsAnalyzed += existing.TransactionsAnalyzed
	}
	s.metadata[md.Administration] = md
	return nil
}

var _ engine.PatternStore = (*PatternStore)(nil)

// TransactionSource serves a fixed transaction slice, filtered per query.
type TransactionSource struct {
	mu  sync.RWMutex
	txs []engine.Transaction
}

// NewTransactionSource creates a source over the given transactions.
func NewTransactionSource(txs []engine.Transaction) *TransactionSource {
	return &TransactionSource{txs: txs}
}

// Add appends transactions to the source.
func (s *TransactionSource) Add(txs ...engine.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, txs...)
}

// Query implements engine.TransactionSource.
func (s *TransactionSource) Query(ctx context.Context, administration string, since time.Time, f engine.Filters) ([]engine.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []engine.Transaction
	for _, tx := range s.txs {
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

var _ engine.TransactionSource = (*TransactionSource)(nil)

// BankAccountLookup answers membership from a fixed account set.
type BankAccountLookup struct {
	accounts map[string]struct{}
}

// NewBankAccountLookup creates a lookup for the given bank account codes.
// The same codes apply to every administration.
func NewBankAccountLookup(accountCodes ...string) *BankAccountLookup {
	accounts := make(map[string]struct{}, len(accountCodes))
	for _, code := range accountCodes {
		accounts[code] = struct{}{}
	}
	return &BankAccountLookup{accounts: accounts}
}

// IsBankAccount implements engine.BankAccountLookup.
func (l *BankAccountLookup) IsBankAccount(ctx context.Context, administration, accountCode string) (bool, error) {
	_, ok := l.accounts[accountCode]
	return ok, nil
}

var _ engine.BankAccountLookup = (*BankAccountLookup)(nil)
