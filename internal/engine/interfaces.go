package engine

import (
	"context"
	"time"
)

// MergeMode selects the occurrence-merge semantics of a pattern upsert.
type MergeMode int

const (
	// MergeReplace overwrites the stored occurrence count with the
	// computed one. Full analysis uses this so that rescanning an
	// unchanged window stays idempotent on counts.
	MergeReplace MergeMode = iota
	// MergeAdditive adds the written occurrence count to the stored one.
	// Incremental analysis uses this with positive deltas only.
	MergeAdditive
)

// TransactionSource provides transaction history for one administration.
// Implementations must return transactions in a stable order.
type TransactionSource interface {
	Query(ctx context.Context, administration string, since time.Time, f Filters) ([]Transaction, error)
}

// BankAccountLookup answers whether an account code is a known bank
// account for an administration. The lookup table is external reference
// data and immutable from the engine's perspective.
type BankAccountLookup interface {
	IsBankAccount(ctx context.Context, administration, accountCode string) (bool, error)
}

// PatternStore persists verb patterns and per-administration analysis
// metadata. Each UpsertPattern call is an independent write: a failure on
// one key must not corrupt or roll back previously written keys.
type PatternStore interface {
	UpsertPattern(ctx context.Context, p VerbPattern, mode MergeMode) error
	ReadAllPatterns(ctx context.Context, administration string) ([]VerbPattern, error)

	// GetMetadata returns (nil, nil) when the administration has never
	// been analyzed.
	GetMetadata(ctx context.Context, administration string) (*AnalysisMetadata, error)
	UpsertMetadata(ctx context.Context, md AnalysisMetadata, mode MergeMode) error
}

// PatternCache is the multi-level cache in front of the pattern store.
// A miss returns ok=false; implementations log and swallow their own I/O
// failures, degrading to a miss rather than surfacing an error, because
// the engine always has the store as the source of truth behind it.
type PatternCache interface {
	GetPatterns(ctx context.Context, administration string, f Filters) ([]VerbPattern, bool)
	StorePatterns(ctx context.Context, administration string, f Filters, patterns []VerbPattern)
	Invalidate(ctx context.Context, administration string)
}
