package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rhoekstra/pattern-engine/internal/rules"
)

const defaultWindowYears = 2

// Config holds the engine's tunables.
type Config struct {
	// AcceptThreshold is the minimum normalized-score-times-confidence
	// for resolver-mediated predictions.
	AcceptThreshold float64
	// WindowYears is the size of the active transaction window.
	WindowYears int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AcceptThreshold: AcceptThreshold,
		WindowYears:     defaultWindowYears,
	}
}

// Engine is the pattern discovery and prediction engine for one set of
// collaborators. All state lives in the collaborators passed in here;
// the engine itself holds no hidden mutable state and is safe to share.
//
// The engine provides no cross-process mutual exclusion: two concurrent
// full analyses for the same administration can race on occurrence
// counts. Callers own that locking (e.g. a per-administration lease).
type Engine struct {
	source    TransactionSource
	lookup    BankAccountLookup
	store     PatternStore
	cache     PatternCache
	extractor *VerbExtractor
	builder   *PatternBuilder
	resolver  *ConflictResolver
	predictor *Predictor
	cfg       Config
	now       func() time.Time
	log       zerolog.Logger
}

// New creates an engine with the default configuration.
func New(source TransactionSource, lookup BankAccountLookup, store PatternStore, cache PatternCache, table *rules.Table, log zerolog.Logger) *Engine {
	return NewWithConfig(source, lookup, store, cache, table, log, DefaultConfig())
}

// NewWithConfig creates an engine with a custom configuration.
func NewWithConfig(source TransactionSource, lookup BankAccountLookup, store PatternStore, cache PatternCache, table *rules.Table, log zerolog.Logger, cfg Config) *Engine {
	if cfg.AcceptThreshold <= 0 {
		cfg.AcceptThreshold = AcceptThreshold
	}
	if cfg.WindowYears <= 0 {
		cfg.WindowYears = defaultWindowYears
	}

	extractor := NewVerbExtractor(table)
	builder := NewPatternBuilder(lookup, extractor)
	resolver := NewConflictResolver()

	predictor := NewPredictor(source, lookup, cache, builder, extractor, resolver, log)
	predictor.threshold = cfg.AcceptThreshold
	predictor.windowYears = cfg.WindowYears

	return &Engine{
		source:    source,
		lookup:    lookup,
		store:     store,
		cache:     cache,
		extractor: extractor,
		builder:   builder,
		resolver:  resolver,
		predictor: predictor,
		cfg:       cfg,
		now:       time.Now,
		log:       log,
	}
}

// Analyze runs a full discovery pass over the active window. An
// unfiltered pass persists the result with replace semantics, so
// rescanning an unchanged window is idempotent on occurrence counts. A
// filtered pass sees only a slice of the window and is report-only:
// replace writes from a partial window would clobber occurrence counts
// learned from the full one, so nothing is persisted and the cache is
// left alone. Source and store connectivity failures propagate to the
// caller; individual pattern writes are independent and a failed key
// never rolls back previously written ones.
func (e *Engine) Analyze(ctx context.Context, administration string, f Filters) (*AnalysisReport, error) {
	log := e.log.With().Str("administration", administration).Logger()
	now := e.now()
	since := now.AddDate(-e.cfg.WindowYears, 0, 0)

	log.Info().Time("since", since).Msg("Starting full pattern analysis")

	txs, err := e.source.Query(ctx, administration, since, f)
	if err != nil {
		return nil, fmt.Errorf("Analyze: querying transactions: %w", err)
	}

	built, stats, err := e.builder.Build(ctx, administration, txs)
	if err != nil {
		return nil, fmt.Errorf("Analyze: building patterns: %w", err)
	}
	patterns := sortedPatterns(built)
	start, end := transactionRange(txs, since, now)

	if !f.IsZero() {
		log.Info().
			Int("transactions", len(txs)).
			Int("patterns", len(patterns)).
			Msg("Filtered analysis complete, result not persisted")
		return &AnalysisReport{
			Administration:     administration,
			TotalTransactions:  len(txs),
			PatternsDiscovered: len(patterns),
			ReferencePatterns:  countCompound(patterns),
			Statistics:         stats,
			AnalysisDate:       now,
			DateRange:          DateRange{Start: start, End: end},
		}, nil
	}

	failed := 0
	for _, p := range patterns {
		if err := e.store.UpsertPattern(ctx, p, MergeReplace); err != nil {
			failed++
			log.Warn().Err(err).Str("key", p.Key().String()).Msg("Pattern upsert failed")
		}
	}

	md := AnalysisMetadata{
		Administration:       administration,
		LastAnalysisDate:     now,
		TransactionsAnalyzed: len(txs),
		PatternsDiscovered:   len(patterns),
		DateRangeStart:       start,
		DateRangeEnd:         end,
	}
	if err := e.store.UpsertMetadata(ctx, md, MergeReplace); err != nil {
		return nil, fmt.Errorf("Analyze: writing metadata: %w", err)
	}

	e.cache.Invalidate(ctx, administration)
	e.cache.StorePatterns(ctx, administration, f, patterns)

	log.Info().
		Int("transactions", len(txs)).
		Int("patterns", len(patterns)).
		Int("failed_writes", failed).
		Msg("Full pattern analysis complete")

	return &AnalysisReport{
		Administration:     administration,
		TotalTransactions:  len(txs),
		PatternsDiscovered: len(patterns),
		ReferencePatterns:  countCompound(patterns),
		Statistics:         stats,
		AnalysisDate:       now,
		DateRange:          DateRange{Start: md.DateRangeStart, End: md.DateRangeEnd},
		FailedWrites:       failed,
	}, nil
}

// Apply fills missing Debet, Credit and ReferenceNumber fields on the
// given transactions from the learned pattern set. Transactions are
// returned as copies; fields with no historical precedent stay empty.
func (e *Engine) Apply(ctx context.Context, txs []Transaction, administration string) ([]Transaction, *ApplyStats, error) {
	stats := &ApplyStats{}
	updated := make([]Transaction, len(txs))

	for i, tx := range txs {
		if tx.Administration == "" {
			tx.Administration = administration
		}

		if tx.Debet == "" {
			if pred, ok := e.predictor.Predict(ctx, tx, FieldDebet); ok {
				tx.Debet = pred.Value
				stats.PredictionsMade.Debet++
				stats.ConfidenceScores = append(stats.ConfidenceScores, pred.Confidence)
			} else {
				stats.FailedPredictions++
			}
		}
		if tx.Credit == "" {
			if pred, ok := e.predictor.Predict(ctx, tx, FieldCredit); ok {
				tx.Credit = pred.Value
				stats.PredictionsMade.Credit++
				stats.ConfidenceScores = append(stats.ConfidenceScores, pred.Confidence)
			} else {
				stats.FailedPredictions++
			}
		}
		if tx.ReferenceNumber == "" {
			if pred, ok := e.predictor.Predict(ctx, tx, FieldReference); ok {
				tx.ReferenceNumber = pred.Value
				stats.PredictionsMade.Reference++
				stats.ConfidenceScores = append(stats.ConfidenceScores, pred.Confidence)
			} else {
				stats.FailedPredictions++
			}
		}

		updated[i] = tx
	}

	if n := len(stats.ConfidenceScores); n > 0 {
		var sum float64
		for _, c := range stats.ConfidenceScores {
			sum += c
		}
		stats.AverageConfidence = sum / float64(n)
	}

	return updated, stats, nil
}

// Predict exposes single-field prediction for callers that do not want
// the whole Apply batch shape.
func (e *Engine) Predict(ctx context.Context, tx Transaction, field Field) (Prediction, bool) {
	return e.predictor.Predict(ctx, tx, field)
}

// ReadPatterns returns the administration's persisted pattern set.
func (e *Engine) ReadPatterns(ctx context.Context, administration string) ([]VerbPattern, error) {
	return e.store.ReadAllPatterns(ctx, administration)
}

// countCompound counts patterns carrying an invoice-reference part.
func countCompound(patterns []VerbPattern) int {
	n := 0
	for _, p := range patterns {
		if p.IsCompound {
			n++
		}
	}
	return n
}

// transactionRange returns the min and max transaction dates, falling
// back to the window bounds for an empty slice.
func transactionRange(txs []Transaction, since, now time.Time) (time.Time, time.Time) {
	if len(txs) == 0 {
		return since, now
	}
	start, end := txs[0].Date, txs[0].Date
	for _, tx := range txs[1:] {
		if tx.Date.Before(start) {
			start = tx.Date
		}
		if tx.Date.After(end) {
			end = tx.Date
		}
	}
	return start, end
}
