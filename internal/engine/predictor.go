package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// AcceptThreshold is the minimum normalized-score-times-confidence a
// resolver winner needs before its value is accepted as a prediction.
const AcceptThreshold = 0.8

// Predictor fills a missing Debet, Credit or ReferenceNumber on a
// transaction from the learned pattern set. It never guesses without at
// least one matching historical precedent.
//
// Patterns are read through the cache; a miss falls back to a fresh
// discovery pass over the active window, which is the expensive path
// (a single prediction can fan out into a full-table analysis).
type Predictor struct {
	source      TransactionSource
	lookup      BankAccountLookup
	cache       PatternCache
	builder     *PatternBuilder
	extractor   *VerbExtractor
	resolver    *ConflictResolver
	threshold   float64
	windowYears int
	now         func() time.Time
	log         zerolog.Logger
}

// NewPredictor wires a predictor from its collaborators.
func NewPredictor(source TransactionSource, lookup BankAccountLookup, cache PatternCache, builder *PatternBuilder, extractor *VerbExtractor, resolver *ConflictResolver, log zerolog.Logger) *Predictor {
	return &Predictor{
		source:      source,
		lookup:      lookup,
		cache:       cache,
		builder:     builder,
		extractor:   extractor,
		resolver:    resolver,
		threshold:   AcceptThreshold,
		windowYears: defaultWindowYears,
		now:         time.Now,
		log:         log,
	}
}

// Predict returns a value for the missing field, or ok=false when there
// is no historical precedent strong enough. "No prediction" is never an
// error; the field stays open for manual entry.
func (p *Predictor) Predict(ctx context.Context, tx Transaction, field Field) (Prediction, bool) {
	bankAccount, ok := p.resolvedBankSide(ctx, tx)
	if !ok {
		return Prediction{}, false
	}

	verb, ok := p.extractor.Extract(tx.Description, tx.ReferenceNumber)
	if !ok {
		return Prediction{}, false
	}

	patterns, err := p.loadPatterns(ctx, tx.Administration)
	if err != nil {
		p.log.Warn().
			Err(err).
			Str("administration", tx.Administration).
			Msg("Pattern load failed, no prediction")
		return Prediction{}, false
	}

	// exact key hit wins at its stored confidence
	exactKey := PatternKey{Administration: tx.Administration, BankAccount: bankAccount, Verb: verb}
	for _, pat := range patterns {
		if pat.Key() == exactKey {
			if value := valueForField(pat, field); value != "" && value != bankAccount {
				return Prediction{Field: field, Value: value, Confidence: pat.Confidence}, true
			}
			break
		}
	}

	pool := p.candidatePool(patterns, verb, bankAccount, field)
	winner, score, found := p.resolver.Resolve(pool, tx, bankAccount)
	if !found {
		return Prediction{}, false
	}

	confidence := (score / 100) * winner.Pattern.Confidence
	if confidence < p.threshold {
		return Prediction{}, false
	}
	value := valueForField(winner.Pattern, field)
	if value == "" || value == bankAccount {
		return Prediction{}, false
	}
	return Prediction{Field: field, Value: value, Confidence: confidence}, true
}

// candidatePool collects patterns that share the verb under a different
// bank account. For reference prediction it additionally admits patterns
// with the same company but a differing reference part, provided they
// carry at least 3 occurrences.
func (p *Predictor) candidatePool(patterns []VerbPattern, verb, bankAccount string, field Field) []Candidate {
	company, _, _ := SplitVerb(verb)

	var pool []Candidate
	for _, pat := range patterns {
		switch {
		case pat.Verb == verb && pat.BankAccount != bankAccount:
			pool = append(pool, Candidate{Key: pat.Key(), Pattern: pat})
		case field == FieldReference &&
			pat.VerbCompany == company &&
			pat.Verb != verb &&
			pat.Occurrences >= 3:
			pool = append(pool, Candidate{Key: pat.Key(), Pattern: pat})
		}
	}
	return pool
}

// loadPatterns reads the administration's pattern set through the cache,
// rebuilding from the transaction source on a miss and writing the fresh
// set back.
func (p *Predictor) loadPatterns(ctx context.Context, administration string) ([]VerbPattern, error) {
	if patterns, ok := p.cache.GetPatterns(ctx, administration, Filters{}); ok {
		return patterns, nil
	}

	since := p.now().AddDate(-p.windowYears, 0, 0)
	txs, err := p.source.Query(ctx, administration, since, Filters{})
	if err != nil {
		return nil, err
	}
	built, _, err := p.builder.Build(ctx, administration, txs)
	if err != nil {
		return nil, err
	}

	patterns := sortedPatterns(built)
	p.cache.StorePatterns(ctx, administration, Filters{}, patterns)
	return patterns, nil
}

// resolvedBankSide returns whichever present side of the transaction is a
// known bank account. Lookup failures and the nothing-resolves case both
// end in "no prediction".
func (p *Predictor) resolvedBankSide(ctx context.Context, tx Transaction) (string, bool) {
	if tx.Debet != "" {
		isBank, err := p.lookup.IsBankAccount(ctx, tx.Administration, tx.Debet)
		if err != nil {
			p.log.Warn().Err(err).Msg("Bank account lookup failed")
			return "", false
		}
		if isBank {
			return tx.Debet, true
		}
	}
	if tx.Credit != "" {
		isBank, err := p.lookup.IsBankAccount(ctx, tx.Administration, tx.Credit)
		if err != nil {
			p.log.Warn().Err(err).Msg("Bank account lookup failed")
			return "", false
		}
		if isBank {
			return tx.Credit, true
		}
	}
	return "", false
}

func valueForField(p VerbPattern, field Field) string {
	switch field {
	case FieldDebet:
		return p.DebetAccount
	case FieldCredit:
		return p.CreditAccount
	case FieldReference:
		return p.ReferenceNumber
	default:
		return ""
	}
}
