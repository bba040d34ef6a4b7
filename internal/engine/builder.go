package engine

import (
	"context"
	"fmt"
)

// PatternBuilder scans a transaction window for one administration and
// aggregates it into keyed VerbPattern records. A pattern is only created
// when exactly one side of the transaction resolves to a known bank
// account; the other side is captured for prediction.
type PatternBuilder struct {
	lookup    BankAccountLookup
	extractor *VerbExtractor
}

// NewPatternBuilder creates a builder over the given lookup and extractor.
func NewPatternBuilder(lookup BankAccountLookup, extractor *VerbExtractor) *PatternBuilder {
	return &PatternBuilder{
		lookup:    lookup,
		extractor: extractor,
	}
}

// Build aggregates the transactions into a pattern map. Transactions with
// no bank-account side, no reference number or no extractable verb are
// skipped (counted in the stats, never an error). On a key collision
// within the pass the descriptive fields follow the most recent
// transaction while occurrences keep accumulating.
func (b *PatternBuilder) Build(ctx context.Context, administration string, txs []Transaction) (map[PatternKey]*VerbPattern, BuildStats, error) {
	patterns := make(map[PatternKey]*VerbPattern)
	var stats BuildStats

	for _, tx := range txs {
		stats.Scanned++

		bankAccount, ok, err := b.bankSide(ctx, administration, tx)
		if err != nil {
			return nil, stats, fmt.Errorf("Build: resolving bank side: %w", err)
		}
		if !ok {
			stats.SkippedNoBank++
			continue
		}
		if tx.ReferenceNumber == "" {
			stats.SkippedNoRef++
			continue
		}

		verb, ok := b.extractor.Extract(tx.Description, tx.ReferenceNumber)
		if !ok {
			stats.SkippedNoVerb++
			continue
		}

		key := PatternKey{
			Administration: administration,
			BankAccount:    bankAccount,
			Verb:           verb,
		}

		if existing, seen := patterns[key]; seen {
			existing.Occurrences++
			existing.AverageAmount += (tx.Amount - existing.AverageAmount) / float64(existing.Occurrences)
			if !tx.Date.Before(existing.LastSeen) {
				// most recent transaction wins the descriptive fields
				existing.ReferenceNumber = tx.ReferenceNumber
				existing.DebetAccount = tx.Debet
				existing.CreditAccount = tx.Credit
				existing.LastSeen = tx.Date
				existing.SampleDescription = tx.Description
			}
			continue
		}

		company, reference, compound := SplitVerb(verb)
		patterns[key] = &VerbPattern{
			Administration:    administration,
			BankAccount:       bankAccount,
			Verb:              verb,
			VerbCompany:       company,
			VerbReference:     reference,
			IsCompound:        compound,
			ReferenceNumber:   tx.ReferenceNumber,
			DebetAccount:      tx.Debet,
			CreditAccount:     tx.Credit,
			Occurrences:       1,
			Confidence:        1.0, // exact historical match
			AverageAmount:     tx.Amount,
			LastSeen:          tx.Date,
			SampleDescription: tx.Description,
		}
		if compound {
			stats.CompoundPatterns++
		}
	}

	return patterns, stats, nil
}

// bankSide returns the account code of the transaction side that is a
// known bank account. ok is false when neither or both sides resolve:
// the pattern invariant requires exactly one.
func (b *PatternBuilder) bankSide(ctx context.Context, administration string, tx Transaction) (string, bool, error) {
	var debetIsBank, creditIsBank bool
	var err error

	if tx.Debet != "" {
		debetIsBank, err = b.lookup.IsBankAccount(ctx, administration, tx.Debet)
		if err != nil {
			return "", false, err
		}
	}
	if tx.Credit != "" {
		creditIsBank, err = b.lookup.IsBankAccount(ctx, administration, tx.Credit)
		if err != nil {
			return "", false, err
		}
	}

	switch {
	case debetIsBank && !creditIsBank:
		return tx.Debet, true, nil
	case creditIsBank && !debetIsBank:
		return tx.Credit, true, nil
	default:
		return "", false, nil
	}
}
