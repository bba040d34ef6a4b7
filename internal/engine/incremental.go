package engine

import (
	"context"
	"fmt"
)

// IncrementalAnalyze brings the pattern set up to date with transactions
// that arrived since the last analysis. An administration that was never
// analyzed gets a full pass. Any failure inside the incremental path is
// logged and answered with a full re-analysis instead of an error; the
// fallback is what keeps incremental mode safe to schedule blindly.
func (e *Engine) IncrementalAnalyze(ctx context.Context, administration string) (*AnalysisReport, error) {
	log := e.log.With().Str("administration", administration).Logger()

	md, err := e.store.GetMetadata(ctx, administration)
	if err != nil || md == nil {
		if err != nil {
			log.Warn().Err(err).Msg("Metadata read failed, running full analysis")
		} else {
			log.Info().Msg("No prior analysis, running full analysis")
		}
		return e.Analyze(ctx, administration, Filters{})
	}

	report, err := e.incrementalPass(ctx, administration, *md)
	if err != nil {
		log.Warn().Err(err).Msg("Incremental pass failed, falling back to full analysis")
		full, fullErr := e.Analyze(ctx, administration, Filters{})
		if fullErr != nil {
			return nil, fmt.Errorf("IncrementalAnalyze: fallback full analysis: %w", fullErr)
		}
		full.Incremental = &IncrementalStats{FellBackToFull: true}
		return full, nil
	}
	return report, nil
}

// incrementalPass diffs a fresh window rebuild against the stored pattern
// set and writes only the positive deltas. Zero new transactions is the
// cheap path: the metadata timestamp moves forward and nothing else is
// touched.
func (e *Engine) incrementalPass(ctx context.Context, administration string, md AnalysisMetadata) (*AnalysisReport, error) {
	log := e.log.With().Str("administration", administration).Logger()
	now := e.now()

	// Detection runs at the granularity of the backing source. A source
	// keyed on calendar dates cannot surface rows imported later on the
	// analysis day itself; those are picked up by the next rebuild below,
	// whose full-window diff writes their delta.
	newTxs, err := e.source.Query(ctx, administration, md.LastAnalysisDate, Filters{})
	if err != nil {
		return nil, fmt.Errorf("querying new transactions: %w", err)
	}

	if len(newTxs) == 0 {
		md.LastAnalysisDate = now
		if err := e.store.UpsertMetadata(ctx, md, MergeReplace); err != nil {
			return nil, fmt.Errorf("advancing metadata timestamp: %w", err)
		}
		log.Info().Msg("No new transactions, analysis timestamp advanced")
		return &AnalysisReport{
			Administration:     administration,
			PatternsDiscovered: md.PatternsDiscovered,
			AnalysisDate:       now,
			DateRange:          DateRange{Start: md.DateRangeStart, End: md.DateRangeEnd},
			Incremental:        &IncrementalStats{NoOp: true},
		}, nil
	}

	stored, err := e.store.ReadAllPatterns(ctx, administration)
	if err != nil {
		return nil, fmt.Errorf("reading stored patterns: %w", err)
	}
	storedByKey := make(map[PatternKey]VerbPattern, len(stored))
	for _, p := range stored {
		storedByKey[p.Key()] = p
	}

	// Rebuild over the whole window rather than just the new slice: a new
	// transaction can reinforce a pattern whose earlier occurrences are
	// only visible in the full window.
	since := now.AddDate(-e.cfg.WindowYears, 0, 0)
	windowTxs, err := e.source.Query(ctx, administration, since, Filters{})
	if err != nil {
		return nil, fmt.Errorf("querying window: %w", err)
	}
	built, stats, err := e.builder.Build(ctx, administration, windowTxs)
	if err != nil {
		return nil, fmt.Errorf("rebuilding window: %w", err)
	}
	fresh := sortedPatterns(built)

	inc := &IncrementalStats{NewTransactions: len(newTxs)}
	for _, p := range fresh {
		old, seen := storedByKey[p.Key()]
		switch {
		case !seen:
			if err := e.store.UpsertPattern(ctx, p, MergeAdditive); err != nil {
				return nil, fmt.Errorf("writing new pattern %s: %w", p.Key().String(), err)
			}
			inc.NewPatterns++
		case p.Occurrences > old.Occurrences:
			delta := p
			delta.Occurrences = p.Occurrences - old.Occurrences
			if err := e.store.UpsertPattern(ctx, delta, MergeAdditive); err != nil {
				return nil, fmt.Errorf("reinforcing pattern %s: %w", p.Key().String(), err)
			}
			inc.ReinforcedPatterns++
		}
		// unchanged patterns get no write
	}

	all, err := e.store.ReadAllPatterns(ctx, administration)
	if err != nil {
		return nil, fmt.Errorf("re-reading pattern total: %w", err)
	}

	start, end := transactionRange(windowTxs, since, now)
	mdUpdate := AnalysisMetadata{
		Administration:       administration,
		LastAnalysisDate:     now,
		TransactionsAnalyzed: len(newTxs),
		PatternsDiscovered:   len(all),
		DateRangeStart:       start,
		DateRangeEnd:         end,
	}
	if err := e.store.UpsertMetadata(ctx, mdUpdate, MergeAdditive); err != nil {
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	e.cache.Invalidate(ctx, administration)

	log.Info().
		Int("new_transactions", inc.NewTransactions).
		Int("new_patterns", inc.NewPatterns).
		Int("reinforced_patterns", inc.ReinforcedPatterns).
		Msg("Incremental analysis complete")

	return &AnalysisReport{
		Administration:     administration,
		TotalTransactions:  len(newTxs),
		PatternsDiscovered: len(all),
		ReferencePatterns:  countCompound(all),
		Statistics:         stats,
		AnalysisDate:       now,
		DateRange:          DateRange{Start: start, End: end},
		Incremental:        inc,
	}, nil
}
