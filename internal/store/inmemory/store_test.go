package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rhoekstra/pattern-engine/internal/engine"
)

func pattern(verb string, occurrences int) engine.VerbPattern {
	return engine.VerbPattern{
		Administration: "acme",
		BankAccount:    "1300",
		Verb:           verb,
		VerbCompany:    verb,
		DebetAccount:   "4007",
		CreditAccount:  "1300",
		Occurrences:    occurrences,
		Confidence:     1.0,
		LastSeen:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPatternStoreMergeModes(t *testing.T) {
	ctx := context.Background()
	s := NewPatternStore()

	if err := s.UpsertPattern(ctx, pattern("PICNIC", 3), engine.MergeReplace); err != nil {
		t.Fatalf("UpsertPattern: %v", err)
	}
	if err := s.UpsertPattern(ctx, pattern("PICNIC", 3), engine.MergeReplace); err != nil {
		t.Fatalf("UpsertPattern: %v", err)
	}

	got, err := s.ReadAllPatterns(ctx, "acme")
	if err != nil {
		t.Fatalf("ReadAllPatterns: %v", err)
	}
	if len(got) != 1 || got[0].Occurrences != 3 {
		t.Fatalf("replace mode: got %+v", got)
	}

	if err := s.UpsertPattern(ctx, pattern("PICNIC", 2), engine.MergeAdditive); err != nil {
		t.Fatalf("UpsertPattern: %v", err)
	}
	got, _ = s.ReadAllPatterns(ctx, "acme")
	if got[0].Occurrences != 5 {
		t.Errorf("additive mode: Occurrences = %d, want 5", got[0].Occurrences)
	}
}

func TestPatternStoreReplaceRewindsLastSeen(t *testing.T) {
	ctx := context.Background()
	s := NewPatternStore()

	first := pattern("PICNIC", 3)
	first.LastSeen = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpsertPattern(ctx, first, engine.MergeReplace); err != nil {
		t.Fatalf("UpsertPattern: %v", err)
	}

	// a corrective re-analysis may legitimately move last_seen backward
	corrected := pattern("PICNIC", 2)
	corrected.LastSeen = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpsertPattern(ctx, corrected, engine.MergeReplace); err != nil {
		t.Fatalf("UpsertPattern: %v", err)
	}

	got, err := s.ReadAllPatterns(ctx, "acme")
	if err != nil {
		t.Fatalf("ReadAllPatterns: %v", err)
	}
	if !got[0].LastSeen.Equal(corrected.LastSeen) {
		t.Errorf("LastSeen = %v, want rewound to %v", got[0].LastSeen, corrected.LastSeen)
	}
	if got[0].Occurrences != 2 {
		t.Errorf("Occurrences = %d, want 2", got[0].Occurrences)
	}

	// additive keeps the most recent sighting
	delta := pattern("PICNIC", 1)
	delta.LastSeen = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpsertPattern(ctx, delta, engine.MergeAdditive); err != nil {
		t.Fatalf("UpsertPattern: %v", err)
	}
	got, _ = s.ReadAllPatterns(ctx, "acme")
	if !got[0].LastSeen.Equal(corrected.LastSeen) {
		t.Errorf("additive LastSeen = %v, want the later %v kept", got[0].LastSeen, corrected.LastSeen)
	}
}

func TestPatternStoreReadIsOrderedAndScoped(t *testing.T) {
	ctx := context.Background()
	s := NewPatternStore()

	_ = s.UpsertPattern(ctx, pattern("ZIGGO", 1), engine.MergeReplace)
	_ = s.UpsertPattern(ctx, pattern("ALBERTHEIJN", 1), engine.MergeReplace)
	other := pattern("PICNIC", 1)
	other.Administration = "umbrella"
	_ = s.UpsertPattern(ctx, other, engine.MergeReplace)

	got, err := s.ReadAllPatterns(ctx, "acme")
	if err != nil {
		t.Fatalf("ReadAllPatterns: %v", err)
	}
	verbs := []string{got[0].Verb, got[1].Verb}
	if diff := cmp.Diff([]string{"ALBERTHEIJN", "ZIGGO"}, verbs); diff != "" {
		t.Errorf("pattern order mismatch (-want +got):\n%s", diff)
	}
	if len(got) != 2 {
		t.Errorf("administrations leaked into each other: %d patterns", len(got))
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewPatternStore()

	md, err := s.GetMetadata(ctx, "acme")
	if err != nil || md != nil {
		t.Fatalf("never-analyzed administration: (%v, %v), want (nil, nil)", md, err)
	}

	want := engine.AnalysisMetadata{
		Administration:       "acme",
		LastAnalysisDate:     time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		TransactionsAnalyzed: 10,
		PatternsDiscovered:   4,
	}
	if err := s.UpsertMetadata(ctx, want, engine.MergeReplace); err != nil {
		t.Fatalf("UpsertMetadata: %v", err)
	}

	md, err = s.GetMetadata(ctx, "acme")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if diff := cmp.Diff(want, *md); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	// additive accumulates the analyzed-transactions counter
	delta := want
	delta.TransactionsAnalyzed = 5
	if err := s.UpsertMetadata(ctx, delta, engine.MergeAdditive); err != nil {
		t.Fatalf("UpsertMetadata: %v", err)
	}
	md, _ = s.GetMetadata(ctx, "acme")
	if md.TransactionsAnalyzed != 15 {
		t.Errorf("TransactionsAnalyzed = %d, want 15", md.TransactionsAnalyzed)
	}
}

func TestTransactionSourceFilters(t *testing.T) {
	ctx := context.Background()
	source := NewTransactionSource([]engine.Transaction{
		{Administration: "acme", Description: "a", Debet: "4007", Credit: "1300", Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Administration: "acme", Description: "b", Debet: "4010", Credit: "1300", Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{Administration: "umbrella", Description: "c", Debet: "4007", Credit: "1300", Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
	})

	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	got, err := source.Query(ctx, "acme", since, engine.Filters{Debet: "4010"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].Description != "b" {
		t.Errorf("Query = %+v, want only b", got)
	}
}

func TestBankAccountLookup(t *testing.T) {
	lookup := NewBankAccountLookup("1300", "1310")

	isBank, err := lookup.IsBankAccount(context.Background(), "acme", "1300")
	if err != nil || !isBank {
		t.Errorf("IsBankAccount(1300) = (%v, %v), want (true, nil)", isBank, err)
	}
	isBank, _ = lookup.IsBankAccount(context.Background(), "acme", "4007")
	if isBank {
		t.Error("4007 must not be a bank account")
	}
}
