package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testBuilder(accounts map[string]bool) *PatternBuilder {
	return NewPatternBuilder(&mockLookup{Accounts: accounts}, NewVerbExtractor(nil))
}

func TestBuildRequiresExactlyOneBankSide(t *testing.T) {
	b := testBuilder(map[string]bool{"1300": true, "1310": true})

	txs := []Transaction{
		// neither side is a bank account
		{Description: "PICNIC ORDER", Debet: "4007", Credit: "1600", ReferenceNumber: "x", Date: mustDate("2025-01-10")},
		// both sides are bank accounts
		{Description: "PICNIC ORDER", Debet: "1300", Credit: "1310", ReferenceNumber: "x", Date: mustDate("2025-01-11")},
		// exactly one side qualifies
		{Description: "PICNIC ORDER", Debet: "4007", Credit: "1300", ReferenceNumber: "x", Date: mustDate("2025-01-12")},
	}

	patterns, stats, err := b.Build(context.Background(), "acme", txs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.SkippedNoBank != 2 {
		t.Errorf("SkippedNoBank = %d, want 2", stats.SkippedNoBank)
	}
	if len(patterns) != 1 {
		t.Fatalf("patterns = %d, want 1", len(patterns))
	}
	key := PatternKey{Administration: "acme", BankAccount: "1300", Verb: "PICNIC"}
	p, ok := patterns[key]
	if !ok {
		t.Fatalf("missing pattern for %s", key)
	}
	if p.DebetAccount != "4007" || p.CreditAccount != "1300" {
		t.Errorf("accounts = (%s, %s), want (4007, 1300)", p.DebetAccount, p.CreditAccount)
	}
}

func TestBuildSkipCounters(t *testing.T) {
	b := testBuilder(map[string]bool{"1300": true})

	txs := []Transaction{
		// no reference number
		{Description: "PICNIC", Debet: "4007", Credit: "1300", Date: mustDate("2025-01-10")},
		// no extractable verb
		{Description: "BV XYZ 12", Debet: "4007", Credit: "1300", ReferenceNumber: "x", Date: mustDate("2025-01-11")},
	}

	patterns, stats, err := b.Build(context.Background(), "acme", txs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.SkippedNoRef != 1 || stats.SkippedNoVerb != 1 {
		t.Errorf("skips = (ref %d, verb %d), want (1, 1)", stats.SkippedNoRef, stats.SkippedNoVerb)
	}
	if stats.Scanned != 2 {
		t.Errorf("Scanned = %d, want 2", stats.Scanned)
	}
	if len(patterns) != 0 {
		t.Errorf("patterns = %d, want 0", len(patterns))
	}
}

func TestBuildAggregatesCollisions(t *testing.T) {
	b := testBuilder(map[string]bool{"1300": true})

	txs := []Transaction{
		{Description: "PICNIC weekly", Debet: "4007", Credit: "1300", ReferenceNumber: "a", Amount: 40, Date: mustDate("2025-01-01")},
		{Description: "PICNIC monthly", Debet: "4008", Credit: "1300", ReferenceNumber: "b", Amount: 60, Date: mustDate("2025-03-01")},
		// older than the second one, must not win the descriptive fields
		{Description: "PICNIC early", Debet: "4009", Credit: "1300", ReferenceNumber: "c", Amount: 50, Date: mustDate("2025-02-01")},
	}

	patterns, _, err := b.Build(context.Background(), "acme", txs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	key := PatternKey{Administration: "acme", BankAccount: "1300", Verb: "PICNIC"}
	p := patterns[key]
	if p == nil {
		t.Fatal("pattern not built")
	}
	if p.Occurrences != 3 {
		t.Errorf("Occurrences = %d, want 3", p.Occurrences)
	}
	if p.AverageAmount != 50 {
		t.Errorf("AverageAmount = %v, want 50", p.AverageAmount)
	}
	if p.DebetAccount != "4008" || p.ReferenceNumber != "b" {
		t.Errorf("most recent fields = (%s, %s), want (4008, b)", p.DebetAccount, p.ReferenceNumber)
	}
	if !p.LastSeen.Equal(mustDate("2025-03-01")) {
		t.Errorf("LastSeen = %v, want 2025-03-01", p.LastSeen)
	}
	if p.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", p.Confidence)
	}
}

func TestBuildCompoundPattern(t *testing.T) {
	b := testBuilder(map[string]bool{"1300": true})

	txs := []Transaction{
		{Description: "JUMBO FACTUUR 123456", Debet: "4010", Credit: "1300", ReferenceNumber: "x", Date: mustDate("2025-01-10")},
	}
	patterns, stats, err := b.Build(context.Background(), "acme", txs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.CompoundPatterns != 1 {
		t.Errorf("CompoundPatterns = %d, want 1", stats.CompoundPatterns)
	}
	key := PatternKey{Administration: "acme", BankAccount: "1300", Verb: "JUMBO|123456"}
	p := patterns[key]
	if p == nil {
		t.Fatal("compound pattern not built")
	}
	if !p.IsCompound || p.VerbCompany != "JUMBO" || p.VerbReference != "123456" {
		t.Errorf("compound split = (%v, %s, %s)", p.IsCompound, p.VerbCompany, p.VerbReference)
	}
}

func TestBuildPropagatesLookupError(t *testing.T) {
	lookup := &mockLookup{
		IsBankAccountFunc: func(ctx context.Context, administration, accountCode string) (bool, error) {
			return false, errors.New("lookup down")
		},
	}
	b := NewPatternBuilder(lookup, NewVerbExtractor(nil))

	_, _, err := b.Build(context.Background(), "acme", []Transaction{
		{Description: "PICNIC", Debet: "4007", Credit: "1300", ReferenceNumber: "x", Date: time.Now()},
	})
	if err == nil {
		t.Fatal("expected error from failing lookup")
	}
}
