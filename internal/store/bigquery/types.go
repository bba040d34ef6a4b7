// Package bigquery persists verb patterns, analysis metadata and the
// transaction history in BigQuery. Every operation comes in a
// package-level form that opens its own client and a WithClient form for
// callers holding a shared one.
package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/rhoekstra/pattern-engine/internal/engine"
)

type VerbPatternRow struct {
	Administration string `bigquery:"administration"` // REQUIRED
	BankAccount    string `bigquery:"bank_account"`   // REQUIRED
	Verb           string `bigquery:"verb"`           // REQUIRED

	VerbCompany   string              `bigquery:"verb_company"`   // REQUIRED
	VerbReference bigquery.NullString `bigquery:"verb_reference"` // NULLABLE
	IsCompound    bool                `bigquery:"is_compound"`

	ReferenceNumber   bigquery.NullString `bigquery:"reference_number"`   // NULLABLE
	DebetAccount      bigquery.NullString `bigquery:"debet_account"`      // NULLABLE
	CreditAccount     bigquery.NullString `bigquery:"credit_account"`     // NULLABLE
	SampleDescription bigquery.NullString `bigquery:"sample_description"` // NULLABLE

	Occurrences   int64      `bigquery:"occurrences"`
	Confidence    float64    `bigquery:"confidence"`
	AverageAmount float64    `bigquery:"average_amount"`
	LastSeen      civil.Date `bigquery:"last_seen"`

	UpdatedTS time.Time `bigquery:"updated_ts"`
}

type AnalysisMetadataRow struct {
	Administration       string     `bigquery:"administration"` // REQUIRED
	LastAnalysisDate     time.Time  `bigquery:"last_analysis_date"`
	TransactionsAnalyzed int64      `bigquery:"transactions_analyzed"`
	PatternsDiscovered   int64      `bigquery:"patterns_discovered"`
	DateRangeStart       civil.Date `bigquery:"date_range_start"`
	DateRangeEnd         civil.Date `bigquery:"date_range_end"`
	UpdatedTS            time.Time  `bigquery:"updated_ts"`
}

type TransactionRow struct {
	Administration  string              `bigquery:"administration"` // REQUIRED
	Description     bigquery.NullString `bigquery:"description"`    // NULLABLE
	Debet           bigquery.NullString `bigquery:"debet"`          // NULLABLE
	Credit          bigquery.NullString `bigquery:"credit"`         // NULLABLE
	ReferenceNumber bigquery.NullString `bigquery:"reference_number"`
	Amount          float64             `bigquery:"amount"`
	TransactionDate civil.Date          `bigquery:"transaction_date"` // REQUIRED
}

type BankAccountRow struct {
	Administration string `bigquery:"administration"` // REQUIRED
	AccountCode    string `bigquery:"account_code"`   // REQUIRED
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func rowFromPattern(p engine.VerbPattern, now time.Time) *VerbPatternRow {
	return &VerbPatternRow{
		Administration:    p.Administration,
		BankAccount:       p.BankAccount,
		Verb:              p.Verb,
		VerbCompany:       p.VerbCompany,
		VerbReference:     nullString(p.VerbReference),
		IsCompound:        p.IsCompound,
		ReferenceNumber:   nullString(p.ReferenceNumber),
		DebetAccount:      nullString(p.DebetAccount),
		CreditAccount:     nullString(p.CreditAccount),
		SampleDescription: nullString(p.SampleDescription),
		Occurrences:       int64(p.Occurrences),
		Confidence:        p.Confidence,
		AverageAmount:     p.AverageAmount,
		LastSeen:          civil.DateOf(p.LastSeen),
		UpdatedTS:         now,
	}
}

func (r *VerbPatternRow) toPattern() engine.VerbPattern {
	return engine.VerbPattern{
		Administration:    r.Administration,
		BankAccount:       r.BankAccount,
		Verb:              r.Verb,
		VerbCompany:       r.VerbCompany,
		VerbReference:     r.VerbReference.StringVal,
		IsCompound:        r.IsCompound,
		ReferenceNumber:   r.ReferenceNumber.StringVal,
		DebetAccount:      r.DebetAccount.StringVal,
		CreditAccount:     r.CreditAccount.StringVal,
		SampleDescription: r.SampleDescription.StringVal,
		Occurrences:       int(r.Occurrences),
		Confidence:        r.Confidence,
		AverageAmount:     r.AverageAmount,
		LastSeen:          r.LastSeen.In(time.UTC),
	}
}

func (r *TransactionRow) toTransaction() engine.Transaction {
	return engine.Transaction{
		Administration:  r.Administration,
		Description:     r.Description.StringVal,
		Debet:           r.Debet.StringVal,
		Credit:          r.Credit.StringVal,
		ReferenceNumber: r.ReferenceNumber.StringVal,
		Amount:          r.Amount,
		Date:            r.TransactionDate.In(time.UTC),
	}
}

func (r *AnalysisMetadataRow) toMetadata() engine.AnalysisMetadata {
	return engine.AnalysisMetadata{
		Administration:       r.Administration,
		LastAnalysisDate:     r.LastAnalysisDate,
		TransactionsAnalyzed: int(r.TransactionsAnalyzed),
		PatternsDiscovered:   int(r.PatternsDiscovered),
		DateRangeStart:       r.DateRangeStart.In(time.UTC),
		DateRangeEnd:         r.DateRangeEnd.In(time.UTC),
	}
}
