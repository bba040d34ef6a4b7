// Package engine implements the transaction pattern discovery and
// prediction engine: it mines bank-transaction history per administration
// to learn which accounting codes and invoice references belong to a
// merchant verb, then fills the same fields on new incomplete transactions.
package engine

import (
	"fmt"
	"strings"
	"time"
)

// Transaction is a single bank transaction as owned by the external ledger.
// The engine only reads it; Apply returns copies with predicted fields set.
type Transaction struct {
	Administration  string    `json:"administration"`
	Description     string    `json:"description"`
	Debet           string    `json:"debet"`
	Credit          string    `json:"credit"`
	ReferenceNumber string    `json:"reference_number"`
	Amount          float64   `json:"amount"`
	Date            time.Time `json:"date"`
}

// PatternKey identifies a VerbPattern: one merchant verb as seen through
// one bank account of one administration.
type PatternKey struct {
	Administration string `json:"administration"`
	BankAccount    string `json:"bank_account"`
	Verb           string `json:"verb"`
}

// String renders the key in its canonical pipe-joined form.
func (k PatternKey) String() string {
	return k.Administration + "|" + k.BankAccount + "|" + k.Verb
}

// VerbPattern is a learned association between a verb and the accounting
// codes and invoice reference historically used with it. Occurrences
// accumulate on merge; patterns are never deleted.
type VerbPattern struct {
	Administration    string    `json:"administration"`
	BankAccount       string    `json:"bank_account"`
	Verb              string    `json:"verb"`
	VerbCompany       string    `json:"verb_company"`
	VerbReference     string    `json:"verb_reference"`
	IsCompound        bool      `json:"is_compound"`
	ReferenceNumber   string    `json:"reference_number"`
	DebetAccount      string    `json:"debet_account"`
	CreditAccount     string    `json:"credit_account"`
	Occurrences       int       `json:"occurrences"`
	Confidence        float64   `json:"confidence"`
	AverageAmount     float64   `json:"average_amount"`
	LastSeen          time.Time `json:"last_seen"`
	SampleDescription string    `json:"sample_description"`
}

// Key returns the pattern's lookup key.
func (p VerbPattern) Key() PatternKey {
	return PatternKey{
		Administration: p.Administration,
		BankAccount:    p.BankAccount,
		Verb:           p.Verb,
	}
}

// SplitVerb decomposes a verb token into its company and reference parts.
// A plain verb has no reference part.
func SplitVerb(verb string) (company, reference string, compound bool) {
	if i := strings.IndexByte(verb, '|'); i >= 0 {
		return verb[:i], verb[i+1:], true
	}
	return verb, "", false
}

// AnalysisMetadata tracks one administration's analysis bookkeeping.
// Replaced on full analysis, incremented on incremental analysis.
type AnalysisMetadata struct {
	Administration       string    `json:"administration"`
	LastAnalysisDate     time.Time `json:"last_analysis_date"`
	TransactionsAnalyzed int       `json:"transactions_analyzed"`
	PatternsDiscovered   int       `json:"patterns_discovered"`
	DateRangeStart       time.Time `json:"date_range_start"`
	DateRangeEnd         time.Time `json:"date_range_end"`
}

// Filters narrows a discovery pass or a cache lookup.
type Filters struct {
	ReferenceNumber string `json:"reference_number,omitempty"`
	Debet           string `json:"debet,omitempty"`
	Credit          string `json:"credit,omitempty"`
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.ReferenceNumber == "" && f.Debet == "" && f.Credit == ""
}

// Fingerprint renders the filters as a stable cache-key component.
func (f Filters) Fingerprint() string {
	if f.IsZero() {
		return "all"
	}
	return fmt.Sprintf("r=%s;d=%s;c=%s", f.ReferenceNumber, f.Debet, f.Credit)
}

// Match reports whether a transaction passes the filters.
func (f Filters) Match(tx Transaction) bool {
	if f.ReferenceNumber != "" && !strings.Contains(tx.ReferenceNumber, f.ReferenceNumber) {
		return false
	}
	if f.Debet != "" && tx.Debet != f.Debet {
		return false
	}
	if f.Credit != "" && tx.Credit != f.Credit {
		return false
	}
	return true
}

// DateRange is the transaction window covered by an analysis.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BuildStats counts what a discovery pass saw and skipped.
type BuildStats struct {
	Scanned          int `json:"scanned"`
	SkippedNoBank    int `json:"skipped_no_bank_side"`
	SkippedNoRef     int `json:"skipped_no_reference"`
	SkippedNoVerb    int `json:"skipped_no_verb"`
	CompoundPatterns int `json:"compound_patterns"`
}

// IncrementalStats describes what an incremental pass changed.
type IncrementalStats struct {
	NewTransactions    int  `json:"new_transactions"`
	NewPatterns        int  `json:"new_patterns"`
	ReinforcedPatterns int  `json:"reinforced_patterns"`
	NoOp               bool `json:"no_op"`
	FellBackToFull     bool `json:"fell_back_to_full"`
}

// AnalysisReport is the result of a full or incremental discovery pass.
type AnalysisReport struct {
	Administration     string            `json:"administration"`
	TotalTransactions  int               `json:"total_transactions"`
	PatternsDiscovered int               `json:"patterns_discovered"`
	ReferencePatterns  int               `json:"reference_patterns"`
	Statistics         BuildStats        `json:"statistics"`
	AnalysisDate       time.Time         `json:"analysis_date"`
	DateRange          DateRange         `json:"date_range"`
	FailedWrites       int               `json:"failed_writes,omitempty"`
	Incremental        *IncrementalStats `json:"incremental_update,omitempty"`
}

// Field names a predictable transaction field.
type Field string

const (
	FieldDebet     Field = "debet"
	FieldCredit    Field = "credit"
	FieldReference Field = "reference"
)

// Prediction is a single predicted value with its confidence.
type Prediction struct {
	Field      Field   `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// PredictionCounts breaks successful predictions down per field.
type PredictionCounts struct {
	Debet     int `json:"debet"`
	Credit    int `json:"credit"`
	Reference int `json:"reference"`
}

// ApplyStats summarises an Apply run over a batch of transactions.
type ApplyStats struct {
	PredictionsMade   PredictionCounts `json:"predictions_made"`
	ConfidenceScores  []float64        `json:"confidence_scores"`
	AverageConfidence float64          `json:"average_confidence"`
	FailedPredictions int              `json:"failed_predictions"`
}
