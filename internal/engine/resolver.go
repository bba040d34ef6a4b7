package engine

import (
	"math"
	"time"
)

// Scoring weights. Recency decays linearly from its maximum over a
// 30-day horizon (about 1.33 points per day) and floors at zero.
const (
	maxRecencyScore    = 40.0
	recencyDecayPerDay = maxRecencyScore / 30.0
	maxFrequencyScore  = 30.0
	amountCloseScore   = 20.0
	amountNearScore    = 10.0
	bankMatchBonus     = 10.0
)

// Candidate pairs a pattern with its key for conflict resolution.
type Candidate struct {
	Key     PatternKey
	Pattern VerbPattern
}

// ConflictResolver scores and ranks candidate patterns sharing a verb.
// It operates purely on in-memory data; no I/O happens here.
type ConflictResolver struct {
	now func() time.Time
}

// NewConflictResolver creates a resolver using the wall clock.
func NewConflictResolver() *ConflictResolver {
	return &ConflictResolver{now: time.Now}
}

// Resolve returns the highest-scoring candidate. Ties are deterministic:
// the comparison is strict, so the first-seen candidate in input order
// keeps the win.
func (r *ConflictResolver) Resolve(candidates []Candidate, tx Transaction, bankAccount string) (Candidate, float64, bool) {
	if len(candidates) == 0 {
		return Candidate{}, 0, false
	}

	best := candidates[0]
	bestScore := r.Score(best.Pattern, tx, bankAccount)
	for _, c := range candidates[1:] {
		if score := r.Score(c.Pattern, tx, bankAccount); score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best, bestScore, true
}

// Score rates a candidate pattern from 0 to 100: recency (max 40) +
// frequency (max 30) + amount similarity to the candidate's historical
// average (max 20) + a 10-point bonus when the candidate's bank account
// equals the transaction's own resolved bank-account side.
func (r *ConflictResolver) Score(p VerbPattern, tx Transaction, bankAccount string) float64 {
	var score float64

	days := r.now().Sub(p.LastSeen).Hours() / 24
	if days < 0 {
		days = 0
	}
	if recency := maxRecencyScore - days*recencyDecayPerDay; recency > 0 {
		score += recency
	}

	score += math.Min(maxFrequencyScore, float64(p.Occurrences)*2)

	score += amountSimilarity(tx.Amount, p.AverageAmount)

	if bankAccount != "" && p.BankAccount == bankAccount {
		score += bankMatchBonus
	}
	return score
}

// amountSimilarity compares the transaction amount to the candidate's
// historical average: 20 within 10%, 10 within 50%, 0 otherwise.
func amountSimilarity(amount, average float64) float64 {
	if amount == 0 || average == 0 {
		return 0
	}
	deviation := math.Abs(math.Abs(amount)-math.Abs(average)) / math.Abs(average)
	switch {
	case deviation <= 0.10:
		return amountCloseScore
	case deviation <= 0.50:
		return amountNearScore
	default:
		return 0
	}
}
