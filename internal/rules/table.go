// Package rules holds the extraction heuristics as data: vendor aliases,
// noise words, legal-entity suffixes and transaction-id shapes. The tables
// are loadable from JSON (local file or GCS object) so the business
// knowledge they encode can evolve without a redeploy.
package rules

import (
	"strings"
)

// Alias maps a substring of a transaction description to a canonical
// merchant verb. Order in the table is priority order: the first alias
// whose Match occurs in the description wins.
type Alias struct {
	// Match is the substring to look for (compared uppercase).
	Match string `json:"match"`
	// Canonical is the verb emitted when Match is found.
	Canonical string `json:"canonical"`
}

// Table is the full rule set consumed by the verb extractor.
type Table struct {
	// Aliases is the priority-ordered vendor alias list.
	Aliases []Alias `json:"aliases"`

	// NoiseWords are tokens that can never be a merchant verb
	// (bank plumbing vocabulary, prepositions, generic payment words).
	NoiseWords []string `json:"noise_words"`

	// LegalSuffixes are legal-entity markers stripped from descriptions
	// before candidate selection (BV, NV, LTD, ...).
	LegalSuffixes []string `json:"legal_suffixes"`

	// TokenPrefixes mark tokens that are transaction-id plumbing in their
	// entirety; any token starting with one of these is dropped.
	TokenPrefixes []string `json:"token_prefixes"`

	// NumericIDPrefixes are leading digit sequences identifying numeric
	// transaction ids, which must never be mistaken for references.
	NumericIDPrefixes []string `json:"numeric_id_prefixes"`

	noiseSet  map[string]struct{}
	suffixSet map[string]struct{}
}

// compile builds the lookup sets and uppercases every entry. Called by
// Default and the loaders; a Table built by hand must call it too.
func (t *Table) compile() {
	for i, a := range t.Aliases {
		t.Aliases[i].Match = strings.ToUpper(strings.TrimSpace(a.Match))
		t.Aliases[i].Canonical = strings.ToUpper(strings.TrimSpace(a.Canonical))
	}

	t.noiseSet = make(map[string]struct{}, len(t.NoiseWords))
	for _, w := range t.NoiseWords {
		t.noiseSet[strings.ToUpper(strings.TrimSpace(w))] = struct{}{}
	}

	t.suffixSet = make(map[string]struct{}, len(t.LegalSuffixes))
	for _, s := range t.LegalSuffixes {
		t.suffixSet[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}

	for i, p := range t.TokenPrefixes {
		t.TokenPrefixes[i] = strings.ToUpper(strings.TrimSpace(p))
	}
}

// MatchAlias returns the canonical verb for the first alias whose Match
// substring occurs in the (already uppercased) description.
func (t *Table) MatchAlias(description string) (string, bool) {
	for _, a := range t.Aliases {
		if a.Match != "" && strings.Contains(description, a.Match) {
			return a.Canonical, true
		}
	}
	return "", false
}

// IsNoiseWord reports whether the token is banking noise vocabulary.
func (t *Table) IsNoiseWord(token string) bool {
	_, ok := t.noiseSet[token]
	return ok
}

// IsLegalSuffix reports whether the token is a legal-entity suffix.
func (t *Table) IsLegalSuffix(token string) bool {
	_, ok := t.suffixSet[strings.TrimRight(token, ".")]
	return ok
}

// HasTokenPrefix reports whether the token starts with a known
// transaction-id prefix and should be dropped whole.
func (t *Table) HasTokenPrefix(token string) bool {
	for _, p := range t.TokenPrefixes {
		if p != "" && strings.HasPrefix(token, p) {
			return true
		}
	}
	return false
}

// HasNumericIDPrefix reports whether a digit run starts with one of the
// known numeric transaction-id prefixes.
func (t *Table) HasNumericIDPrefix(digits string) bool {
	for _, p := range t.NumericIDPrefixes {
		if p != "" && strings.HasPrefix(digits, p) {
			return true
		}
	}
	return false
}
