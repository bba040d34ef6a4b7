package engine

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rhoekstra/pattern-engine/internal/rules"
)

// VerbExtractor pulls a merchant verb, optionally compounded with an
// invoice reference ("COMPANY|REFERENCE"), out of a raw transaction
// description. Returning ok=false is not an error: it means the
// description carries insufficient evidence.
type VerbExtractor struct {
	table *rules.Table
}

// NewVerbExtractor creates an extractor backed by the given rule table.
// A nil table falls back to the built-in defaults.
func NewVerbExtractor(table *rules.Table) *VerbExtractor {
	if table == nil {
		table = rules.Default()
	}
	return &VerbExtractor{table: table}
}

var (
	ibanPattern = regexp.MustCompile(`[A-Z]{2}[0-9]{2}[A-Z0-9]{8,30}`)
	datePattern = regexp.MustCompile(`\b[0-9]{1,4}[-/.][0-9]{1,2}[-/.][0-9]{1,4}\b`)
	timePattern = regexp.MustCompile(`\b[0-9]{1,2}:[0-9]{2}(?::[0-9]{2})?\b`)

	// letter block followed by digits followed by letters again, the shape
	// of bank transaction ids like "AB12CD" or "GT480NL2"
	letterDigitLetterPattern = regexp.MustCompile(`^[A-Z]+[0-9]+[A-Z]+[A-Z0-9]*$`)

	digitRunPattern   = regexp.MustCompile(`[0-9]+`)
	letterCodePattern = regexp.MustCompile(`\b[A-Z]{1,4}-?[0-9]{4,10}\b`)
	labelledRefPattern = regexp.MustCompile(`(?:REF|NR|INV|FACTUUR)[:. ]\s*([A-Z0-9][A-Z0-9/-]{2,19})`)
)

// Extract returns the verb for a description: the compound
// "COMPANY|REFERENCE" form when both a company and an invoice reference
// are found, the company alone otherwise. existingReference is a fallback
// source for the company when the description itself yields none (some
// ledgers keep the contra-relation name in the reference field).
func (e *VerbExtractor) Extract(description, existingReference string) (string, bool) {
	norm := normalizeDescription(description)
	if norm == "" && existingReference == "" {
		return "", false
	}

	company, ok := e.table.MatchAlias(norm)
	if !ok {
		company = e.firstCandidate(e.scrub(norm))
	}
	if company == "" && existingReference != "" {
		refNorm := normalizeDescription(existingReference)
		if aliased, hit := e.table.MatchAlias(refNorm); hit {
			company = aliased
		} else {
			company = e.firstCandidate(e.scrub(refNorm))
		}
	}
	if company == "" {
		return "", false
	}

	if reference := e.ExtractReference(norm); reference != "" {
		return company + "|" + reference, true
	}
	return company, true
}

// ExtractReference pulls an invoice/reference number out of a description,
// in priority order: the longest 6-12 digit numeric run, then a
// letter-prefixed alphanumeric code, then an explicitly labelled
// REF:/NR:/INV:/FACTUUR: token. Empty when nothing qualifies.
func (e *VerbExtractor) ExtractReference(description string) string {
	norm := normalizeDescription(description)
	// dates, times and IBANs contain digit runs that are never references
	norm = ibanPattern.ReplaceAllString(norm, " ")
	norm = datePattern.ReplaceAllString(norm, " ")
	norm = timePattern.ReplaceAllString(norm, " ")

	// priority 1: longest 6-12 digit run
	runs := digitRunPattern.FindAllString(norm, -1)
	var best string
	for _, run := range runs {
		if len(run) < 6 || len(run) > 12 {
			continue
		}
		if e.table.HasNumericIDPrefix(run) {
			continue
		}
		if len(run) > len(best) {
			best = run
		}
	}
	if best != "" {
		return best
	}

	// priority 2: letter-prefixed alphanumeric code
	if code := letterCodePattern.FindString(norm); code != "" {
		return code
	}

	// priority 3: labelled token
	if m := labelledRefPattern.FindStringSubmatch(norm); len(m) > 1 {
		return m[1]
	}
	return ""
}

// scrub removes the substrings that are known to be noise rather than
// merchant evidence: IBANs, dates, times.
func (e *VerbExtractor) scrub(norm string) string {
	norm = ibanPattern.ReplaceAllString(norm, " ")
	norm = datePattern.ReplaceAllString(norm, " ")
	norm = timePattern.ReplaceAllString(norm, " ")
	return norm
}

// firstCandidate returns the first word of length 3-15 with at least one
// vowel that is neither noise vocabulary, a legal-entity suffix, nor
// shaped like a transaction id.
func (e *VerbExtractor) firstCandidate(scrubbed string) string {
	for _, raw := range strings.Fields(scrubbed) {
		if e.table.HasTokenPrefix(raw) {
			continue
		}
		token := cleanToken(raw)
		if len(token) < 3 || len(token) > 15 {
			continue
		}
		if !containsVowel(token) {
			continue
		}
		if e.table.IsNoiseWord(token) {
			continue
		}
		if e.table.IsLegalSuffix(token) {
			continue
		}
		if e.isTransactionIDShaped(token) {
			continue
		}
		return token
	}
	return ""
}

// isTransactionIDShaped recognises the id shapes that slip past the vowel
// rule: long mixed letter-digit blocks, letter-digit-letter patterns and
// digit runs with a known numeric prefix.
func (e *VerbExtractor) isTransactionIDShaped(token string) bool {
	letters, digits := 0, 0
	for _, r := range token {
		switch {
		case r >= 'A' && r <= 'Z':
			letters++
		case r >= '0' && r <= '9':
			digits++
		}
	}
	if digits == len(token) {
		return e.table.HasNumericIDPrefix(token)
	}
	if letters > 0 && digits > 0 {
		if len(token) >= 8 {
			return true
		}
		if letterDigitLetterPattern.MatchString(token) {
			return true
		}
	}
	return false
}

// normalizeDescription uppercases, replaces separator punctuation with
// spaces and collapses runs of whitespace.
func normalizeDescription(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', ',', ';', '(', ')', '"', '\'', '<', '>':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// cleanToken keeps only letters and digits so that punctuation-glued
// tokens ("REF:AB123456") are judged by their alphanumeric content.
func cleanToken(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func containsVowel(token string) bool {
	return strings.ContainsAny(token, "AEIOU")
}

// sortedPatterns flattens a freshly built pattern map into a
// deterministic, key-ordered slice.
func sortedPatterns(m map[PatternKey]*VerbPattern) []VerbPattern {
	keys := make([]string, 0, len(m))
	byKey := make(map[string]*VerbPattern, len(m))
	for k, p := range m {
		s := k.String()
		keys = append(keys, s)
		byKey[s] = p
	}
	sort.Strings(keys)

	out := make([]VerbPattern, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out
}
