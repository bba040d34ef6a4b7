package reportsync

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/rhoekstra/pattern-engine/internal/engine"
)

// maxTopPatterns caps the pattern digest rendered into the summary page.
const maxTopPatterns = 10

// ReportToNotionProperties converts an analysis report to Notion properties.
// One page per administration: the administration name is the title, so the
// sync can update the existing page on the next run.
func ReportToNotionProperties(report *engine.AnalysisReport, patterns []engine.VerbPattern) notionapi.Properties {
	props := notionapi.Properties{
		"Administration": notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: report.Administration,
					},
				},
			},
		},
		"Patterns": notionapi.NumberProperty{
			Number: float64(report.PatternsDiscovered),
		},
		"Compound Patterns": notionapi.NumberProperty{
			Number: float64(report.ReferencePatterns),
		},
		"Transactions": notionapi.NumberProperty{
			Number: float64(report.TotalTransactions),
		},
		"Mode": notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: reportMode(report),
			},
		},
		"Last Analysis": notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: func() *notionapi.Date {
					d := notionapi.Date(report.AnalysisDate)
					return &d
				}(),
			},
		},
	}

	// Date Range
	if !report.DateRange.Start.IsZero() {
		props["Date Range"] = notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: func() *notionapi.Date {
					d := notionapi.Date(report.DateRange.Start)
					return &d
				}(),
				End: func() *notionapi.Date {
					d := notionapi.Date(report.DateRange.End)
					return &d
				}(),
			},
		}
	}

	// Skipped (no bank side, no reference, no verb)
	skipped := report.Statistics.SkippedNoBank + report.Statistics.SkippedNoRef + report.Statistics.SkippedNoVerb
	props["Skipped"] = notionapi.NumberProperty{
		Number: float64(skipped),
	}

	// Failed Writes
	if report.FailedWrites > 0 {
		props["Failed Writes"] = notionapi.NumberProperty{
			Number: float64(report.FailedWrites),
		}
	}

	// Incremental details
	if report.Incremental != nil {
		props["New Transactions"] = notionapi.NumberProperty{
			Number: float64(report.Incremental.NewTransactions),
		}
		props["No-Op"] = notionapi.CheckboxProperty{
			Checkbox: report.Incremental.NoOp,
		}
	}

	// Top Patterns digest
	if digest := topPatternsDigest(patterns); digest != "" {
		props["Top Patterns"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: digest,
					},
				},
			},
		}
	}

	return props
}

// reportMode names the analysis mode for the Mode select field.
func reportMode(report *engine.AnalysisReport) string {
	switch {
	case report.Incremental == nil:
		return "full"
	case report.Incremental.FellBackToFull:
		return "incremental (fell back to full)"
	default:
		return "incremental"
	}
}

// topPatternsDigest renders the most frequent patterns as a one-line-per-
// pattern summary, most occurrences first.
func topPatternsDigest(patterns []engine.VerbPattern) string {
	if len(patterns) == 0 {
		return ""
	}

	sorted := make([]engine.VerbPattern, len(patterns))
	copy(sorted, patterns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Occurrences > sorted[j].Occurrences
	})
	if len(sorted) > maxTopPatterns {
		sorted = sorted[:maxTopPatterns]
	}

	var b strings.Builder
	for i, p := range sorted {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s (%s): %dx, debet %s / credit %s, avg %.2f",
			p.Verb, p.BankAccount, p.Occurrences, p.DebetAccount, p.CreditAccount, p.AverageAmount)
	}
	return b.String()
}
