package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/rhoekstra/pattern-engine/internal/engine"
)

const (
	verbPatternsTable     = "verb_patterns"
	analysisMetadataTable = "analysis_metadata"
)

// UpsertVerbPattern upserts one pattern row into <dataset>.verb_patterns.
func UpsertVerbPattern(ctx context.Context, projectID, datasetID string, p engine.VerbPattern, mode engine.MergeMode) error {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return fmt.Errorf("UpsertVerbPattern: bigquery client: %w", err)
	}
	defer client.Close()

	return UpsertVerbPatternWithClient(ctx, client, projectID, datasetID, p, mode)
}

// mergeExprs returns the occurrences and last_seen SQL expressions for a
// merge mode. Replace takes the incoming row verbatim, so a corrective
// re-analysis can move last_seen backward; additive accumulates counts
// and keeps the most recent sighting.
func mergeExprs(mode engine.MergeMode) (occurrences, lastSeen string) {
	if mode == engine.MergeAdditive {
		return "T.occurrences + S.occurrences", "GREATEST(T.last_seen, S.last_seen)"
	}
	return "S.occurrences", "S.last_seen"
}

// UpsertVerbPatternWithClient upserts one pattern row using the provided
// BigQuery client. MergeReplace overwrites the stored occurrence count
// and last_seen, MergeAdditive adds to the count and keeps the later
// last_seen; descriptive fields always follow the incoming row. The
// MERGE is a single atomic statement per key.
func UpsertVerbPatternWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, p engine.VerbPattern, mode engine.MergeMode) error {
	row := rowFromPattern(p, time.Now().UTC())

	occurrenceExpr, lastSeenExpr := mergeExprs(mode)

	query := fmt.Sprintf(`
		MERGE `+"`%s.%s.%s`"+` T
		USING (SELECT
			@administration AS administration,
			@bank_account AS bank_account,
			@verb AS verb,
			@verb_company AS verb_company,
			@verb_reference AS verb_reference,
			@is_compound AS is_compound,
			@reference_number AS reference_number,
			@debet_account AS debet_account,
			@credit_account AS credit_account,
			@sample_description AS sample_description,
			@occurrences AS occurrences,
			@confidence AS confidence,
			@average_amount AS average_amount,
			@last_seen AS last_seen,
			@updated_ts AS updated_ts
		) S
		ON T.administration = S.administration
		AND T.bank_account = S.bank_account
		AND T.verb = S.verb
		WHEN MATCHED THEN UPDATE SET
			verb_company = S.verb_company,
			verb_reference = S.verb_reference,
			is_compound = S.is_compound,
			reference_number = S.reference_number,
			debet_account = S.debet_account,
			credit_account = S.credit_account,
			sample_description = S.sample_description,
			occurrences = %s,
			confidence = S.confidence,
			average_amount = S.average_amount,
			last_seen = %s,
			updated_ts = S.updated_ts
		WHEN NOT MATCHED THEN INSERT (
			administration, bank_account, verb,
			verb_company, verb_reference, is_compound,
			reference_number, debet_account, credit_account,
			sample_description, occurrences, confidence,
			average_amount, last_seen, updated_ts
		) VALUES (
			S.administration, S.bank_account, S.verb,
			S.verb_company, S.verb_reference, S.is_compound,
			S.reference_number, S.debet_account, S.credit_account,
			S.sample_description, S.occurrences, S.confidence,
			S.average_amount, S.last_seen, S.updated_ts
		)
	`, projectID, datasetID, verbPatternsTable, occurrenceExpr, lastSeenExpr)

	q := client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "administration", Value: row.Administration},
		{Name: "bank_account", Value: row.BankAccount},
		{Name: "verb", Value: row.Verb},
		{Name: "verb_company", Value: row.VerbCompany},
		{Name: "verb_reference", Value: row.VerbReference},
		{Name: "is_compound", Value: row.IsCompound},
		{Name: "reference_number", Value: row.ReferenceNumber},
		{Name: "debet_account", Value: row.DebetAccount},
		{Name: "credit_account", Value: row.CreditAccount},
		{Name: "sample_description", Value: row.SampleDescription},
		{Name: "occurrences", Value: row.Occurrences},
		{Name: "confidence", Value: row.Confidence},
		{Name: "average_amount", Value: row.AverageAmount},
		{Name: "last_seen", Value: row.LastSeen},
		{Name: "updated_ts", Value: row.UpdatedTS},
	}

	return runAndWait(ctx, q, "UpsertVerbPatternWithClient")
}

// ReadAllVerbPatternsWithClient reads every pattern of one administration,
// ordered by key for deterministic downstream iteration.
func ReadAllVerbPatternsWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID, administration string) ([]engine.VerbPattern, error) {
	query := fmt.Sprintf(`
		SELECT
			administration,
			bank_account,
			verb,
			verb_company,
			verb_reference,
			is_compound,
			reference_number,
			debet_account,
			credit_account,
			sample_description,
			occurrences,
			confidence,
			average_amount,
			last_seen,
			updated_ts
		FROM `+"`%s.%s.%s`"+`
		WHERE administration = @administration
		ORDER BY bank_account, verb
	`, projectID, datasetID, verbPatternsTable)

	q := client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "administration", Value: administration},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ReadAllVerbPatternsWithClient: reading query: %w", err)
	}

	var patterns []engine.VerbPattern
	for {
		var row VerbPatternRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadAllVerbPatternsWithClient: iterating: %w", err)
		}
		patterns = append(patterns, row.toPattern())
	}

	return patterns, nil
}

// GetAnalysisMetadataWithClient reads one administration's analysis
// bookkeeping. Returns (nil, nil) when the administration was never
// analyzed.
func GetAnalysisMetadataWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID, administration string) (*engine.AnalysisMetadata, error) {
	query := fmt.Sprintf(`
		SELECT
			administration,
			last_analysis_date,
			transactions_analyzed,
			patterns_discovered,
			date_range_start,
			date_range_end,
			updated_ts
		FROM `+"`%s.%s.%s`"+`
		WHERE administration = @administration
		LIMIT 1
	`, projectID, datasetID, analysisMetadataTable)

	q := client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "administration", Value: administration},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetAnalysisMetadataWithClient: reading query: %w", err)
	}

	var row AnalysisMetadataRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetAnalysisMetadataWithClient: iterating: %w", err)
	}

	md := row.toMetadata()
	return &md, nil
}

// UpsertAnalysisMetadataWithClient writes one administration's analysis
// bookkeeping. MergeAdditive accumulates transactions_analyzed; every
// other field follows the incoming row.
func UpsertAnalysisMetadataWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, md engine.AnalysisMetadata, mode engine.MergeMode) error {
	analyzedExpr := "S.transactions_analyzed"
	if mode == engine.MergeAdditive {
		analyzedExpr = "T.transactions_analyzed + S.transactions_analyzed"
	}

	query := fmt.Sprintf(`
		MERGE `+"`%s.%s.%s`"+` T
		USING (SELECT
			@administration AS administration,
			@last_analysis_date AS last_analysis_date,
			@transactions_analyzed AS transactions_analyzed,
			@patterns_discovered AS patterns_discovered,
			@date_range_start AS date_range_start,
			@date_range_end AS date_range_end,
			@updated_ts AS updated_ts
		) S
		ON T.administration = S.administration
		WHEN MATCHED THEN UPDATE SET
			last_analysis_date = S.last_analysis_date,
			transactions_analyzed = %s,
			patterns_discovered = S.patterns_discovered,
			date_range_start = S.date_range_start,
			date_range_end = S.date_range_end,
			updated_ts = S.updated_ts
		WHEN NOT MATCHED THEN INSERT (
			administration, last_analysis_date, transactions_analyzed,
			patterns_discovered, date_range_start, date_range_end, updated_ts
		) VALUES (
			S.administration, S.last_analysis_date, S.transactions_analyzed,
			S.patterns_discovered, S.date_range_start, S.date_range_end, S.updated_ts
		)
	`, projectID, datasetID, analysisMetadataTable, analyzedExpr)

	q := client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "administration", Value: md.Administration},
		{Name: "last_analysis_date", Value: md.LastAnalysisDate},
		{Name: "transactions_analyzed", Value: int64(md.TransactionsAnalyzed)},
		{Name: "patterns_discovered", Value: int64(md.PatternsDiscovered)},
		{Name: "date_range_start", Value: civil.DateOf(md.DateRangeStart)},
		{Name: "date_range_end", Value: civil.DateOf(md.DateRangeEnd)},
		{Name: "updated_ts", Value: time.Now().UTC()},
	}

	return runAndWait(ctx, q, "UpsertAnalysisMetadataWithClient")
}

// runAndWait runs a DML query and waits for the job to finish.
func runAndWait(ctx context.Context, q *bigquery.Query, op string) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running query: %w", op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", op, err)
	}
	return nil
}
