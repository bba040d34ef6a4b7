package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rhoekstra/pattern-engine/internal/engine"
	"github.com/rhoekstra/pattern-engine/internal/logger"
	"github.com/rhoekstra/pattern-engine/internal/reportsync"
	bqstore "github.com/rhoekstra/pattern-engine/internal/store/bigquery"
)

// Publishes the persisted analysis state of an administration to the
// Notion summary database, without running a new analysis.
func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	administration := flag.String("administration", "", "Administration to publish (required)")
	projectID := flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID (or set BQ_PROJECT env)")
	datasetID := flag.String("dataset", os.Getenv("BQ_DATASET"), "BigQuery dataset ID (or set BQ_DATASET env)")
	notionToken := flag.String("notion-token", os.Getenv("NOTION_TOKEN"), "Notion API token (required, or set NOTION_TOKEN env)")
	notionDBID := flag.String("notion-db-id", os.Getenv("NOTION_DB_ID"), "Notion database ID (required, or set NOTION_DB_ID env)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	// Validate required flags
	if *administration == "" {
		log.Fatal().Msg("Error: --administration is required")
	}
	if *projectID == "" || *datasetID == "" {
		log.Fatal().Msg("Error: --project and --dataset are required (or BQ_PROJECT/BQ_DATASET)")
	}
	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("administration", *administration).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	// Initialize BigQuery repository
	repo, err := bqstore.NewRepository(ctx, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
	}
	defer repo.Close()

	md, err := repo.GetMetadata(ctx, *administration)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read analysis metadata")
	}
	if md == nil {
		log.Fatal().Str("administration", *administration).Msg("No analysis on record; run an analysis first")
	}

	patterns, err := repo.ReadAllPatterns(ctx, *administration)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read patterns")
	}

	// Rebuild the report shape from the persisted state.
	report := &engine.AnalysisReport{
		Administration:     md.Administration,
		TotalTransactions:  md.TransactionsAnalyzed,
		PatternsDiscovered: md.PatternsDiscovered,
		AnalysisDate:       md.LastAnalysisDate,
		DateRange: engine.DateRange{
			Start: md.DateRangeStart,
			End:   md.DateRangeEnd,
		},
	}
	for _, p := range patterns {
		if p.IsCompound {
			report.ReferencePatterns++
		}
	}

	// Initialize Notion client and publish
	notionClient := reportsync.NewNotionClient(*notionToken)
	if err := reportsync.SyncReport(ctx, notionClient, *notionDBID, report, patterns, *dryRun); err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Println("Sync completed successfully.")
}
