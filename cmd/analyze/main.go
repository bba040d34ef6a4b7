package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rhoekstra/pattern-engine/internal/cache"
	"github.com/rhoekstra/pattern-engine/internal/engine"
	"github.com/rhoekstra/pattern-engine/internal/logger"
	"github.com/rhoekstra/pattern-engine/internal/reportsync"
	"github.com/rhoekstra/pattern-engine/internal/rules"
	bqstore "github.com/rhoekstra/pattern-engine/internal/store/bigquery"
	"github.com/rhoekstra/pattern-engine/internal/store/inmemory"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	administration := flag.String("administration", "", "Administration to analyze (required)")
	incremental := flag.Bool("incremental", false, "Run an incremental update instead of a full scan")
	projectID := flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID (or set BQ_PROJECT env)")
	datasetID := flag.String("dataset", os.Getenv("BQ_DATASET"), "BigQuery dataset ID (or set BQ_DATASET env)")
	rulesURI := flag.String("rules", os.Getenv("RULES_URI"), "Extraction rules source: file path or gs:// URI (built-in defaults when empty)")
	windowYears := flag.Int("window-years", 0, "Size of the active transaction window in years (default 2)")
	dryRun := flag.Bool("dry-run", false, "Read transactions from BigQuery but keep discovered patterns in memory")
	notionToken := flag.String("notion-token", os.Getenv("NOTION_TOKEN"), "Notion API token for publishing the report summary (optional)")
	notionDBID := flag.String("notion-db-id", os.Getenv("NOTION_DB_ID"), "Notion database ID for the report summary (optional)")
	asJSON := flag.Bool("json", false, "Print the analysis report as JSON")
	flag.Parse()

	// Validate required flags
	if *administration == "" {
		log.Fatal().Msg("Error: --administration is required")
	}
	if *projectID == "" || *datasetID == "" {
		log.Fatal().Msg("Error: --project and --dataset are required (or BQ_PROJECT/BQ_DATASET)")
	}
	if (*notionToken == "") != (*notionDBID == "") {
		log.Fatal().Msg("Error: --notion-token and --notion-db-id must be set together")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	// Load extraction rules
	table := rules.Default()
	if *rulesURI != "" {
		loaded, err := rules.LoadURI(ctx, *rulesURI)
		if err != nil {
			log.Fatal().Err(err).Str("uri", *rulesURI).Msg("Failed to load extraction rules")
		}
		table = loaded
	}

	// Initialize the BigQuery repository
	repo, err := bqstore.NewRepository(ctx, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
	}
	defer repo.Close()

	// With --dry-run the discovered patterns land in an in-memory store,
	// so the persisted pattern set stays untouched.
	var store engine.PatternStore = repo
	if *dryRun {
		store = inmemory.NewPatternStore()
		log.Info().Msg("Dry run: patterns will not be persisted")
	}

	cfg := engine.DefaultConfig()
	if *windowYears > 0 {
		cfg.WindowYears = *windowYears
	}
	eng := engine.NewWithConfig(repo, repo, store, cache.NewMemory(cache.DefaultTTL), table, log, cfg)

	log.Info().
		Str("administration", *administration).
		Bool("incremental", *incremental).
		Bool("dry_run", *dryRun).
		Msg("Starting pattern analysis")

	var report *engine.AnalysisReport
	if *incremental {
		report, err = eng.IncrementalAnalyze(ctx, *administration)
	} else {
		report, err = eng.Analyze(ctx, *administration, engine.Filters{})
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Analysis failed")
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatal().Err(err).Msg("Failed to encode report")
		}
	} else {
		printReport(report)
	}

	// Publish the summary to Notion when configured
	if *notionToken != "" {
		patterns, err := eng.ReadPatterns(ctx, *administration)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read patterns for the Notion summary")
		}
		notionClient := reportsync.NewNotionClient(*notionToken)
		if err := reportsync.SyncReport(ctx, notionClient, *notionDBID, report, patterns, *dryRun); err != nil {
			log.Fatal().Err(err).Msg("Failed to publish report to Notion")
		}
		fmt.Println("Report published to Notion.")
	}
}

func printReport(report *engine.AnalysisReport) {
	fmt.Println("\n=== Pattern Analysis Report ===")
	fmt.Printf("Administration:  %s\n", report.Administration)
	fmt.Printf("Analyzed at:     %s\n", report.AnalysisDate.Format(time.RFC3339))
	fmt.Printf("Date range:      %s .. %s\n",
		report.DateRange.Start.Format("2006-01-02"),
		report.DateRange.End.Format("2006-01-02"))
	fmt.Printf("Transactions:    %d\n", report.TotalTransactions)
	fmt.Printf("Patterns:        %d (%d compound)\n", report.PatternsDiscovered, report.ReferencePatterns)
	fmt.Printf("Skipped:         %d no bank side, %d no reference, %d no verb\n",
		report.Statistics.SkippedNoBank,
		report.Statistics.SkippedNoRef,
		report.Statistics.SkippedNoVerb)
	if report.FailedWrites > 0 {
		fmt.Printf("Failed writes:   %d\n", report.FailedWrites)
	}
	if inc := report.Incremental; inc != nil {
		switch {
		case inc.FellBackToFull:
			fmt.Println("Incremental:     fell back to a full scan")
		case inc.NoOp:
			fmt.Println("Incremental:     no new transactions")
		default:
			fmt.Printf("Incremental:     %d new transactions, %d new patterns, %d reinforced\n",
				inc.NewTransactions, inc.NewPatterns, inc.ReinforcedPatterns)
		}
	}
	fmt.Println()
}
