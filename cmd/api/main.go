package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rhoekstra/pattern-engine/internal/api/handlers"
	"github.com/rhoekstra/pattern-engine/internal/api/middleware"
	"github.com/rhoekstra/pattern-engine/internal/cache"
	"github.com/rhoekstra/pattern-engine/internal/engine"
	"github.com/rhoekstra/pattern-engine/internal/jobs"
	"github.com/rhoekstra/pattern-engine/internal/jobs/inmemory"
	"github.com/rhoekstra/pattern-engine/internal/logger"
	"github.com/rhoekstra/pattern-engine/internal/rules"
	bqstore "github.com/rhoekstra/pattern-engine/internal/store/bigquery"
)

func main() {
	// Parse command-line flags
	var (
		port        = flag.String("port", "8080", "HTTP server port")
		projectID   = flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID (or set BQ_PROJECT env)")
		datasetID   = flag.String("dataset", os.Getenv("BQ_DATASET"), "BigQuery dataset ID (or set BQ_DATASET env)")
		apiKey      = flag.String("api-key", os.Getenv("API_KEY"), "API key for request authentication (or set API_KEY env, empty disables)")
		cacheBucket = flag.String("cache-bucket", os.Getenv("GCS_CACHE_BUCKET"), "GCS bucket for the second-level pattern cache (or set GCS_CACHE_BUCKET env)")
		cacheTTL    = flag.Duration("cache-ttl", cache.DefaultTTL, "Pattern cache TTL")
		rulesURI    = flag.String("rules", os.Getenv("RULES_URI"), "Extraction rules source: file path or gs:// URI (built-in defaults when empty)")
		workers     = flag.Int("workers", 2, "Number of analysis job workers")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	ctx := context.Background()

	if *projectID == "" || *datasetID == "" {
		log.Fatal().Msg("BigQuery project and dataset are required (-project/-dataset or BQ_PROJECT/BQ_DATASET)")
	}

	// Load extraction rules
	table := rules.Default()
	if *rulesURI != "" {
		loaded, err := rules.LoadURI(ctx, *rulesURI)
		if err != nil {
			log.Fatal().Err(err).Str("uri", *rulesURI).Msg("Failed to load extraction rules")
		}
		table = loaded
		log.Info().Str("uri", *rulesURI).Msg("Loaded extraction rules")
	}

	// Initialize the BigQuery repository
	repo, err := bqstore.NewRepository(ctx, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery repository")
	}
	defer repo.Close()

	// Initialize the pattern cache: in-process always, GCS behind it when configured
	var patternCache engine.PatternCache
	l1 := cache.NewMemory(*cacheTTL)
	if *cacheBucket != "" {
		l2, err := cache.NewGCS(ctx, *cacheBucket, "pattern-cache", *cacheTTL, log)
		if err != nil {
			log.Fatal().Err(err).Str("bucket", *cacheBucket).Msg("Failed to create GCS cache")
		}
		patternCache = cache.NewMultiLevel(l1, l2)
		log.Info().Str("bucket", *cacheBucket).Msg("GCS pattern cache enabled")
	} else {
		patternCache = l1
		log.Warn().Msg("No GCS cache bucket configured - pattern cache is in-process only")
	}

	// Initialize the engine
	eng := engine.New(repo, repo, repo, patternCache, table, log)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, *workers, jobStore)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	// Create job handler for processing analysis jobs
	jobHandler := func(ctx context.Context, job jobs.Job) error {
		analyzeJob, ok := job.(*jobs.AnalyzeJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", analyzeJob.JobID).
			Str("administration", analyzeJob.Administration).
			Str("mode", string(analyzeJob.Mode)).
			Msg("Processing analysis job")

		var (
			report *engine.AnalysisReport
			err    error
		)
		if analyzeJob.Mode == jobs.ModeIncremental {
			report, err = eng.IncrementalAnalyze(ctx, analyzeJob.Administration)
		} else {
			report, err = eng.Analyze(ctx, analyzeJob.Administration, engine.Filters{
				ReferenceNumber: analyzeJob.ReferenceNumber,
				Debet:           analyzeJob.Debet,
				Credit:          analyzeJob.Credit,
			})
		}
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", analyzeJob.JobID).
				Str("administration", analyzeJob.Administration).
				Msg("Analysis job failed")
			return err
		}

		if analyzeJob.Result, err = json.Marshal(report); err != nil {
			return fmt.Errorf("encoding analysis report: %w", err)
		}

		log.Info().
			Str("job_id", analyzeJob.JobID).
			Str("administration", analyzeJob.Administration).
			Int("patterns", report.PatternsDiscovered).
			Msg("Analysis job completed")

		return nil
	}

	// Start job consumer in background
	go func() {
		log.Info().Int("workers", *workers).Msg("Starting analysis job workers")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Initialize handlers
	analysisHandler := handlers.NewAnalysisHandler(eng, jobQueue, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Analysis endpoints
	mux.HandleFunc("/api/analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			analysisHandler.EnqueueAnalyze(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/analyze/incremental", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			analysisHandler.EnqueueIncremental(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/analyze/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			analysisHandler.AnalyzeSync(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Prediction endpoint
	mux.HandleFunc("/api/apply", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			analysisHandler.Apply(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Patterns endpoint
	mux.HandleFunc("/api/patterns", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			analysisHandler.ListPatterns(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// Extract job ID from path
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(*apiKey)(mux),
				),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting pattern engine API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Cancel worker context
	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
