// Package handlers implements the HTTP endpoints of the pattern engine:
// analysis scheduling, synchronous analysis, batch prediction and pattern
// inspection.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/rhoekstra/pattern-engine/internal/api/middleware"
	"github.com/rhoekstra/pattern-engine/internal/engine"
	"github.com/rhoekstra/pattern-engine/internal/jobs"
)

// AnalysisHandler handles analysis and prediction endpoints.
type AnalysisHandler struct {
	engine    *engine.Engine
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(eng *engine.Engine, publisher jobs.Publisher, log zerolog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		engine:    eng,
		publisher: publisher,
		log:       log,
	}
}

type analyzeRequest struct {
	Administration  string `json:"administration"`
	Mode            string `json:"mode,omitempty"`
	ReferenceNumber string `json:"reference_number,omitempty"`
	Debet           string `json:"debet,omitempty"`
	Credit          string `json:"credit,omitempty"`
}

func (r analyzeRequest) filters() engine.Filters {
	return engine.Filters{
		ReferenceNumber: r.ReferenceNumber,
		Debet:           r.Debet,
		Credit:          r.Credit,
	}
}

// EnqueueAnalyze handles POST /api/analyze. It queues the analysis and
// answers 202 with the job id; long scans never block the request.
func (h *AnalysisHandler) EnqueueAnalyze(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, "")
}

// EnqueueIncremental handles POST /api/analyze/incremental. Same contract
// as EnqueueAnalyze with the mode pinned to incremental.
func (h *AnalysisHandler) EnqueueIncremental(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, jobs.ModeIncremental)
}

func (h *AnalysisHandler) enqueue(w http.ResponseWriter, r *http.Request, forced jobs.AnalyzeMode) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Administration == "" {
		middleware.WriteError(w, http.StatusBadRequest, "administration is required")
		return
	}

	mode := jobs.AnalyzeMode(req.Mode)
	if forced != "" {
		mode = forced
	}
	switch mode {
	case "", jobs.ModeFull, jobs.ModeIncremental:
	default:
		middleware.WriteError(w, http.StatusBadRequest, "mode must be full or incremental")
		return
	}

	job := &jobs.AnalyzeJob{
		Administration:  req.Administration,
		Mode:            mode,
		ReferenceNumber: req.ReferenceNumber,
		Debet:           req.Debet,
		Credit:          req.Credit,
	}
	if err := h.publisher.PublishAnalyze(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("administration", req.Administration).Msg("Failed to enqueue analysis job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue analysis job")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("administration", req.Administration).
		Str("mode", string(job.Mode)).
		Msg("Analysis job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":         job.JobID,
		"administration": req.Administration,
		"mode":           string(job.Mode),
		"status":         string(job.Status),
	})
}

// AnalyzeSync handles POST /api/analyze/sync. It runs the analysis inline
// and answers with the full report; meant for small administrations and
// tooling.
func (h *AnalysisHandler) AnalyzeSync(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Administration == "" {
		middleware.WriteError(w, http.StatusBadRequest, "administration is required")
		return
	}

	var (
		report *engine.AnalysisReport
		err    error
	)
	if jobs.AnalyzeMode(req.Mode) == jobs.ModeIncremental {
		report, err = h.engine.IncrementalAnalyze(r.Context(), req.Administration)
	} else {
		report, err = h.engine.Analyze(r.Context(), req.Administration, req.filters())
	}
	if err != nil {
		h.log.Error().Err(err).Str("administration", req.Administration).Msg("Analysis failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Analysis failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}

type applyRequest struct {
	Administration string               `json:"administration"`
	Transactions   []engine.Transaction `json:"transactions"`
}

// Apply handles POST /api/apply. It fills missing fields on the submitted
// transactions and returns the updated copies with prediction statistics.
func (h *AnalysisHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Administration == "" {
		middleware.WriteError(w, http.StatusBadRequest, "administration is required")
		return
	}
	if len(req.Transactions) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "transactions are required")
		return
	}

	updated, stats, err := h.engine.Apply(r.Context(), req.Transactions, req.Administration)
	if err != nil {
		h.log.Error().Err(err).Str("administration", req.Administration).Msg("Apply failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Apply failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": updated,
		"statistics":   stats,
	})
}

// ListPatterns handles GET /api/patterns?administration=...
func (h *AnalysisHandler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	administration := r.URL.Query().Get("administration")
	if administration == "" {
		middleware.WriteError(w, http.StatusBadRequest, "administration is required")
		return
	}

	patterns, err := h.engine.ReadPatterns(r.Context(), administration)
	if err != nil {
		h.log.Error().Err(err).Str("administration", administration).Msg("Failed to read patterns")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read patterns")
		return
	}
	if patterns == nil {
		patterns = []engine.VerbPattern{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Administration: query.Get("administration"),
		Status:         jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
