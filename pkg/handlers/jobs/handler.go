package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tenmatch/core/pkg/database"
	"github.com/tenmatch/core/pkg/logger"
	"github.com/tenmatch/core/pkg/models/api"
)

// lockChecker reports whether a job's lease is currently held. Any lock
// store backend satisfies it.
type lockChecker interface {
	IsHeld(ctx context.Context, resource string) (bool, error)
}

// Handler handles job status requests
type Handler struct {
	queries *database.Queries
	locks   lockChecker
	logger  *logger.Logger
}

// NewHandler creates a new jobs handler
func NewHandler(queries *database.Queries, locks lockChecker, log *logger.Logger) *Handler {
	return &Handler{
		queries: queries,
		locks:   locks,
		logger:  log,
	}
}

// List handles the /api/jobs endpoint. Jobs appear once their first run
// lands in the ledger; the listing aggregates that history and adds the
// live lock state per job.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	stats, err := h.queries.ListJobStats(ctx)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "query_job_stats_failed").
			Msg("Failed to query job stats")
		http.Error(w, "Failed to query jobs", http.StatusInternalServerError)
		return
	}

	jobStatuses := make([]api.JobStatusResponse, 0, len(stats))
	for _, row := range stats {
		status := api.JobStatusResponse{
			JobName:       row.JobName,
			TotalRuns:     row.TotalRuns,
			Completed:     row.Completed,
			Failed:        row.Failed,
			Skipped:       row.Skipped,
			LastStartedAt: row.LastStartedAt,
			AvgDurationMs: row.AvgDurationMs,
		}

		lastSuccess, err := h.queries.GetLatestCompletedRun(ctx, row.JobName)
		if err == nil {
			status.LastSuccessAt = lastSuccess.FinishedAt
		} else if !errors.Is(err, pgx.ErrNoRows) {
			h.logger.Warn().
				Err(err).
				Str("job_name", row.JobName).
				Str("action", "query_last_success_failed").
				Msg("Failed to query last successful run")
		}

		held, err := h.locks.IsHeld(ctx, row.JobName)
		if err != nil {
			h.logger.Warn().
				Err(err).
				Str("job_name", row.JobName).
				Str("action", "lock_state_check_failed").
				Msg("Failed to check lock state")
		}
		status.LockHeld = held

		jobStatuses = append(jobStatuses, status)
	}

	h.logger.Info().
		Str("action", "jobs_response").
		Int("count", len(jobStatuses)).
		Msg("Returning job statuses")

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(api.Response{
		Success: true,
		Data:    jobStatuses,
	}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// Runs handles GET /api/jobs/{name}/runs
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	// Extract job name from path
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	jobName, ok := strings.CutSuffix(rest, "/runs")
	if !ok || jobName == "" || strings.Contains(jobName, "/") {
		http.NotFound(w, r)
		return
	}

	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "20"
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 200 {
		limit = 20
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	runs, err := h.queries.ListJobRuns(ctx, database.ListJobRunsParams{
		JobName: jobName,
		Limit:   int32(limit),
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("job_name", jobName).
			Str("action", "query_job_runs_failed").
			Msg("Failed to query job runs")
		http.Error(w, "Failed to query job runs", http.StatusInternalServerError)
		return
	}

	runResponses := make([]api.JobRunResponse, 0, len(runs))
	for _, run := range runs {
		runResponses = append(runResponses, api.JobRunResponse{
			ID:         run.ID.String(),
			JobName:    run.JobName,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Status:     string(run.Status),
			DurationMs: run.DurationMs,
			Error:      run.Error,
			Metadata:   run.Metadata,
		})
	}

	h.logger.Info().
		Str("action", "job_runs_response").
		Str("job_name", jobName).
		Int("limit", limit).
		Int("count", len(runResponses)).
		Msg("Returning job runs")

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(api.Response{
		Success: true,
		Data:    runResponses,
	}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
