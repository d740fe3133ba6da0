package cycles

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
	"github.com/tenmatch/core/pkg/models"
	"github.com/tenmatch/core/pkg/models/api"
	"github.com/tenmatch/core/pkg/services"
)

// Handler handles cycle status requests
type Handler struct {
	queries   *database.Queries
	evaluator *services.ReadinessEvaluator
	logger    *logger.Logger
}

// NewHandler creates a new cycles handler
func NewHandler(queries *database.Queries, log *logger.Logger) *Handler {
	return &Handler{
		queries:   queries,
		evaluator: services.NewReadinessEvaluator(queries),
		logger:    log,
	}
}

// List handles the /api/cycles endpoint
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	switch state {
	case "", "active", "ended", "resolved":
	default:
		http.Error(w, "Invalid state filter", http.StatusBadRequest)
		return
	}

	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "20"
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	cycles, err := h.queries.ListRecentCycles(ctx, database.ListRecentCyclesParams{
		State: state,
		Limit: int32(limit),
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "query_cycles_failed").
			Msg("Failed to query cycles")
		http.Error(w, "Failed to query cycles", http.StatusInternalServerError)
		return
	}

	cycleResponses := make([]api.CycleResponse, 0, len(cycles))
	for _, c := range cycles {
		cycleResponses = append(cycleResponses, toCycleResponse(c))
	}

	h.logger.Info().
		Str("action", "cycles_response").
		Str("state", state).
		Int("limit", limit).
		Int("count", len(cycleResponses)).
		Msg("Returning cycles")

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(api.Response{
		Success: true,
		Data:    cycleResponses,
	}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// Get handles GET /api/cycles/{id} with readiness and the attempt history.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/cycles/")
	cycleID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid cycle ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	cycle, err := h.queries.GetCycle(ctx, cycleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "Cycle not found", http.StatusNotFound)
			return
		}
		h.logger.Error().
			Err(err).
			Int64("cycle_id", cycleID).
			Str("action", "query_cycle_failed").
			Msg("Failed to query cycle")
		http.Error(w, "Failed to query cycle", http.StatusInternalServerError)
		return
	}

	detail := api.CycleDetailResponse{CycleResponse: toCycleResponse(cycle)}

	// Readiness of a resolved cycle is moot but still informative; an
	// evaluation error must not hide the cycle itself.
	readiness, err := h.evaluator.Evaluate(ctx, &cycle)
	if err != nil {
		h.logger.Warn().
			Err(err).
			Int64("cycle_id", cycleID).
			Str("action", "readiness_eval_failed").
			Msg("Failed to evaluate cycle readiness")
	} else {
		detail.Readiness = api.ReadinessInfo{
			Ready:         readiness.Ready,
			FinishedCount: readiness.FinishedCount,
			CompleteCount: readiness.CompleteCount,
			Missing:       readiness.Missing,
		}
	}

	attempts, err := h.queries.ListResolutionAttempts(ctx, cycleID)
	if err != nil {
		h.logger.Error().
			Err(err).
			Int64("cycle_id", cycleID).
			Str("action", "query_attempts_failed").
			Msg("Failed to query resolution attempts")
		http.Error(w, "Failed to query resolution attempts", http.StatusInternalServerError)
		return
	}

	detail.Attempts = make([]api.AttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		detail.Attempts = append(detail.Attempts, api.AttemptResponse{
			AttemptNo: a.AttemptNo,
			Status:    string(a.Status),
			TxHash:    a.TxHash,
			Error:     a.Error,
			CreatedAt: a.CreatedAt,
		})
	}

	h.logger.Info().
		Str("action", "cycle_detail_response").
		Int64("cycle_id", cycleID).
		Str("state", string(cycle.State)).
		Bool("ready", detail.Readiness.Ready).
		Int("attempts", len(detail.Attempts)).
		Msg("Returning cycle detail")

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(api.Response{
		Success: true,
		Data:    detail,
	}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func toCycleResponse(c models.Cycle) api.CycleResponse {
	return api.CycleResponse{
		ID:              c.ID,
		MatchIDs:        c.MatchIDs,
		BettingDeadline: c.BettingDeadline,
		State:           string(c.State),
		TxHash:          c.TxHash,
		ResolvedAt:      c.ResolvedAt,
		CreatedAt:       c.CreatedAt,
	}
}
