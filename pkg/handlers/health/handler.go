package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tenmatch/core/pkg/database/pool"
	"github.com/tenmatch/core/pkg/logger"
	"github.com/tenmatch/core/pkg/models/api"
)

// Handler handles health check requests
type Handler struct {
	dbPool *pgxpool.Pool
	logger *logger.Logger
}

// NewHandler creates a new health handler
func NewHandler(dbPool *pgxpool.Pool, log *logger.Logger) *Handler {
	return &Handler{
		dbPool: dbPool,
		logger: log,
	}
}

// HealthCheck handles the /health endpoint. It pings the database so load
// balancers pull an instance whose pool has gone bad.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	dbStatus := "ok"
	statusCode := http.StatusOK
	if err := h.dbPool.Ping(ctx); err != nil {
		status = "degraded"
		dbStatus = "unreachable"
		statusCode = http.StatusServiceUnavailable

		h.logger.Error().
			Err(err).
			Str("action", "health_db_ping_failed").
			Msg("Database ping failed during health check")
	}

	stats := pool.GetStats(h.dbPool)
	response := api.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Database:  dbStatus,
		Pool: &api.PoolStatsInfo{
			AcquiredConns: stats.AcquiredConns,
			IdleConns:     stats.IdleConns,
			TotalConns:    stats.TotalConns,
			MaxConns:      stats.MaxConns,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "health_check_failed").
			Str("endpoint", "/health").
			Msg("Failed to encode health response")
		return
	}

	h.logger.Debug().
		Str("action", "health_check").
		Str("endpoint", "/health").
		Str("method", r.Method).
		Str("remote_addr", r.RemoteAddr).
		Int("status_code", statusCode).
		Dur("duration", time.Since(start)).
		Msg("Health check completed")
}
