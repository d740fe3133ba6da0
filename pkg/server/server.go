package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tenmatch/core/internal/config"
	"github.com/tenmatch/core/pkg/database"
	"github.com/tenmatch/core/pkg/database/pool"
	"github.com/tenmatch/core/pkg/handlers/cycles"
	"github.com/tenmatch/core/pkg/handlers/health"
	jobshandler "github.com/tenmatch/core/pkg/handlers/jobs"
	"github.com/tenmatch/core/pkg/jobs"
	"github.com/tenmatch/core/pkg/logger"
	"github.com/tenmatch/core/pkg/middleware"
)

// Server represents the status API server
type Server struct {
	router   *http.ServeMux
	port     string
	logger   *logger.Logger
	dbPool   *pgxpool.Pool
	queries  *database.Queries
	handlers struct {
		health *health.Handler
		jobs   *jobshandler.Handler
		cycles *cycles.Handler
	}
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	dbPool, err := pool.New(context.Background(), cfg.DatabaseURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test database connection with retry logic
	if err := testDatabaseConnection(dbPool, log); err != nil {
		dbPool.Close()
		return nil, err
	}

	queries := database.New(dbPool)

	// The API reports lock state through the same backend the cron process
	// acquires leases on.
	lockStore, err := jobs.NewLockStoreFromConfig(cfg, dbPool)
	if err != nil {
		dbPool.Close()
		return nil, err
	}

	server := &Server{
		router:  http.NewServeMux(),
		port:    cfg.Server.Port,
		logger:  log,
		dbPool:  dbPool,
		queries: queries,
	}

	server.handlers.health = health.NewHandler(dbPool, log)
	server.handlers.jobs = jobshandler.NewHandler(queries, lockStore, log)
	server.handlers.cycles = cycles.NewHandler(queries, log)

	server.setupRoutes()

	log.Info().
		Str("action", "db_connected").
		Msg("Database connection pool established")

	return server, nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", middleware.CORS(s.handlers.health.HealthCheck))

	// Simple root endpoint
	s.router.HandleFunc("/", middleware.CORS(func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprintf(w, "Tenmatch Core Service - OK"); err != nil {
			http.Error(w, "Failed to write response", http.StatusInternalServerError)
		}
	}))

	// Job status endpoints
	s.router.HandleFunc("/api/jobs", middleware.CORS(s.handlers.jobs.List))
	s.router.HandleFunc("/api/jobs/", middleware.CORS(s.handlers.jobs.Runs)) // handles /api/jobs/{name}/runs

	// Cycle status endpoints
	s.router.HandleFunc("/api/cycles", middleware.CORS(s.handlers.cycles.List))
	s.router.HandleFunc("/api/cycles/", middleware.CORS(s.handlers.cycles.Get)) // handles /api/cycles/{id}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().
		Str("action", "server_start").
		Str("port", s.port).
		Msg("Starting status API server")

	if err := http.ListenAndServe(":"+s.port, s.router); err != nil {
		return fmt.Errorf("server failed to start on port %s: %w", s.port, err)
	}

	return nil
}

// Close gracefully shuts down the server and closes database connections
func (s *Server) Close() {
	if s.dbPool != nil {
		s.dbPool.Close()
		s.logger.Info().Msg("Database connection pool closed")
	}
}

// testDatabaseConnection tests the database connection with retry logic
func testDatabaseConnection(dbPool *pgxpool.Pool, log *logger.Logger) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := dbPool.Ping(ctx)
		cancel()

		if err == nil {
			return nil
		}

		if i == maxRetries-1 {
			return fmt.Errorf("failed to ping database after %d retries: %w", maxRetries, err)
		}

		log.Warn().
			Err(err).
			Int("attempt", i+1).
			Str("action", "db_ping_retry").
			Msg("Retrying database connection")
		time.Sleep(2 * time.Second)
	}

	return nil
}
