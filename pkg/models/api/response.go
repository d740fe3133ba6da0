package api

import "time"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Database  string         `json:"database"`
	Pool      *PoolStatsInfo `json:"pool,omitempty"`
}

// PoolStatsInfo is a snapshot of database pool counters.
type PoolStatsInfo struct {
	AcquiredConns int32 `json:"acquired_conns"`
	IdleConns     int32 `json:"idle_conns"`
	TotalConns    int32 `json:"total_conns"`
	MaxConns      int32 `json:"max_conns"`
}

// JobStatusResponse summarizes one job's ledger history and current lock
// state for the operations dashboard.
type JobStatusResponse struct {
	JobName       string     `json:"job_name"`
	TotalRuns     int64      `json:"total_runs"`
	Completed     int64      `json:"completed"`
	Failed        int64      `json:"failed"`
	Skipped       int64      `json:"skipped"`
	LastStartedAt *time.Time `json:"last_started_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	AvgDurationMs *float64   `json:"avg_duration_ms,omitempty"`
	LockHeld      bool       `json:"lock_held"`
}

// JobRunResponse represents one ledger entry in API responses
type JobRunResponse struct {
	ID         string         `json:"id"`
	JobName    string         `json:"job_name"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Status     string         `json:"status"`
	DurationMs *int64         `json:"duration_ms,omitempty"`
	Error      *string        `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CycleResponse represents a contest cycle in API responses
type CycleResponse struct {
	ID              int64      `json:"id"`
	MatchIDs        []int64    `json:"match_ids"`
	BettingDeadline time.Time  `json:"betting_deadline"`
	State           string     `json:"state"`
	TxHash          *string    `json:"tx_hash,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ReadinessInfo mirrors the readiness evaluator's verdict for one cycle.
type ReadinessInfo struct {
	Ready         bool    `json:"ready"`
	FinishedCount int     `json:"finished_count"`
	CompleteCount int     `json:"complete_count"`
	Missing       []int64 `json:"missing,omitempty"`
}

// AttemptResponse represents one resolution submission in the audit trail.
// The full outcome payload stays in the database; the API reports the
// verdict and transaction reference only.
type AttemptResponse struct {
	AttemptNo int32     `json:"attempt_no"`
	Status    string    `json:"status"`
	TxHash    *string   `json:"tx_hash,omitempty"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CycleDetailResponse is a cycle with readiness and its attempt history
type CycleDetailResponse struct {
	CycleResponse
	Readiness ReadinessInfo     `json:"readiness"`
	Attempts  []AttemptResponse `json:"attempts"`
}

// Response represents a general API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
	Message string      `json:"message,omitempty"`
}
