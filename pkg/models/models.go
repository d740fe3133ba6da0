package models

import (
	"time"

	"github.com/google/uuid"
)

// CycleSize is the number of matches bound to every contest cycle. The
// on-chain contract registers exactly this many fixtures per cycle and the
// resolution payload must carry one outcome pair per slot.
const CycleSize = 10

// CycleState tracks the lifecycle of a daily contest cycle.
// Transitions are strictly forward: active -> ended -> resolved.
type CycleState string

const (
	CycleActive   CycleState = "active"
	CycleEnded    CycleState = "ended"
	CycleResolved CycleState = "resolved"
)

// Cycle is one day's contest instance, bound to exactly ten matches in
// contract order. State is written only by the resolution driver.
type Cycle struct {
	ID              int64      `json:"id"`
	MatchIDs        []int64    `json:"match_ids"`
	BettingDeadline time.Time  `json:"betting_deadline"`
	State           CycleState `json:"state"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	TxHash          *string    `json:"tx_hash,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// MatchStatus is the broadcast status of a fixture as reported by the
// results provider.
type MatchStatus string

const (
	MatchScheduled MatchStatus = "scheduled"
	MatchLive      MatchStatus = "live"
	MatchFinished  MatchStatus = "finished"
)

// Match holds the authoritative result data for one fixture. Scores stay
// null until the provider finalizes them; the outcome derivations stay null
// until the fixture-processing job computes them from the final score.
type Match struct {
	ID                int64          `json:"id"`
	Slug              string         `json:"slug"`
	HomeTeam          string         `json:"home_team"`
	AwayTeam          string         `json:"away_team"`
	KickoffAt         time.Time      `json:"kickoff_at"`
	Status            MatchStatus    `json:"status"`
	HomeScore         *int32         `json:"home_score,omitempty"`
	AwayScore         *int32         `json:"away_score,omitempty"`
	WinnerOutcome     *WinnerOutcome `json:"winner_outcome,omitempty"`
	TotalsOutcome     *TotalsOutcome `json:"totals_outcome,omitempty"`
	ResultProcessedAt *time.Time     `json:"result_processed_at,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// ResultState is the tri-state view of a match result used by readiness
// evaluation. It keeps "not yet known" distinct from "known but incomplete"
// so a missing score is never mistaken for a defaulted one.
type ResultState int

const (
	// ResultUnavailable means no terminal result exists yet (scheduled,
	// live, or the match row is missing entirely).
	ResultUnavailable ResultState = iota
	// ResultIncomplete means the match reached a terminal status but the
	// score or its derived outcomes are still missing.
	ResultIncomplete
	// ResultComplete means the match finished with a full score and both
	// outcome derivations present.
	ResultComplete
)

func (s ResultState) String() string {
	switch s {
	case ResultIncomplete:
		return "incomplete"
	case ResultComplete:
		return "complete"
	default:
		return "unavailable"
	}
}

// ResultState classifies the match per the tri-state above. A nil receiver
// counts as unavailable so callers can pass through repository misses.
func (m *Match) ResultState() ResultState {
	if m == nil {
		return ResultUnavailable
	}
	if m.Status != MatchFinished {
		return ResultUnavailable
	}
	if m.HomeScore == nil || m.AwayScore == nil || m.WinnerOutcome == nil || m.TotalsOutcome == nil {
		return ResultIncomplete
	}
	return ResultComplete
}

// Finished reports whether the fixture reached a terminal broadcast status.
func (m *Match) Finished() bool {
	return m != nil && m.Status == MatchFinished
}

// RunStatus is the terminal (or in-flight) status of one job run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// JobRun is one append-only ledger entry for a job execution. It is created
// when the run starts and finalized exactly once; retention pruning is the
// only deletion path.
type JobRun struct {
	ID         uuid.UUID      `json:"id"`
	JobName    string         `json:"job_name"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Status     RunStatus      `json:"status"`
	DurationMs *int64         `json:"duration_ms,omitempty"`
	Error      *string        `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// JobLock is a TTL lease on a job name. At most one unexpired lease exists
// per resource; an expired lease is claimable by any later acquirer.
type JobLock struct {
	Resource   string    `json:"resource"`
	HolderID   uuid.UUID `json:"holder_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// AttemptStatus is the recorded outcome of one resolution submission.
type AttemptStatus string

const (
	// AttemptSucceeded covers both an accepted transaction and an
	// idempotent "already resolved" acknowledgement from the chain.
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
	// AttemptAborted marks a consistency failure caught mid-run (for example
	// a not-set outcome on a ready-flagged cycle); flagged for review.
	AttemptAborted AttemptStatus = "aborted"
)

// ResolutionAttempt is the audit record of one submission try for a cycle.
type ResolutionAttempt struct {
	ID        int64         `json:"id"`
	CycleID   int64         `json:"cycle_id"`
	AttemptNo int32         `json:"attempt_no"`
	Status    AttemptStatus `json:"status"`
	Error     *string       `json:"error,omitempty"`
	Payload   []OutcomePair `json:"payload"`
	TxHash    *string       `json:"tx_hash,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
