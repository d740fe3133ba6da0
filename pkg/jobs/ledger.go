package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tenmatch/core/pkg/database"
	"github.com/tenmatch/core/pkg/models"
)

type ledgerStore interface {
	InsertJobRun(ctx context.Context, arg database.InsertJobRunParams) error
	FinishJobRun(ctx context.Context, arg database.FinishJobRunParams) error
	GetLatestCompletedRun(ctx context.Context, jobName string) (models.JobRun, error)
	PruneJobRuns(ctx context.Context, before time.Time) (int64, error)
}

// ExecutionLedger records every coordinated run: created when the run
// starts, finalized exactly once, deleted only by retention pruning.
// Dependency freshness checks read nothing but this record.
type ExecutionLedger struct {
	db ledgerStore
}

func NewExecutionLedger(db *database.Queries) *ExecutionLedger {
	return &ExecutionLedger{db: db}
}

// Begin inserts a running row for the job and returns it.
func (l *ExecutionLedger) Begin(ctx context.Context, jobName string) (*models.JobRun, error) {
	run := &models.JobRun{
		ID:        uuid.New(),
		JobName:   jobName,
		StartedAt: time.Now().UTC(),
		Status:    models.RunRunning,
	}
	err := l.db.InsertJobRun(ctx, database.InsertJobRunParams{
		ID:        run.ID,
		JobName:   run.JobName,
		StartedAt: run.StartedAt,
		Status:    run.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin ledger run for %s: %w", jobName, err)
	}
	return run, nil
}

// Complete finalizes a running row as completed.
func (l *ExecutionLedger) Complete(ctx context.Context, run *models.JobRun, metadata map[string]any) error {
	return l.finish(ctx, run, models.RunCompleted, nil, metadata)
}

// Fail finalizes a running row as failed, keeping the error message.
func (l *ExecutionLedger) Fail(ctx context.Context, run *models.JobRun, runErr error, metadata map[string]any) error {
	return l.finish(ctx, run, models.RunFailed, runErr, metadata)
}

func (l *ExecutionLedger) finish(ctx context.Context, run *models.JobRun, status models.RunStatus, runErr error, metadata map[string]any) error {
	finishedAt := time.Now().UTC()
	durationMs := finishedAt.Sub(run.StartedAt).Milliseconds()

	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}

	err := l.db.FinishJobRun(ctx, database.FinishJobRunParams{
		ID:         run.ID,
		FinishedAt: finishedAt,
		Status:     status,
		DurationMs: durationMs,
		Error:      errMsg,
		Metadata:   metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to finalize ledger run %s: %w", run.ID, err)
	}

	run.FinishedAt = &finishedAt
	run.Status = status
	run.DurationMs = &durationMs
	run.Error = errMsg
	run.Metadata = metadata
	return nil
}

// RecordSkip inserts an already-finalized skipped row carrying the reason.
func (l *ExecutionLedger) RecordSkip(ctx context.Context, jobName, reason string) (*models.JobRun, error) {
	now := time.Now().UTC()
	var durationMs int64
	run := &models.JobRun{
		ID:         uuid.New(),
		JobName:    jobName,
		StartedAt:  now,
		FinishedAt: &now,
		Status:     models.RunSkipped,
		DurationMs: &durationMs,
		Metadata:   map[string]any{"reason": reason},
	}
	err := l.db.InsertJobRun(ctx, database.InsertJobRunParams{
		ID:         run.ID,
		JobName:    run.JobName,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Status:     run.Status,
		DurationMs: run.DurationMs,
		Metadata:   run.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record skip for %s: %w", jobName, err)
	}
	return run, nil
}

// LatestCompleted returns the most recent completed run of a job, or nil
// when the job has never completed.
func (l *ExecutionLedger) LatestCompleted(ctx context.Context, jobName string) (*models.JobRun, error) {
	run, err := l.db.GetLatestCompletedRun(ctx, jobName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest completed run for %s: %w", jobName, err)
	}
	return &run, nil
}

// Prune deletes runs started before the cutoff and returns how many went.
func (l *ExecutionLedger) Prune(ctx context.Context, before time.Time) (int64, error) {
	return l.db.PruneJobRuns(ctx, before)
}
