package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tenmatch/core/pkg/models"
)

const jobRunColumns = `id, job_name, started_at, finished_at, status, duration_ms, error, metadata`

func scanJobRun(row pgx.Row) (models.JobRun, error) {
	var r models.JobRun
	var metadata []byte
	err := row.Scan(
		&r.ID,
		&r.JobName,
		&r.StartedAt,
		&r.FinishedAt,
		&r.Status,
		&r.DurationMs,
		&r.Error,
		&metadata,
	)
	if err != nil {
		return r, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
			return r, err
		}
	}
	return r, nil
}

// InsertJobRunParams seeds a ledger row. FinishedAt and friends stay nil for
// a run still in flight; skipped runs arrive already finalized.
type InsertJobRunParams struct {
	ID         uuid.UUID
	JobName    string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     models.RunStatus
	DurationMs *int64
	Error      *string
	Metadata   map[string]any
}

func (q *Queries) InsertJobRun(ctx context.Context, arg InsertJobRunParams) error {
	metadata, err := json.Marshal(arg.Metadata)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx,
		`INSERT INTO job_runs (id, job_name, started_at, finished_at, status, duration_ms, error, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)`,
		arg.ID, arg.JobName, arg.StartedAt, arg.FinishedAt, arg.Status, arg.DurationMs, arg.Error, metadata)
	return err
}

// FinishJobRunParams finalizes a running ledger row.
type FinishJobRunParams struct {
	ID         uuid.UUID
	FinishedAt time.Time
	Status     models.RunStatus
	DurationMs int64
	Error      *string
	Metadata   map[string]any
}

func (q *Queries) FinishJobRun(ctx context.Context, arg FinishJobRunParams) error {
	metadata, err := json.Marshal(arg.Metadata)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx,
		`UPDATE job_runs
		 SET finished_at = $2, status = $3, duration_ms = $4, error = $5, metadata = $6::jsonb
		 WHERE id = $1`,
		arg.ID, arg.FinishedAt, arg.Status, arg.DurationMs, arg.Error, metadata)
	return err
}

// GetLatestCompletedRun returns the most recent completed run of a job.
// Callers use pgx.ErrNoRows to detect a job that has never completed.
func (q *Queries) GetLatestCompletedRun(ctx context.Context, jobName string) (models.JobRun, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+jobRunColumns+`
		 FROM job_runs
		 WHERE job_name = $1 AND status = 'completed'
		 ORDER BY finished_at DESC
		 LIMIT 1`,
		jobName)
	return scanJobRun(row)
}

// ListJobRunsParams pages the run history of one job, newest first.
type ListJobRunsParams struct {
	JobName string
	Limit   int32
}

func (q *Queries) ListJobRuns(ctx context.Context, arg ListJobRunsParams) ([]models.JobRun, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+jobRunColumns+`
		 FROM job_runs
		 WHERE job_name = $1
		 ORDER BY started_at DESC
		 LIMIT $2`,
		arg.JobName, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.JobRun
	for rows.Next() {
		r, err := scanJobRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// JobStatsRow aggregates the ledger per job for the status API.
type JobStatsRow struct {
	JobName       string
	TotalRuns     int64
	Completed     int64
	Failed        int64
	Skipped       int64
	LastStartedAt *time.Time
	AvgDurationMs *float64
}

func (q *Queries) ListJobStats(ctx context.Context) ([]JobStatsRow, error) {
	rows, err := q.db.Query(ctx,
		`SELECT job_name,
		        count(*) AS total_runs,
		        count(*) FILTER (WHERE status = 'completed') AS completed,
		        count(*) FILTER (WHERE status = 'failed') AS failed,
		        count(*) FILTER (WHERE status = 'skipped') AS skipped,
		        max(started_at) AS last_started_at,
		        avg(duration_ms) FILTER (WHERE status = 'completed') AS avg_duration_ms
		 FROM job_runs
		 GROUP BY job_name
		 ORDER BY job_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []JobStatsRow
	for rows.Next() {
		var s JobStatsRow
		if err := rows.Scan(&s.JobName, &s.TotalRuns, &s.Completed, &s.Failed, &s.Skipped, &s.LastStartedAt, &s.AvgDurationMs); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// PruneJobRuns deletes ledger rows started before the cutoff.
func (q *Queries) PruneJobRuns(ctx context.Context, before time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM job_runs WHERE started_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
