package database

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/tenmatch/core/pkg/models"
)

const attemptColumns = `id, cycle_id, attempt_no, status, error, payload, tx_hash, created_at`

func scanAttempt(row pgx.Row) (models.ResolutionAttempt, error) {
	var a models.ResolutionAttempt
	var payload []byte
	err := row.Scan(
		&a.ID,
		&a.CycleID,
		&a.AttemptNo,
		&a.Status,
		&a.Error,
		&payload,
		&a.TxHash,
		&a.CreatedAt,
	)
	if err != nil {
		return a, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &a.Payload); err != nil {
			return a, err
		}
	}
	return a, nil
}

// NextAttemptNo returns the attempt counter a new resolution attempt for the
// cycle should carry. Counters start at 1 and never reuse a value.
func (q *Queries) NextAttemptNo(ctx context.Context, cycleID int64) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(attempt_no), 0) + 1 FROM resolution_attempts WHERE cycle_id = $1`,
		cycleID).Scan(&n)
	return n, err
}

// InsertResolutionAttemptParams records one submission attempt, successful
// or not, with the exact payload that was (or would have been) sent.
type InsertResolutionAttemptParams struct {
	CycleID   int64
	AttemptNo int32
	Status    models.AttemptStatus
	Error     *string
	Payload   []models.OutcomePair
	TxHash    *string
}

func (q *Queries) InsertResolutionAttempt(ctx context.Context, arg InsertResolutionAttemptParams) (models.ResolutionAttempt, error) {
	payload, err := json.Marshal(arg.Payload)
	if err != nil {
		return models.ResolutionAttempt{}, err
	}
	row := q.db.QueryRow(ctx,
		`INSERT INTO resolution_attempts (cycle_id, attempt_no, status, error, payload, tx_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, now())
		 RETURNING `+attemptColumns,
		arg.CycleID, arg.AttemptNo, arg.Status, arg.Error, payload, arg.TxHash)
	return scanAttempt(row)
}

// ListResolutionAttempts returns a cycle's attempt history, oldest first.
func (q *Queries) ListResolutionAttempts(ctx context.Context, cycleID int64) ([]models.ResolutionAttempt, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM resolution_attempts
		 WHERE cycle_id = $1
		 ORDER BY attempt_no`,
		cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []models.ResolutionAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
