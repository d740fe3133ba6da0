package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tenmatch/core/pkg/models"
)

const cycleColumns = `id, match_ids, betting_deadline, state, resolved_at, tx_hash, created_at, updated_at`

func scanCycle(row pgx.Row) (models.Cycle, error) {
	var c models.Cycle
	err := row.Scan(
		&c.ID,
		&c.MatchIDs,
		&c.BettingDeadline,
		&c.State,
		&c.ResolvedAt,
		&c.TxHash,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

// GetCycle fetches one cycle by id.
func (q *Queries) GetCycle(ctx context.Context, id int64) (models.Cycle, error) {
	row := q.db.QueryRow(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE id = $1`, id)
	return scanCycle(row)
}

// ListDueCyclesParams bounds the per-run resolution batch.
type ListDueCyclesParams struct {
	Deadline time.Time
	Limit    int32
}

// ListDueCycles returns unresolved cycles whose betting deadline has passed,
// oldest first, capped at Limit.
func (q *Queries) ListDueCycles(ctx context.Context, arg ListDueCyclesParams) ([]models.Cycle, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+cycleColumns+`
		 FROM cycles
		 WHERE state <> 'resolved' AND betting_deadline <= $1
		 ORDER BY id
		 LIMIT $2`,
		arg.Deadline, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []models.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// ListRecentCyclesParams filters the status API listing. An empty State
// matches all states.
type ListRecentCyclesParams struct {
	State string
	Limit int32
}

// ListRecentCycles returns the newest cycles for the status API.
func (q *Queries) ListRecentCycles(ctx context.Context, arg ListRecentCyclesParams) ([]models.Cycle, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+cycleColumns+`
		 FROM cycles
		 WHERE ($1 = '' OR state = $1)
		 ORDER BY id DESC
		 LIMIT $2`,
		arg.State, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []models.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// MarkCycleEnded transitions a cycle from active to ended. The state guard
// makes the write a no-op when another run already advanced the cycle.
func (q *Queries) MarkCycleEnded(ctx context.Context, id int64) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE cycles SET state = 'ended', updated_at = now()
		 WHERE id = $1 AND state = 'active'`,
		id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkCycleResolvedParams finalizes a cycle after an accepted submission.
// TxHash stays nil when the chain acknowledged the cycle as already resolved
// without returning a transaction.
type MarkCycleResolvedParams struct {
	ID     int64
	TxHash *string
}

// MarkCycleResolved transitions a cycle to resolved and stamps resolved_at.
// Guarded so a resolved cycle is never rewritten; returns affected rows so
// callers can distinguish a fresh transition from an idempotent repeat.
func (q *Queries) MarkCycleResolved(ctx context.Context, arg MarkCycleResolvedParams) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE cycles
		 SET state = 'resolved', resolved_at = now(), tx_hash = $2, updated_at = now()
		 WHERE id = $1 AND state <> 'resolved'`,
		arg.ID, arg.TxHash)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
