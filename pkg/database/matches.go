package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tenmatch/core/pkg/models"
)

const matchColumns = `id, slug, home_team, away_team, kickoff_at, status, home_score, away_score, winner_outcome, totals_outcome, result_processed_at, updated_at`

func scanMatch(row pgx.Row) (models.Match, error) {
	var m models.Match
	var winner, totals *int16
	err := row.Scan(
		&m.ID,
		&m.Slug,
		&m.HomeTeam,
		&m.AwayTeam,
		&m.KickoffAt,
		&m.Status,
		&m.HomeScore,
		&m.AwayScore,
		&winner,
		&totals,
		&m.ResultProcessedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return m, err
	}
	m.WinnerOutcome = int16ToWinner(winner)
	m.TotalsOutcome = int16ToTotals(totals)
	return m, nil
}

func int16ToWinner(v *int16) *models.WinnerOutcome {
	if v == nil {
		return nil
	}
	w := models.WinnerOutcome(*v)
	return &w
}

func int16ToTotals(v *int16) *models.TotalsOutcome {
	if v == nil {
		return nil
	}
	t := models.TotalsOutcome(*v)
	return &t
}

// GetMatch fetches one match by id.
func (q *Queries) GetMatch(ctx context.Context, id int64) (models.Match, error) {
	row := q.db.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
	return scanMatch(row)
}

// ListMatchesByIDs returns the match rows for the given ids. Missing rows
// are simply absent from the result; callers treat them as unavailable.
func (q *Queries) ListMatchesByIDs(ctx context.Context, ids []int64) ([]models.Match, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ListMatchIDsPendingResults returns every match id referenced by an
// unresolved cycle that does not yet carry a processed result. Ids without a
// match row at all are included so the first provider fetch can create them.
func (q *Queries) ListMatchIDsPendingResults(ctx context.Context) ([]int64, error) {
	rows, err := q.db.Query(ctx,
		`SELECT DISTINCT mid
		 FROM cycles c, unnest(c.match_ids) AS mid
		 WHERE c.state <> 'resolved'
		   AND NOT EXISTS (
		     SELECT 1 FROM matches m
		     WHERE m.id = mid AND m.result_processed_at IS NOT NULL
		   )
		 ORDER BY mid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertMatchResultParams carries one provider snapshot for a fixture.
type UpsertMatchResultParams struct {
	ID        int64
	Slug      string
	HomeTeam  string
	AwayTeam  string
	KickoffAt time.Time
	Status    models.MatchStatus
	HomeScore *int32
	AwayScore *int32
}

// UpsertMatchResult writes a provider snapshot. Two guards protect against
// lost updates between overlapping runs: a processed match is frozen, and a
// finished status never downgrades to live or scheduled.
func (q *Queries) UpsertMatchResult(ctx context.Context, arg UpsertMatchResultParams) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`INSERT INTO matches (id, slug, home_team, away_team, kickoff_at, status, home_score, away_score, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (id) DO UPDATE
		 SET slug = EXCLUDED.slug,
		     home_team = EXCLUDED.home_team,
		     away_team = EXCLUDED.away_team,
		     kickoff_at = EXCLUDED.kickoff_at,
		     status = EXCLUDED.status,
		     home_score = EXCLUDED.home_score,
		     away_score = EXCLUDED.away_score,
		     updated_at = now()
		 WHERE matches.result_processed_at IS NULL
		   AND (matches.status <> 'finished' OR EXCLUDED.status = 'finished')`,
		arg.ID, arg.Slug, arg.HomeTeam, arg.AwayTeam, arg.KickoffAt, arg.Status, arg.HomeScore, arg.AwayScore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListUnprocessedFinishedMatches returns finished matches with final scores
// whose outcome derivations have not been computed yet.
func (q *Queries) ListUnprocessedFinishedMatches(ctx context.Context, limit int32) ([]models.Match, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+matchColumns+`
		 FROM matches
		 WHERE status = 'finished'
		   AND home_score IS NOT NULL
		   AND away_score IS NOT NULL
		   AND result_processed_at IS NULL
		 ORDER BY kickoff_at
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// SetMatchDerivedOutcomesParams stores both contract derivations for a match.
type SetMatchDerivedOutcomesParams struct {
	ID     int64
	Winner models.WinnerOutcome
	Totals models.TotalsOutcome
}

// SetMatchDerivedOutcomes stamps the derived outcomes exactly once. The
// guard keeps concurrent fixture-processing runs from double-writing.
func (q *Queries) SetMatchDerivedOutcomes(ctx context.Context, arg SetMatchDerivedOutcomesParams) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE matches
		 SET winner_outcome = $2, totals_outcome = $3, result_processed_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'finished' AND result_processed_at IS NULL`,
		arg.ID, int16(arg.Winner), int16(arg.Totals))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
