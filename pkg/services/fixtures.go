package services

import (
	"context"
	"fmt"

	"github.com/tenmatch/core/pkg/database"
	"github.com/tenmatch/core/pkg/logger"
	"github.com/tenmatch/core/pkg/models"
)

type fixturesStore interface {
	ListUnprocessedFinishedMatches(ctx context.Context, limit int32) ([]models.Match, error)
	SetMatchDerivedOutcomes(ctx context.Context, arg database.SetMatchDerivedOutcomesParams) (int64, error)
}

const fixturesBatchLimit = 200

// FixturesService derives both contract outcomes for finished fixtures and
// stamps each match processed exactly once. Readiness evaluation only counts
// a match once this stamp exists.
type FixturesService struct {
	db     fixturesStore
	logger *logger.Logger
}

func NewFixturesService(db *database.Queries) *FixturesService {
	return &FixturesService{
		db:     db,
		logger: logger.New("fixtures-service"),
	}
}

func (s *FixturesService) ProcessFinishedFixtures(ctx context.Context) error {
	matches, err := s.db.ListUnprocessedFinishedMatches(ctx, fixturesBatchLimit)
	if err != nil {
		return fmt.Errorf("failed to list unprocessed fixtures: %w", err)
	}
	if len(matches) == 0 {
		return nil
	}

	var processed, skipped int
	for i := range matches {
		m := &matches[i]
		if err := ctx.Err(); err != nil {
			return err
		}

		if m.HomeScore == nil || m.AwayScore == nil {
			skipped++
			continue
		}
		if *m.HomeScore < 0 || *m.AwayScore < 0 {
			skipped++
			s.logger.Warn().
				Int64("match_id", m.ID).
				Int32("home_score", *m.HomeScore).
				Int32("away_score", *m.AwayScore).
				Str("action", "malformed_score").
				Msg("Refusing to derive outcomes from malformed score")
			continue
		}

		winner, totals := MapOutcome(*m.HomeScore, *m.AwayScore)
		rows, err := s.db.SetMatchDerivedOutcomes(ctx, database.SetMatchDerivedOutcomesParams{
			ID:     m.ID,
			Winner: winner,
			Totals: totals,
		})
		if err != nil {
			return fmt.Errorf("failed to store outcomes for match %d: %w", m.ID, err)
		}
		if rows == 0 {
			// An overlapping run processed it first.
			skipped++
			continue
		}
		processed++
	}

	s.logger.Info().
		Int("processed", processed).
		Int("skipped", skipped).
		Str("action", "fixtures_processed").
		Msg("Finished fixtures processed")
	return nil
}
