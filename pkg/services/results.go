package services

import (
	"context"
	"fmt"

	"github.com/tenmatch/core/pkg/database"
	"github.com/tenmatch/core/pkg/logger"
	"github.com/tenmatch/core/pkg/models"
	"github.com/tenmatch/core/pkg/utils"
)

type resultsStore interface {
	ListMatchIDsPendingResults(ctx context.Context) ([]int64, error)
	UpsertMatchResult(ctx context.Context, arg database.UpsertMatchResultParams) (int64, error)
}

// ResultsService pulls provider snapshots for every match an unresolved
// cycle still needs and persists status and scores.
type ResultsService struct {
	db       resultsStore
	provider ResultProvider
	logger   *logger.Logger
}

func NewResultsService(db *database.Queries, provider ResultProvider) *ResultsService {
	return &ResultsService{
		db:       db,
		provider: provider,
		logger:   logger.New("results-service"),
	}
}

func (s *ResultsService) SyncResults(ctx context.Context) error {
	ids, err := s.db.ListMatchIDsPendingResults(ctx)
	if err != nil {
		return fmt.Errorf("failed to list matches pending results: %w", err)
	}
	if len(ids) == 0 {
		s.logger.Info().
			Str("action", "nothing_pending").
			Msg("No matches awaiting results")
		return nil
	}

	var updated, unknown, failed int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := s.provider.GetMatchResult(ctx, id)
		if err != nil {
			failed++
			s.logger.Warn().
				Err(err).
				Int64("match_id", id).
				Str("action", "fetch_failed").
				Msg("Failed to fetch match result")
			continue
		}
		if result == nil {
			unknown++
			continue
		}

		if err := validateSnapshot(result); err != nil {
			failed++
			s.logger.Warn().
				Err(err).
				Int64("match_id", id).
				Str("action", "snapshot_rejected").
				Msg("Provider snapshot failed validation")
			continue
		}

		rows, err := s.db.UpsertMatchResult(ctx, database.UpsertMatchResultParams{
			ID:        id,
			Slug:      utils.GenerateMatchSlug(result.HomeTeam, result.AwayTeam, result.KickoffAt),
			HomeTeam:  result.HomeTeam,
			AwayTeam:  result.AwayTeam,
			KickoffAt: result.KickoffAt,
			Status:    result.Status,
			HomeScore: result.HomeScore,
			AwayScore: result.AwayScore,
		})
		if err != nil {
			failed++
			s.logger.Warn().
				Err(err).
				Int64("match_id", id).
				Str("action", "upsert_failed").
				Msg("Failed to store match result")
			continue
		}
		if rows > 0 {
			updated++
		}
	}

	s.logger.Info().
		Int("pending", len(ids)).
		Int("updated", updated).
		Int("unknown", unknown).
		Int("failed", failed).
		Str("action", "results_synced").
		Msg("Results sync completed")

	if failed > 0 && failed == len(ids) {
		return fmt.Errorf("results sync failed for all %d matches", failed)
	}
	return nil
}

// validateSnapshot rejects malformed provider data before it reaches
// storage. A finished fixture must carry both scores and neither may be
// negative.
func validateSnapshot(r *ProviderMatchResult) error {
	if r.HomeTeam == "" || r.AwayTeam == "" {
		return NewResolutionError(KindInvariant, 0, fmt.Errorf("match %d missing team names", r.MatchID))
	}
	if r.HomeScore != nil && *r.HomeScore < 0 {
		return NewResolutionError(KindInvariant, 0, fmt.Errorf("match %d has negative home score %d", r.MatchID, *r.HomeScore))
	}
	if r.AwayScore != nil && *r.AwayScore < 0 {
		return NewResolutionError(KindInvariant, 0, fmt.Errorf("match %d has negative away score %d", r.MatchID, *r.AwayScore))
	}
	if r.Status == models.MatchFinished && (r.HomeScore == nil || r.AwayScore == nil) {
		return NewResolutionError(KindInvariant, 0, fmt.Errorf("match %d finished without full score", r.MatchID))
	}
	return nil
}
