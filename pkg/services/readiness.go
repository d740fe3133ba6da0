package services

import (
	"context"
	"fmt"

	"github.com/tenmatch/core/pkg/database"
	"github.com/tenmatch/core/pkg/models"
)

type matchReader interface {
	ListMatchesByIDs(ctx context.Context, ids []int64) ([]models.Match, error)
}

// Readiness summarizes whether a cycle can be settled. The two counts stay
// separate because a fixture can reach terminal broadcast status before the
// provider finalizes its score; only the complete count proves the payload
// would carry no defaulted outcome.
type Readiness struct {
	Ready         bool
	FinishedCount int
	CompleteCount int
	Missing       []int64
}

// ReadinessEvaluator checks a cycle's ten matches against the two-part
// completeness rule.
type ReadinessEvaluator struct {
	db matchReader
}

func NewReadinessEvaluator(db *database.Queries) *ReadinessEvaluator {
	return &ReadinessEvaluator{db: db}
}

// Evaluate loads the cycle's matches and classifies each through the
// tri-state result view. A match row that is missing entirely counts as
// unavailable, exactly like one that has not finished.
func (e *ReadinessEvaluator) Evaluate(ctx context.Context, cycle *models.Cycle) (Readiness, error) {
	if len(cycle.MatchIDs) != models.CycleSize {
		return Readiness{}, NewResolutionError(KindInvariant, cycle.ID,
			fmt.Errorf("cycle carries %d match ids, want %d", len(cycle.MatchIDs), models.CycleSize))
	}

	matches, err := e.db.ListMatchesByIDs(ctx, cycle.MatchIDs)
	if err != nil {
		return Readiness{}, fmt.Errorf("failed to load matches for cycle %d: %w", cycle.ID, err)
	}

	byID := make(map[int64]*models.Match, len(matches))
	for i := range matches {
		byID[matches[i].ID] = &matches[i]
	}

	var r Readiness
	for _, id := range cycle.MatchIDs {
		m := byID[id]
		if m.Finished() {
			r.FinishedCount++
		}
		if m.ResultState() == models.ResultComplete {
			r.CompleteCount++
		} else {
			r.Missing = append(r.Missing, id)
		}
	}

	r.Ready = r.FinishedCount == models.CycleSize && r.CompleteCount == models.CycleSize
	return r, nil
}
