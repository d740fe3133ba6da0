package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tenmatch/core/pkg/database"
	"github.com/tenmatch/core/pkg/logger"
	"github.com/tenmatch/core/pkg/models"
)

type fakeFixturesStore struct {
	unprocessed []models.Match
	derived     []database.SetMatchDerivedOutcomesParams
	deriveErr   error
	deriveRows  int64
}

func (f *fakeFixturesStore) ListUnprocessedFinishedMatches(context.Context, int32) ([]models.Match, error) {
	return f.unprocessed, nil
}

func (f *fakeFixturesStore) SetMatchDerivedOutcomes(_ context.Context, arg database.SetMatchDerivedOutcomesParams) (int64, error) {
	if f.deriveErr != nil {
		return 0, f.deriveErr
	}
	f.derived = append(f.derived, arg)
	return f.deriveRows, nil
}

func newTestFixturesService(store *fakeFixturesStore) *FixturesService {
	return &FixturesService{db: store, logger: logger.New("test")}
}

func finishedMatch(id int64, home, away int32) models.Match {
	return models.Match{
		ID:        id,
		Status:    models.MatchFinished,
		HomeScore: int32ptr(home),
		AwayScore: int32ptr(away),
	}
}

func TestProcessFinishedFixtures_DerivesBothOutcomes(t *testing.T) {
	store := &fakeFixturesStore{
		unprocessed: []models.Match{
			finishedMatch(1, 2, 1),
			finishedMatch(2, 1, 1),
			finishedMatch(3, 0, 4),
		},
		deriveRows: 1,
	}

	svc := newTestFixturesService(store)
	if err := svc.ProcessFinishedFixtures(context.Background()); err != nil {
		t.Fatalf("ProcessFinishedFixtures() error = %v", err)
	}
	if len(store.derived) != 3 {
		t.Fatalf("Expected 3 matches derived, got %d", len(store.derived))
	}

	want := []struct {
		id     int64
		winner models.WinnerOutcome
		totals models.TotalsOutcome
	}{
		{1, models.WinnerHome, models.TotalsOver},
		{2, models.WinnerDraw, models.TotalsUnder},
		{3, models.WinnerAway, models.TotalsOver},
	}
	for i, w := range want {
		got := store.derived[i]
		if got.ID != w.id {
			t.Errorf("Row %d: expected match %d, got %d", i, w.id, got.ID)
		}
		if got.Winner != w.winner {
			t.Errorf("Match %d: expected winner %v, got %v", w.id, w.winner, got.Winner)
		}
		if got.Totals != w.totals {
			t.Errorf("Match %d: expected totals %v, got %v", w.id, w.totals, got.Totals)
		}
	}
}

func TestProcessFinishedFixtures_SkipsMissingScores(t *testing.T) {
	missing := finishedMatch(7, 0, 0)
	missing.AwayScore = nil
	store := &fakeFixturesStore{
		unprocessed: []models.Match{missing, finishedMatch(8, 1, 0)},
		deriveRows:  1,
	}

	svc := newTestFixturesService(store)
	if err := svc.ProcessFinishedFixtures(context.Background()); err != nil {
		t.Fatalf("ProcessFinishedFixtures() error = %v", err)
	}
	if len(store.derived) != 1 {
		t.Fatalf("Expected only the scored match derived, got %d", len(store.derived))
	}
	if store.derived[0].ID != 8 {
		t.Errorf("Expected match 8, got %d", store.derived[0].ID)
	}
}

func TestProcessFinishedFixtures_SkipsMalformedScores(t *testing.T) {
	store := &fakeFixturesStore{
		unprocessed: []models.Match{finishedMatch(9, -1, 2)},
		deriveRows:  1,
	}

	svc := newTestFixturesService(store)
	if err := svc.ProcessFinishedFixtures(context.Background()); err != nil {
		t.Fatalf("ProcessFinishedFixtures() error = %v", err)
	}
	if len(store.derived) != 0 {
		t.Errorf("Expected no derivations from a malformed score, got %d", len(store.derived))
	}
}

func TestProcessFinishedFixtures_ConcurrentRunAlreadyStamped(t *testing.T) {
	// Zero affected rows means an overlapping run got there first; that is a
	// skip, not an error.
	store := &fakeFixturesStore{
		unprocessed: []models.Match{finishedMatch(10, 1, 1)},
		deriveRows:  0,
	}

	svc := newTestFixturesService(store)
	if err := svc.ProcessFinishedFixtures(context.Background()); err != nil {
		t.Fatalf("ProcessFinishedFixtures() error = %v", err)
	}
}

func TestProcessFinishedFixtures_StoreErrorPropagates(t *testing.T) {
	store := &fakeFixturesStore{
		unprocessed: []models.Match{finishedMatch(11, 3, 0)},
		deriveErr:   errors.New("connection reset"),
	}

	svc := newTestFixturesService(store)
	err := svc.ProcessFinishedFixtures(context.Background())
	if err == nil {
		t.Fatal("Expected store error to propagate")
	}
	if !errors.Is(err, store.deriveErr) {
		t.Errorf("Expected wrapped store error, got %v", err)
	}
}

func TestProcessFinishedFixtures_NothingToDo(t *testing.T) {
	svc := newTestFixturesService(&fakeFixturesStore{})
	if err := svc.ProcessFinishedFixtures(context.Background()); err != nil {
		t.Fatalf("ProcessFinishedFixtures() error = %v", err)
	}
}
