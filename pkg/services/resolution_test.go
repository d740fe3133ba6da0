package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tenmatch/core/pkg/database"
	"github.com/tenmatch/core/pkg/logger"
	"github.com/tenmatch/core/pkg/models"
)

// fakeResolutionStore keeps cycles, matches and attempts in memory and
// enforces the same guarded state transitions as the SQL layer.
type fakeResolutionStore struct {
	cycles   map[int64]*models.Cycle
	matches  map[int64]models.Match
	attempts []models.ResolutionAttempt

	listCalls   int
	matchesHook func(call int, matches []models.Match) []models.Match
	endedIDs    []int64
	resolvedIDs []int64
}

func newFakeResolutionStore() *fakeResolutionStore {
	return &fakeResolutionStore{
		cycles:  make(map[int64]*models.Cycle),
		matches: make(map[int64]models.Match),
	}
}

var defaultScores = [models.CycleSize][2]int32{
	{2, 1}, {0, 0}, {3, 2}, {1, 1}, {0, 1},
	{2, 2}, {1, 0}, {4, 1}, {0, 2}, {2, 0},
}

// addReadyCycle seeds a due cycle whose ten matches are all complete.
func (f *fakeResolutionStore) addReadyCycle(id int64) *models.Cycle {
	ids := tenMatchIDs(id * 100)
	for i, matchID := range ids {
		f.matches[matchID] = completeMatch(matchID, defaultScores[i][0], defaultScores[i][1])
	}
	cycle := cycleWithMatches(id, ids)
	f.cycles[id] = cycle
	return cycle
}

func (f *fakeResolutionStore) ListDueCycles(_ context.Context, arg database.ListDueCyclesParams) ([]models.Cycle, error) {
	var ids []int64
	for id, cycle := range f.cycles {
		if cycle.State != models.CycleResolved && !cycle.BettingDeadline.After(arg.Deadline) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var due []models.Cycle
	for _, id := range ids {
		if int32(len(due)) == arg.Limit {
			break
		}
		due = append(due, *f.cycles[id])
	}
	return due, nil
}

func (f *fakeResolutionStore) GetCycle(_ context.Context, id int64) (models.Cycle, error) {
	cycle, ok := f.cycles[id]
	if !ok {
		return models.Cycle{}, pgx.ErrNoRows
	}
	return *cycle, nil
}

func (f *fakeResolutionStore) ListMatchesByIDs(_ context.Context, ids []int64) ([]models.Match, error) {
	f.listCalls++
	var matches []models.Match
	for _, id := range ids {
		if m, ok := f.matches[id]; ok {
			matches = append(matches, m)
		}
	}
	if f.matchesHook != nil {
		matches = f.matchesHook(f.listCalls, matches)
	}
	return matches, nil
}

func (f *fakeResolutionStore) MarkCycleEnded(_ context.Context, id int64) (int64, error) {
	f.endedIDs = append(f.endedIDs, id)
	cycle, ok := f.cycles[id]
	if !ok || cycle.State != models.CycleActive {
		return 0, nil
	}
	cycle.State = models.CycleEnded
	return 1, nil
}

func (f *fakeResolutionStore) MarkCycleResolved(_ context.Context, arg database.MarkCycleResolvedParams) (int64, error) {
	f.resolvedIDs = append(f.resolvedIDs, arg.ID)
	cycle, ok := f.cycles[arg.ID]
	if !ok || cycle.State == models.CycleResolved {
		return 0, nil
	}
	now := time.Now().UTC()
	cycle.State = models.CycleResolved
	cycle.TxHash = arg.TxHash
	cycle.ResolvedAt = &now
	return 1, nil
}

func (f *fakeResolutionStore) NextAttemptNo(_ context.Context, cycleID int64) (int32, error) {
	var highest int32
	for _, a := range f.attempts {
		if a.CycleID == cycleID && a.AttemptNo > highest {
			highest = a.AttemptNo
		}
	}
	return highest + 1, nil
}

func (f *fakeResolutionStore) InsertResolutionAttempt(_ context.Context, arg database.InsertResolutionAttemptParams) (models.ResolutionAttempt, error) {
	attempt := models.ResolutionAttempt{
		ID:        int64(len(f.attempts) + 1),
		CycleID:   arg.CycleID,
		AttemptNo: arg.AttemptNo,
		Status:    arg.Status,
		Error:     arg.Error,
		Payload:   arg.Payload,
		TxHash:    arg.TxHash,
		CreatedAt: time.Now().UTC(),
	}
	f.attempts = append(f.attempts, attempt)
	return attempt, nil
}

func (f *fakeResolutionStore) attemptsFor(cycleID int64) []models.ResolutionAttempt {
	var out []models.ResolutionAttempt
	for _, a := range f.attempts {
		if a.CycleID == cycleID {
			out = append(out, a)
		}
	}
	return out
}

type fakeChain struct {
	submitFn func(cycleID int64, outcomes [models.CycleSize]models.OutcomePair) (TxReceipt, error)
	batchFn  func(cycleIDs []int64, outcomes [][models.CycleSize]models.OutcomePair) (TxReceipt, error)

	submitCalls int
	batchCalls  int
}

func (f *fakeChain) SubmitResolution(_ context.Context, cycleID int64, outcomes [models.CycleSize]models.OutcomePair) (TxReceipt, error) {
	f.submitCalls++
	if f.submitFn != nil {
		return f.submitFn(cycleID, outcomes)
	}
	return TxReceipt{TxHash: fmt.Sprintf("0xcycle%d", cycleID)}, nil
}

func (f *fakeChain) SubmitResolutionBatch(_ context.Context, cycleIDs []int64, outcomes [][models.CycleSize]models.OutcomePair) (TxReceipt, error) {
	f.batchCalls++
	if f.batchFn != nil {
		return f.batchFn(cycleIDs, outcomes)
	}
	return TxReceipt{TxHash: "0xbatch"}, nil
}

func newTestDriver(store *fakeResolutionStore, chain ChainSubmitter, batchMode bool) *ResolutionDriver {
	return &ResolutionDriver{
		db:        store,
		evaluator: &ReadinessEvaluator{db: store},
		chain:     chain,
		maxBatch:  50,
		batchMode: batchMode,
		logger:    logger.New("test"),
	}
}

func TestResolvePending_SettlesReadyCycle(t *testing.T) {
	store := newFakeResolutionStore()
	store.addReadyCycle(7)
	chain := &fakeChain{}
	driver := newTestDriver(store, chain, false)

	attempts, err := driver.ResolvePending(context.Background())
	if err != nil {
		t.Fatalf("ResolvePending() error = %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("Expected 1 attempt, got %d", len(attempts))
	}

	attempt := attempts[0]
	if attempt.Status != models.AttemptSucceeded {
		t.Errorf("Expected status %q, got %q", models.AttemptSucceeded, attempt.Status)
	}
	if attempt.AttemptNo != 1 {
		t.Errorf("Expected attempt_no 1, got %d", attempt.AttemptNo)
	}
	if attempt.TxHash == nil || *attempt.TxHash != "0xcycle7" {
		t.Errorf("Expected tx hash 0xcycle7, got %v", attempt.TxHash)
	}
	if len(attempt.Payload) != models.CycleSize {
		t.Errorf("Expected %d payload pairs, got %d", models.CycleSize, len(attempt.Payload))
	}

	cycle := store.cycles[7]
	if cycle.State != models.CycleResolved {
		t.Errorf("Expected cycle state %q, got %q", models.CycleResolved, cycle.State)
	}
	if cycle.TxHash == nil || *cycle.TxHash != "0xcycle7" {
		t.Errorf("Expected cycle tx hash 0xcycle7, got %v", cycle.TxHash)
	}
	if cycle.ResolvedAt == nil {
		t.Error("Expected resolved_at to be set")
	}
	if len(store.endedIDs) != 1 || store.endedIDs[0] != 7 {
		t.Errorf("Expected cycle 7 to be ended before submission, got %v", store.endedIDs)
	}
	if chain.submitCalls != 1 {
		t.Errorf("Expected 1 chain call, got %d", chain.submitCalls)
	}
}

func TestResolvePending_NoDueCycles(t *testing.T) {
	store := newFakeResolutionStore()
	chain := &fakeChain{}
	driver := newTestDriver(store, chain, false)

	attempts, err := driver.ResolvePending(context.Background())
	if err != nil {
		t.Fatalf("ResolvePending() error = %v", err)
	}
	if attempts != nil {
		t.Errorf("Expected no attempts, got %v", attempts)
	}
	if chain.submitCalls != 0 {
		t.Errorf("Expected no chain calls, got %d", chain.submitCalls)
	}
}

func TestResolvePending_NotReadyCycleLeftAlone(t *testing.T) {
	store := newFakeResolutionStore()
	cycle := store.addReadyCycle(3)

	// One match is still live, so the cycle must wait for a later run.
	live := store.matches[cycle.MatchIDs[4]]
	live.Status = models.MatchLive
	live.WinnerOutcome = nil
	live.TotalsOutcome = nil
	store.matches[cycle.MatchIDs[4]] = live

	chain := &fakeChain{}
	driver := newTestDriver(store, chain, false)

	attempts, err := driver.ResolvePending(context.Background())
	if err != nil {
		t.Fatalf("ResolvePending() error = %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("Expected no attempts for an unready cycle, got %d", len(attempts))
	}
	if chain.submitCalls != 0 {
		t.Errorf("Expected no chain calls, got %d", chain.submitCalls)
	}
	if store.cycles[3].State != models.CycleActive {
		t.Errorf("Expected cycle to stay active, got %q", store.cycles[3].State)
	}
}

func TestResolvePending_AllSubmissionsFailed(t *testing.T) {
	store := newFakeResolutionStore()
	store.addReadyCycle(5)
	chain := &fakeChain{
		submitFn: func(int64, [models.CycleSize]models.OutcomePair) (TxReceipt, error) {
			return TxReceipt{}, NewResolutionError(KindTransient, 5, errors.New("relayer down"))
		},
	}
	driver := newTestDriver(store, chain, false)

	attempts, err := driver.ResolvePending(context.Background())
	if err == nil {
		t.Fatal("Expected error when every submission fails")
	}
	if !strings.Contains(err.Error(), "all 1 submission attempts failed") {
		t.Errorf("Unexpected error message: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("Expected the failed attempt to be recorded, got %d", len(attempts))
	}
	if attempts[0].Status != models.AttemptFailed {
		t.Errorf("Expected status %q, got %q", models.AttemptFailed, attempts[0].Status)
	}
	if attempts[0].Error == nil || !strings.Contains(*attempts[0].Error, "relayer down") {
		t.Errorf("Expected attempt error to carry the cause, got %v", attempts[0].Error)
	}

	// The cycle stays ended so the next run retries it without re-ending.
	if store.cycles[5].State != models.CycleEnded {
		t.Errorf("Expected cycle state %q, got %q", models.CycleEnded, store.cycles[5].State)
	}
}

func TestResolvePending_PartialProgressIsSuccess(t *testing.T) {
	store := newFakeResolutionStore()
	store.addReadyCycle(1)
	store.addReadyCycle(2)
	chain := &fakeChain{
		submitFn: func(cycleID int64, _ [models.CycleSize]models.OutcomePair) (TxReceipt, error) {
			if cycleID == 1 {
				return TxReceipt{}, NewResolutionError(KindTransient, cycleID, errors.New("nonce too low"))
			}
			return TxReceipt{TxHash: "0xok"}, nil
		},
	}
	driver := newTestDriver(store, chain, false)

	attempts, err := driver.ResolvePending(context.Background())
	if err != nil {
		t.Fatalf("Partial progress must not return an error, got %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(attempts))
	}
	if store.cycles[1].State != models.CycleEnded {
		t.Errorf("Expected failing cycle to stay ended, got %q", store.cycles[1].State)
	}
	if store.cycles[2].State != models.CycleResolved {
		t.Errorf("Expected cycle 2 resolved, got %q", store.cycles[2].State)
	}
}

func TestResolvePending_AlreadyResolvedAcknowledged(t *testing.T) {
	store := newFakeResolutionStore()
	store.addReadyCycle(9)
	chain := &fakeChain{
		submitFn: func(int64, [models.CycleSize]models.OutcomePair) (TxReceipt, error) {
			return TxReceipt{}, NewResolutionError(KindAlreadyResolved, 9, errors.New("cycle already resolved on chain"))
		},
	}
	driver := newTestDriver(store, chain, false)

	attempts, err := driver.ResolvePending(context.Background())
	if err != nil {
		t.Fatalf("AlreadyResolved must count as success, got %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("Expected 1 attempt, got %d", len(attempts))
	}
	if attempts[0].Status != models.AttemptSucceeded {
		t.Errorf("Expected status %q, got %q", models.AttemptSucceeded, attempts[0].Status)
	}
	if attempts[0].TxHash != nil {
		t.Errorf("Expected no tx hash on an acknowledgement, got %v", *attempts[0].TxHash)
	}
	if attempts[0].Error == nil {
		t.Error("Expected the acknowledgement message to be recorded")
	}

	cycle := store.cycles[9]
	if cycle.State != models.CycleResolved {
		t.Errorf("Expected cycle resolved, got %q", cycle.State)
	}
	if cycle.TxHash != nil {
		t.Errorf("Expected nil cycle tx hash, got %v", *cycle.TxHash)
	}
}

func TestResolvePending_AbortsWhenOutcomeUnsetOnReadyCycle(t *testing.T) {
	store := newFakeResolutionStore()
	cycle := store.addReadyCycle(4)

	// Readiness sees complete matches; by the time the payload is assembled
	// one score has vanished. The driver must abort, not submit a default.
	store.matchesHook = func(call int, matches []models.Match) []models.Match {
		if call < 2 {
			return matches
		}
		degraded := make([]models.Match, len(matches))
		copy(degraded, matches)
		for i := range degraded {
			if degraded[i].ID == cycle.MatchIDs[0] {
				degraded[i].HomeScore = nil
			}
		}
		return degraded
	}

	chain := &fakeChain{}
	driver := newTestDriver(store, chain, false)

	attempts, err := driver.ResolvePending(context.Background())
	if err != nil {
		t.Fatalf("An aborted cycle must not fail the run, got %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("Expected 1 aborted attempt, got %d", len(attempts))
	}
	if attempts[0].Status != models.AttemptAborted {
		t.Errorf("Expected status %q, got %q", models.AttemptAborted, attempts[0].Status)
	}
	if attempts[0].Error == nil || !strings.Contains(*attempts[0].Error, "outcome not set") {
		t.Errorf("Expected the invariant violation in the attempt error, got %v", attempts[0].Error)
	}
	if chain.submitCalls != 0 {
		t.Errorf("Expected no chain calls after an abort, got %d", chain.submitCalls)
	}
	if store.cycles[4].State == models.CycleResolved {
		t.Error("An aborted cycle must never be marked resolved")
	}
}

func TestResolvePending_PanicIsolatedPerCycle(t *testing.T) {
	store := newFakeResolutionStore()
	store.addReadyCycle(1)
	store.addReadyCycle(2)
	chain := &fakeChain{
		submitFn: func(cycleID int64, _ [models.CycleSize]models.OutcomePair) (TxReceipt, error) {
			if cycleID == 1 {
				panic("relayer client bug")
			}
			return TxReceipt{TxHash: "0xsafe"}, nil
		},
	}
	driver := newTestDriver(store, chain, false)

	attempts, err := driver.ResolvePending(context.Background())
	if err != nil {
		t.Fatalf("A panic in one cycle must not fail the run, got %v", err)
	}
	if chain.submitCalls != 2 {
		t.Errorf("Expected both cycles submitted, got %d calls", chain.submitCalls)
	}
	if len(attempts) != 1 {
		t.Fatalf("Expected only the surviving cycle's attempt, got %d", len(attempts))
	}
	if attempts[0].CycleID != 2 {
		t.Errorf("Expected attempt for cycle 2, got %d", attempts[0].CycleID)
	}
	if store.cycles[2].State != models.CycleResolved {
		t.Errorf("Expected cycle 2 resolved, got %q", store.cycles[2].State)
	}
	if store.cycles[1].State != models.CycleEnded {
		t.Errorf("Expected panicked cycle to stay ended, got %q", store.cycles[1].State)
	}
}

func TestResolvePending_BatchMode(t *testing.T) {
	store := newFakeResolutionStore()
	store.addReadyCycle(1)
	store.addReadyCycle(2)
	chain := &fakeChain{}
	driver := newTestDriver(store, chain, true)

	attempts, err := driver.ResolvePending(context.Background())
	if err != nil {
		t.Fatalf("ResolvePending() error = %v", err)
	}
	if chain.batchCalls != 1 {
		t.Errorf("Expected 1 batch call, got %d", chain.batchCalls)
	}
	if chain.submitCalls != 0 {
		t.Errorf("Expected no per-cycle calls, got %d", chain.submitCalls)
	}
	if len(attempts) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(attempts))
	}
	for _, a := range attempts {
		if a.Status != models.AttemptSucceeded {
			t.Errorf("Cycle %d: expected status %q, got %q", a.CycleID, models.AttemptSucceeded, a.Status)
		}
		if a.TxHash == nil || *a.TxHash != "0xbatch" {
			t.Errorf("Cycle %d: expected shared batch tx hash, got %v", a.CycleID, a.TxHash)
		}
	}
	for _, id := range []int64{1, 2} {
		if store.cycles[id].State != models.CycleResolved {
			t.Errorf("Expected cycle %d resolved, got %q", id, store.cycles[id].State)
		}
	}
}

func TestResolvePending_BatchFallsBackPerCycle(t *testing.T) {
	store := newFakeResolutionStore()
	store.addReadyCycle(1)
	store.addReadyCycle(2)
	chain := &fakeChain{
		batchFn: func([]int64, [][models.CycleSize]models.OutcomePair) (TxReceipt, error) {
			return TxReceipt{}, NewResolutionError(KindTransient, 0, errors.New("batch endpoint unavailable"))
		},
	}
	driver := newTestDriver(store, chain, true)

	attempts, err := driver.ResolvePending(context.Background())
	if err != nil {
		t.Fatalf("ResolvePending() error = %v", err)
	}
	if chain.batchCalls != 1 {
		t.Errorf("Expected 1 batch call, got %d", chain.batchCalls)
	}
	if chain.submitCalls != 2 {
		t.Errorf("Expected per-cycle fallback for both cycles, got %d calls", chain.submitCalls)
	}
	if len(attempts) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(attempts))
	}
	for _, id := range []int64{1, 2} {
		if store.cycles[id].State != models.CycleResolved {
			t.Errorf("Expected cycle %d resolved, got %q", id, store.cycles[id].State)
		}
	}
}

func TestResolvePending_SingleCycleSkipsBatch(t *testing.T) {
	store := newFakeResolutionStore()
	store.addReadyCycle(6)
	chain := &fakeChain{}
	driver := newTestDriver(store, chain, true)

	if _, err := driver.ResolvePending(context.Background()); err != nil {
		t.Fatalf("ResolvePending() error = %v", err)
	}
	if chain.batchCalls != 0 {
		t.Errorf("A single ready cycle must not use the batch endpoint, got %d calls", chain.batchCalls)
	}
	if chain.submitCalls != 1 {
		t.Errorf("Expected 1 per-cycle call, got %d", chain.submitCalls)
	}
}

func TestResolvePending_AttemptNumbersAdvanceAcrossRuns(t *testing.T) {
	store := newFakeResolutionStore()
	store.addReadyCycle(8)

	failing := &fakeChain{
		submitFn: func(int64, [models.CycleSize]models.OutcomePair) (TxReceipt, error) {
			return TxReceipt{}, NewResolutionError(KindTransient, 8, errors.New("timeout"))
		},
	}
	driver := newTestDriver(store, failing, false)
	for run := 1; run <= 2; run++ {
		if _, err := driver.ResolvePending(context.Background()); err == nil {
			t.Fatalf("Expected run %d to fail", run)
		}
	}

	driver.chain = &fakeChain{}
	if _, err := driver.ResolvePending(context.Background()); err != nil {
		t.Fatalf("Final run error = %v", err)
	}

	history := store.attemptsFor(8)
	if len(history) != 3 {
		t.Fatalf("Expected 3 attempts across runs, got %d", len(history))
	}
	for i, attempt := range history {
		if attempt.AttemptNo != int32(i+1) {
			t.Errorf("Attempt %d numbered %d", i, attempt.AttemptNo)
		}
	}
	if history[0].Status != models.AttemptFailed || history[1].Status != models.AttemptFailed {
		t.Errorf("Expected the first two attempts failed, got %q and %q", history[0].Status, history[1].Status)
	}
	if history[2].Status != models.AttemptSucceeded {
		t.Errorf("Expected the last attempt succeeded, got %q", history[2].Status)
	}
	if len(store.resolvedIDs) != 1 || store.resolvedIDs[0] != 8 {
		t.Errorf("Expected exactly one resolved transition for cycle 8, got %v", store.resolvedIDs)
	}
}

func TestResolvePending_ResolvedCycleNotListedAgain(t *testing.T) {
	store := newFakeResolutionStore()
	store.addReadyCycle(11)
	chain := &fakeChain{}
	driver := newTestDriver(store, chain, false)

	if _, err := driver.ResolvePending(context.Background()); err != nil {
		t.Fatalf("First run error = %v", err)
	}
	attempts, err := driver.ResolvePending(context.Background())
	if err != nil {
		t.Fatalf("Second run error = %v", err)
	}
	if attempts != nil {
		t.Errorf("Expected nothing to do on the second run, got %d attempts", len(attempts))
	}
	if chain.submitCalls != 1 {
		t.Errorf("Expected exactly 1 submission, got %d", chain.submitCalls)
	}
}

func TestResolveCycle(t *testing.T) {
	t.Run("unknown cycle", func(t *testing.T) {
		driver := newTestDriver(newFakeResolutionStore(), &fakeChain{}, false)

		_, err := driver.ResolveCycle(context.Background(), 99)
		if err == nil {
			t.Fatal("Expected error for an unknown cycle")
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			t.Errorf("Expected wrapped pgx.ErrNoRows, got %v", err)
		}
	})

	t.Run("already resolved is idempotent", func(t *testing.T) {
		store := newFakeResolutionStore()
		cycle := store.addReadyCycle(2)
		cycle.State = models.CycleResolved
		chain := &fakeChain{}
		driver := newTestDriver(store, chain, false)

		attempt, err := driver.ResolveCycle(context.Background(), 2)
		if err != nil {
			t.Fatalf("ResolveCycle() error = %v", err)
		}
		if attempt != nil {
			t.Errorf("Expected no new attempt, got %+v", attempt)
		}
		if chain.submitCalls != 0 {
			t.Errorf("Expected no chain calls, got %d", chain.submitCalls)
		}
	})

	t.Run("deadline not passed", func(t *testing.T) {
		store := newFakeResolutionStore()
		cycle := store.addReadyCycle(3)
		cycle.BettingDeadline = time.Now().UTC().Add(time.Hour)
		driver := newTestDriver(store, &fakeChain{}, false)

		_, err := driver.ResolveCycle(context.Background(), 3)
		if !IsKind(err, KindNotReady) {
			t.Errorf("Expected KindNotReady, got %v", err)
		}
	})

	t.Run("results incomplete", func(t *testing.T) {
		store := newFakeResolutionStore()
		cycle := store.addReadyCycle(4)
		delete(store.matches, cycle.MatchIDs[9])
		driver := newTestDriver(store, &fakeChain{}, false)

		_, err := driver.ResolveCycle(context.Background(), 4)
		if !IsKind(err, KindNotReady) {
			t.Errorf("Expected KindNotReady, got %v", err)
		}
	})

	t.Run("settles a ready cycle", func(t *testing.T) {
		store := newFakeResolutionStore()
		store.addReadyCycle(5)
		chain := &fakeChain{}
		driver := newTestDriver(store, chain, false)

		attempt, err := driver.ResolveCycle(context.Background(), 5)
		if err != nil {
			t.Fatalf("ResolveCycle() error = %v", err)
		}
		if attempt == nil || attempt.Status != models.AttemptSucceeded {
			t.Fatalf("Expected a succeeded attempt, got %+v", attempt)
		}
		if store.cycles[5].State != models.CycleResolved {
			t.Errorf("Expected cycle resolved, got %q", store.cycles[5].State)
		}
	})
}

func TestBuildPayload_PreservesContractOrder(t *testing.T) {
	store := newFakeResolutionStore()
	cycle := store.addReadyCycle(1)
	driver := newTestDriver(store, &fakeChain{}, false)

	payload, err := driver.buildPayload(context.Background(), cycle)
	if err != nil {
		t.Fatalf("buildPayload() error = %v", err)
	}
	for i, id := range cycle.MatchIDs {
		if payload[i].MatchID != id {
			t.Errorf("Slot %d: expected match %d, got %d", i, id, payload[i].MatchID)
		}
		if !payload[i].Set() {
			t.Errorf("Slot %d: expected a fully set pair", i)
		}
	}
}
