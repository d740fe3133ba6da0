package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tenmatch/core/internal/config"
	"github.com/tenmatch/core/pkg/database"
	"github.com/tenmatch/core/pkg/logger"
	"github.com/tenmatch/core/pkg/models"
)

type resolutionStore interface {
	ListDueCycles(ctx context.Context, arg database.ListDueCyclesParams) ([]models.Cycle, error)
	GetCycle(ctx context.Context, id int64) (models.Cycle, error)
	ListMatchesByIDs(ctx context.Context, ids []int64) ([]models.Match, error)
	MarkCycleEnded(ctx context.Context, id int64) (int64, error)
	MarkCycleResolved(ctx context.Context, arg database.MarkCycleResolvedParams) (int64, error)
	NextAttemptNo(ctx context.Context, cycleID int64) (int32, error)
	InsertResolutionAttempt(ctx context.Context, arg database.InsertResolutionAttemptParams) (models.ResolutionAttempt, error)
}

// ResolutionDriver settles due cycles on chain. Cycles are processed
// independently: one cycle's failure, including a panic, never blocks the
// rest of the batch, and re-running against unchanged data changes nothing.
type ResolutionDriver struct {
	db        resolutionStore
	evaluator *ReadinessEvaluator
	chain     ChainSubmitter
	maxBatch  int32
	batchMode bool
	logger    *logger.Logger
}

func NewResolutionDriver(db *database.Queries, chain ChainSubmitter, cfg *config.Config) *ResolutionDriver {
	return &ResolutionDriver{
		db:        db,
		evaluator: NewReadinessEvaluator(db),
		chain:     chain,
		maxBatch:  int32(cfg.Chain.MaxBatchSize),
		batchMode: cfg.Chain.BatchSubmit,
		logger:    logger.New("resolution-driver"),
	}
}

// readyCycle pairs a due cycle with its assembled payload.
type readyCycle struct {
	cycle   models.Cycle
	payload [models.CycleSize]models.OutcomePair
}

// ResolvePending finds unresolved cycles past their deadline and settles
// every one that is ready. It returns the attempts recorded this run. An
// error is returned only when nothing could be settled at all, so the
// coordinator can retry; partial progress counts as success and the
// remainder is picked up next run.
func (d *ResolutionDriver) ResolvePending(ctx context.Context) ([]models.ResolutionAttempt, error) {
	cycles, err := d.db.ListDueCycles(ctx, database.ListDueCyclesParams{
		Deadline: time.Now().UTC(),
		Limit:    d.maxBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list due cycles: %w", err)
	}
	if len(cycles) == 0 {
		d.logger.Info().
			Str("action", "no_due_cycles").
			Msg("No cycles due for resolution")
		return nil, nil
	}

	ready := make([]readyCycle, 0, len(cycles))
	var attempts []models.ResolutionAttempt
	var errored int

	for i := range cycles {
		cycle := cycles[i]

		readiness, err := d.evaluator.Evaluate(ctx, &cycle)
		if err != nil {
			if IsKind(err, KindInvariant) {
				if a, abortErr := d.recordAborted(ctx, cycle.ID, nil, err); abortErr == nil {
					attempts = append(attempts, a)
				}
			} else {
				errored++
				d.logger.Warn().
					Err(err).
					Int64("cycle_id", cycle.ID).
					Str("action", "readiness_failed").
					Msg("Failed to evaluate cycle readiness")
			}
			continue
		}
		if !readiness.Ready {
			d.logger.Info().
				Int64("cycle_id", cycle.ID).
				Int("finished", readiness.FinishedCount).
				Int("complete", readiness.CompleteCount).
				Ints64("missing", readiness.Missing).
				Str("action", "cycle_not_ready").
				Msg("Cycle not ready, re-evaluating next run")
			continue
		}

		payload, err := d.buildPayload(ctx, &cycle)
		if err != nil {
			if IsKind(err, KindInvariant) {
				if a, abortErr := d.recordAborted(ctx, cycle.ID, payload[:], err); abortErr == nil {
					attempts = append(attempts, a)
				}
			} else {
				errored++
				d.logger.Warn().
					Err(err).
					Int64("cycle_id", cycle.ID).
					Str("action", "payload_failed").
					Msg("Failed to assemble resolution payload")
			}
			continue
		}

		ready = append(ready, readyCycle{cycle: cycle, payload: payload})
	}

	if len(ready) == 0 {
		if errored > 0 && len(attempts) == 0 {
			return attempts, fmt.Errorf("no cycle could be evaluated: %d errors", errored)
		}
		return attempts, nil
	}

	if d.batchMode && len(ready) > 1 {
		batchAttempts, ok := d.settleBatch(ctx, ready)
		if ok {
			return append(attempts, batchAttempts...), nil
		}
		d.logger.Warn().
			Int("cycles", len(ready)).
			Str("action", "batch_fallback").
			Msg("Batch submission failed, falling back to per-cycle")
	}

	var succeeded, failed int
	for i := range ready {
		attempt, err := d.settleCycle(ctx, &ready[i].cycle, ready[i].payload)
		if attempt != nil {
			attempts = append(attempts, *attempt)
		}
		if err != nil {
			failed++
			continue
		}
		succeeded++
	}

	if succeeded == 0 && failed > 0 {
		return attempts, fmt.Errorf("all %d submission attempts failed", failed)
	}
	return attempts, nil
}

// ResolveCycle settles a single cycle on demand. A cycle already resolved is
// an idempotent success and records no new attempt.
func (d *ResolutionDriver) ResolveCycle(ctx context.Context, cycleID int64) (*models.ResolutionAttempt, error) {
	cycle, err := d.db.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cycle %d: %w", cycleID, err)
	}
	if cycle.State == models.CycleResolved {
		d.logger.Info().
			Int64("cycle_id", cycleID).
			Str("action", "already_resolved").
			Msg("Cycle already resolved, nothing to do")
		return nil, nil
	}
	if cycle.BettingDeadline.After(time.Now().UTC()) {
		return nil, NewResolutionError(KindNotReady, cycleID,
			fmt.Errorf("betting deadline %s has not passed", cycle.BettingDeadline.Format(time.RFC3339)))
	}

	readiness, err := d.evaluator.Evaluate(ctx, &cycle)
	if err != nil {
		return nil, err
	}
	if !readiness.Ready {
		return nil, NewResolutionError(KindNotReady, cycleID,
			fmt.Errorf("%d/%d finished, %d/%d complete", readiness.FinishedCount, models.CycleSize, readiness.CompleteCount, models.CycleSize))
	}

	payload, err := d.buildPayload(ctx, &cycle)
	if err != nil {
		if IsKind(err, KindInvariant) {
			if a, abortErr := d.recordAborted(ctx, cycle.ID, payload[:], err); abortErr == nil {
				return &a, err
			}
		}
		return nil, err
	}

	return d.settleCycle(ctx, &cycle, payload)
}

// buildPayload maps all ten outcomes for a ready cycle. A not-set pair here
// means readiness and mapping disagree about the same data, which is an
// invariant violation, never something to submit.
func (d *ResolutionDriver) buildPayload(ctx context.Context, cycle *models.Cycle) ([models.CycleSize]models.OutcomePair, error) {
	var payload [models.CycleSize]models.OutcomePair

	matches, err := d.db.ListMatchesByIDs(ctx, cycle.MatchIDs)
	if err != nil {
		return payload, fmt.Errorf("failed to load matches for cycle %d: %w", cycle.ID, err)
	}
	byID := make(map[int64]*models.Match, len(matches))
	for i := range matches {
		byID[matches[i].ID] = &matches[i]
	}

	for i, id := range cycle.MatchIDs {
		pair := MapMatchOutcome(byID[id])
		pair.MatchID = id
		if !pair.Set() {
			return payload, NewResolutionError(KindInvariant, cycle.ID,
				fmt.Errorf("outcome not set for match %d on ready cycle", id))
		}
		payload[i] = pair
	}
	return payload, nil
}

// settleCycle submits one cycle and records the attempt. The returned
// attempt is non-nil whenever a row was written, even for failures.
func (d *ResolutionDriver) settleCycle(ctx context.Context, cycle *models.Cycle, payload [models.CycleSize]models.OutcomePair) (attempt *models.ResolutionAttempt, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic settling cycle %d: %v", cycle.ID, v)
			d.logger.Error().
				Int64("cycle_id", cycle.ID).
				Interface("panic", v).
				Str("action", "settle_panic").
				Msg("Recovered from panic during settlement")
		}
	}()

	if err := d.endCycle(ctx, cycle); err != nil {
		return nil, err
	}

	start := time.Now()
	receipt, submitErr := d.chain.SubmitResolution(ctx, cycle.ID, payload)
	duration := time.Since(start)

	return d.finalize(ctx, cycle.ID, payload[:], receipt, submitErr, duration)
}

// settleBatch submits every ready cycle in one relayer call. It reports ok =
// false when the batch call itself failed and the caller should fall back to
// per-cycle submission; per-cycle bookkeeping failures after an accepted
// batch do not trigger the fallback since the chain already settled.
func (d *ResolutionDriver) settleBatch(ctx context.Context, ready []readyCycle) ([]models.ResolutionAttempt, bool) {
	cycleIDs := make([]int64, len(ready))
	payloads := make([][models.CycleSize]models.OutcomePair, len(ready))
	for i := range ready {
		if err := d.endCycle(ctx, &ready[i].cycle); err != nil {
			d.logger.Warn().
				Err(err).
				Int64("cycle_id", ready[i].cycle.ID).
				Str("action", "end_failed").
				Msg("Failed to end cycle before batch submission")
			return nil, false
		}
		cycleIDs[i] = ready[i].cycle.ID
		payloads[i] = ready[i].payload
	}

	start := time.Now()
	receipt, err := d.chain.SubmitResolutionBatch(ctx, cycleIDs, payloads)
	duration := time.Since(start)
	if err != nil {
		return nil, false
	}

	var attempts []models.ResolutionAttempt
	for i := range ready {
		attempt, finErr := d.finalize(ctx, ready[i].cycle.ID, ready[i].payload[:], receipt, nil, duration)
		if finErr != nil {
			d.logger.Error().
				Err(finErr).
				Int64("cycle_id", ready[i].cycle.ID).
				Str("action", "batch_bookkeeping_failed").
				Msg("Batch settled on chain but local bookkeeping failed")
			continue
		}
		if attempt != nil {
			attempts = append(attempts, *attempt)
		}
	}
	return attempts, true
}

// endCycle performs the guarded active -> ended transition. Zero affected
// rows means another run already moved it, which is fine.
func (d *ResolutionDriver) endCycle(ctx context.Context, cycle *models.Cycle) error {
	if cycle.State != models.CycleActive {
		return nil
	}
	if _, err := d.db.MarkCycleEnded(ctx, cycle.ID); err != nil {
		return fmt.Errorf("failed to end cycle %d: %w", cycle.ID, err)
	}
	cycle.State = models.CycleEnded
	return nil
}

// finalize records the attempt row and, on success, performs the guarded
// transition to resolved. AlreadyResolved acknowledgements count as success.
func (d *ResolutionDriver) finalize(ctx context.Context, cycleID int64, payload []models.OutcomePair, receipt TxReceipt, submitErr error, duration time.Duration) (*models.ResolutionAttempt, error) {
	attemptNo, err := d.db.NextAttemptNo(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to number attempt for cycle %d: %w", cycleID, err)
	}

	params := database.InsertResolutionAttemptParams{
		CycleID:   cycleID,
		AttemptNo: attemptNo,
		Payload:   payload,
	}

	var txHash string
	switch {
	case submitErr == nil:
		params.Status = models.AttemptSucceeded
		txHash = receipt.TxHash
		params.TxHash = &txHash
	case IsKind(submitErr, KindAlreadyResolved):
		params.Status = models.AttemptSucceeded
		msg := submitErr.Error()
		params.Error = &msg
	default:
		params.Status = models.AttemptFailed
		msg := submitErr.Error()
		params.Error = &msg
	}

	attempt, err := d.db.InsertResolutionAttempt(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to record attempt for cycle %d: %w", cycleID, err)
	}

	d.logger.LogResolution(cycleID, attemptNo, txHash, duration, submitErr)

	if params.Status != models.AttemptSucceeded {
		return &attempt, submitErr
	}

	if _, err := d.db.MarkCycleResolved(ctx, database.MarkCycleResolvedParams{ID: cycleID, TxHash: params.TxHash}); err != nil {
		return &attempt, fmt.Errorf("failed to mark cycle %d resolved: %w", cycleID, err)
	}
	return &attempt, nil
}

// recordAborted writes the audit row for a cycle whose data failed a
// consistency check mid-run, flagging it for review without blocking the batch.
func (d *ResolutionDriver) recordAborted(ctx context.Context, cycleID int64, payload []models.OutcomePair, cause error) (models.ResolutionAttempt, error) {
	attemptNo, err := d.db.NextAttemptNo(ctx, cycleID)
	if err != nil {
		d.logger.Error().
			Err(err).
			Int64("cycle_id", cycleID).
			Str("action", "abort_record_failed").
			Msg("Failed to number aborted attempt")
		return models.ResolutionAttempt{}, err
	}

	msg := cause.Error()
	attempt, err := d.db.InsertResolutionAttempt(ctx, database.InsertResolutionAttemptParams{
		CycleID:   cycleID,
		AttemptNo: attemptNo,
		Status:    models.AttemptAborted,
		Error:     &msg,
		Payload:   payload,
	})
	if err != nil {
		d.logger.Error().
			Err(err).
			Int64("cycle_id", cycleID).
			Str("action", "abort_record_failed").
			Msg("Failed to record aborted attempt")
		return models.ResolutionAttempt{}, err
	}

	d.logger.Error().
		Err(cause).
		Int64("cycle_id", cycleID).
		Int32("attempt_no", attemptNo).
		Str("action", "cycle_aborted").
		Msg("Cycle attempt aborted on invariant violation, flagged for review")
	return attempt, nil
}
