package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/tenmatch/core/pkg/logger"
)

// JobLedgerPrune is the ledger and lock name of the retention job.
const JobLedgerPrune = "ledger_prune"

type LedgerPruneJob struct {
	ledger    *ExecutionLedger
	retention time.Duration
	logger    *logger.Logger
}

func NewLedgerPruneJob(ledger *ExecutionLedger, retentionDays int) Job {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &LedgerPruneJob{
		ledger:    ledger,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger.New("ledger-prune"),
	}
}

func (j *LedgerPruneJob) Execute(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.retention)

	deleted, err := j.ledger.Prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune job runs: %w", err)
	}

	j.logger.Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Str("action", "ledger_pruned").
		Msg("Pruned old job runs")
	return nil
}

func (j *LedgerPruneJob) Name() string {
	return JobLedgerPrune
}

func (j *LedgerPruneJob) Schedule() string {
	// Daily at 04:00 UTC, outside the resolution windows
	return "0 4 * * *"
}
