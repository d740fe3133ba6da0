package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tenmatch/core/pkg/logger"
	"github.com/tenmatch/core/pkg/models"
	"github.com/tenmatch/core/pkg/services"
)

// Skip reasons recorded in the ledger and surfaced in Outcome.Reason.
const (
	SkipReasonDependency = "dependency"
	SkipReasonLocked     = "locked"
)

// Outcome is the coordinator's verdict for one execution request.
type Outcome struct {
	Status   models.RunStatus
	Reason   string // set when Status is skipped
	Err      error  // set when Status is failed
	RunID    uuid.UUID
	Attempts int
	Duration time.Duration
}

// CoordinatorConfig carries process-wide defaults; per-job Config values
// override them where set.
type CoordinatorConfig struct {
	DefaultLockTTL   time.Duration
	DefaultFreshness time.Duration
	BackoffBase      time.Duration
	BackoffCap       time.Duration
}

// Coordinator wraps every job execution, scheduled or manual, in the same
// discipline: dependency freshness first, then the distributed lock, then a
// ledger row, then the body under a hard deadline with retries. The lock is
// released on every exit path.
type Coordinator struct {
	locks  LockStore
	ledger *ExecutionLedger
	cfg    CoordinatorConfig
	logger *logger.Logger
}

func NewCoordinator(locks LockStore, ledger *ExecutionLedger, cfg CoordinatorConfig) *Coordinator {
	if cfg.DefaultLockTTL <= 0 {
		cfg.DefaultLockTTL = 10 * time.Minute
	}
	if cfg.DefaultFreshness <= 0 {
		cfg.DefaultFreshness = 45 * time.Minute
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	return &Coordinator{
		locks:  locks,
		ledger: ledger,
		cfg:    cfg,
		logger: logger.New("job-coordinator"),
	}
}

// Run executes the job under full coordination and reports what happened.
// Every verdict, including skips, leaves a ledger record.
func (c *Coordinator) Run(ctx context.Context, job Job, cfg Config) Outcome {
	jobName := job.Name()
	start := time.Now()

	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = c.cfg.DefaultLockTTL
	}
	freshness := cfg.FreshnessWindow
	if freshness <= 0 {
		freshness = c.cfg.DefaultFreshness
	}

	// Dependency freshness comes before any locking so a skip is free.
	stale, err := c.staleDependency(ctx, cfg.Dependencies, freshness)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("job_name", jobName).
			Str("action", "dependency_check_failed").
			Msg("Failed to check job dependencies")
		return Outcome{Status: models.RunFailed, Err: err, Duration: time.Since(start)}
	}
	if stale != "" {
		c.logger.Info().
			Str("job_name", jobName).
			Str("stale_dependency", stale).
			Str("action", "job_skipped_dependency").
			Msg("Job skipped, dependency has no fresh completed run")
		return c.skip(ctx, jobName, SkipReasonDependency, start)
	}

	guard := NewLockGuard(c.locks)
	acquired, err := guard.Acquire(ctx, jobName, lockTTL)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("job_name", jobName).
			Str("action", "lock_acquisition_error").
			Msg("Failed to acquire job lock")
		return Outcome{Status: models.RunFailed, Err: err, Duration: time.Since(start)}
	}
	if !acquired {
		c.logger.Info().
			Str("job_name", jobName).
			Str("action", "job_skipped_locked").
			Msg("Job skipped, another instance is running")
		return c.skip(ctx, jobName, SkipReasonLocked, start)
	}
	defer func() {
		if releaseErr := guard.Release(ctx); releaseErr != nil {
			c.logger.Error().
				Err(releaseErr).
				Str("job_name", jobName).
				Str("action", "lock_release_error").
				Msg("Failed to release job lock")
		}
	}()

	run, err := c.ledger.Begin(ctx, jobName)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("job_name", jobName).
			Str("action", "ledger_begin_failed").
			Msg("Failed to open ledger run")
		return Outcome{Status: models.RunFailed, Err: err, Duration: time.Since(start)}
	}

	c.logger.Info().
		Str("job_name", jobName).
		Str("run_id", run.ID.String()).
		Dur("deadline", lockTTL).
		Str("action", "job_start").
		Msg("Starting coordinated job execution")

	// The whole retry loop shares one deadline equal to the lock TTL, so
	// the body can never outlive the lease it runs under.
	bodyCtx, cancel := context.WithTimeout(ctx, lockTTL)
	attempts, bodyErr := c.executeWithRetry(bodyCtx, job, cfg.MaxRetries)
	cancel()

	duration := time.Since(start)
	metadata := map[string]any{"attempts": attempts}

	if bodyErr != nil {
		if finErr := c.ledger.Fail(ctx, run, bodyErr, metadata); finErr != nil {
			c.logger.Error().
				Err(finErr).
				Str("job_name", jobName).
				Str("action", "ledger_finalize_failed").
				Msg("Failed to finalize ledger run")
		}
		c.logger.Error().
			Err(bodyErr).
			Str("job_name", jobName).
			Int("attempts", attempts).
			Dur("duration", duration).
			Str("action", "job_failed").
			Msg("Coordinated job execution failed")
		return Outcome{Status: models.RunFailed, Err: bodyErr, RunID: run.ID, Attempts: attempts, Duration: duration}
	}

	if finErr := c.ledger.Complete(ctx, run, metadata); finErr != nil {
		c.logger.Error().
			Err(finErr).
			Str("job_name", jobName).
			Str("action", "ledger_finalize_failed").
			Msg("Failed to finalize ledger run")
	}
	c.logger.Info().
		Str("job_name", jobName).
		Int("attempts", attempts).
		Dur("duration", duration).
		Str("action", "job_completed").
		Msg("Coordinated job execution completed")
	return Outcome{Status: models.RunCompleted, RunID: run.ID, Attempts: attempts, Duration: duration}
}

// skip records a skipped run; ledger trouble downgrades to a log line so the
// skip verdict still reaches the caller.
func (c *Coordinator) skip(ctx context.Context, jobName, reason string, start time.Time) Outcome {
	out := Outcome{Status: models.RunSkipped, Reason: reason, Duration: time.Since(start)}
	run, err := c.ledger.RecordSkip(ctx, jobName, reason)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("job_name", jobName).
			Str("action", "skip_record_failed").
			Msg("Failed to record skipped run")
		return out
	}
	out.RunID = run.ID
	return out
}

// staleDependency returns the first dependency lacking a completed run
// newer than the freshness window, or "" when all are fresh. Only completed
// runs count; running and failed runs never satisfy a dependency.
func (c *Coordinator) staleDependency(ctx context.Context, deps []string, window time.Duration) (string, error) {
	now := time.Now().UTC()
	for _, dep := range deps {
		latest, err := c.ledger.LatestCompleted(ctx, dep)
		if err != nil {
			return "", err
		}
		if latest == nil || latest.FinishedAt == nil || now.Sub(*latest.FinishedAt) > window {
			return dep, nil
		}
	}
	return "", nil
}

func (c *Coordinator) executeWithRetry(ctx context.Context, job Job, maxRetries int) (int, error) {
	var lastErr error
	maxAttempts := maxRetries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.backoff(attempt)
			c.logger.Warn().
				Int("attempt", attempt).
				Int("max_attempts", maxAttempts).
				Dur("backoff", backoff).
				Err(lastErr).
				Str("job_name", job.Name()).
				Str("action", "job_retry").
				Msg("Retrying job execution after failure")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return attempt - 1, lastErr
			}
		}

		err := job.Execute(ctx)
		if err == nil {
			if attempt > 1 {
				c.logger.Info().
					Int("attempt", attempt).
					Str("job_name", job.Name()).
					Str("action", "job_retry_success").
					Msg("Job succeeded after retry")
			}
			return attempt, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			c.logger.Warn().
				Err(err).
				Str("job_name", job.Name()).
				Str("action", "error_not_retryable").
				Msg("Error is not retryable, failing immediately")
			return attempt, lastErr
		}
	}

	return maxAttempts, lastErr
}

// backoff grows exponentially from the base, capped, with ±25% jitter so
// replicas that failed together do not retry together.
func (c *Coordinator) backoff(attempt int) time.Duration {
	backoff := c.cfg.BackoffBase * time.Duration(1<<uint(attempt-2))
	if backoff > c.cfg.BackoffCap || backoff <= 0 {
		backoff = c.cfg.BackoffCap
	}

	jitterFactor := float64(time.Now().UnixNano()%1000) / 1000.0
	jitter := time.Duration(float64(backoff) * 0.25 * (2*jitterFactor - 1))
	return backoff + jitter
}

// shouldRetry keeps context cancellation and classified non-transient
// failures out of the retry loop.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return services.KindOf(err).Retryable()
}
