package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tenmatch/core/pkg/database"
	"github.com/tenmatch/core/pkg/logger"
	"github.com/tenmatch/core/pkg/models"
)

// PostgresLockStore implements LockStore on the job_locks lease table. The
// claim is a single atomic upsert: the insert wins when no row exists and
// the update wins only when the existing lease has expired, so two
// concurrent acquirers can never both hold the resource.
type PostgresLockStore struct {
	db     database.DBTX
	logger *logger.Logger
}

func NewPostgresLockStore(db database.DBTX) *PostgresLockStore {
	return &PostgresLockStore{
		db:     db,
		logger: logger.New("job-lock-store"),
	}
}

func (s *PostgresLockStore) Acquire(ctx context.Context, resource string, ttl time.Duration) (*models.JobLock, error) {
	holderID := uuid.New()

	s.logger.Debug().
		Str("resource", resource).
		Str("holder_id", holderID.String()).
		Dur("ttl", ttl).
		Str("action", "acquire_lock_attempt").
		Msg("Attempting to acquire job lock")

	lock := &models.JobLock{Resource: resource, HolderID: holderID}
	err := s.db.QueryRow(ctx,
		`INSERT INTO job_locks (resource, holder_id, acquired_at, expires_at)
		 VALUES ($1, $2, now(), now() + make_interval(secs => $3))
		 ON CONFLICT (resource) DO UPDATE
		 SET holder_id = EXCLUDED.holder_id,
		     acquired_at = EXCLUDED.acquired_at,
		     expires_at = EXCLUDED.expires_at
		 WHERE job_locks.expires_at <= now()
		 RETURNING acquired_at, expires_at`,
		resource, holderID, ttl.Seconds()).Scan(&lock.AcquiredAt, &lock.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		s.logger.Debug().
			Str("resource", resource).
			Str("action", "lock_already_held").
			Msg("Lock held by another instance")
		return nil, ErrLockBusy
	}
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("resource", resource).
			Str("action", "acquire_lock_failed").
			Msg("Failed to acquire job lock")
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", resource, err)
	}

	s.logger.Info().
		Str("resource", resource).
		Str("holder_id", holderID.String()).
		Time("expires_at", lock.ExpiresAt).
		Str("action", "lock_acquired").
		Msg("Acquired job lock")
	return lock, nil
}

func (s *PostgresLockStore) Release(ctx context.Context, lock *models.JobLock) error {
	if lock == nil {
		return nil
	}

	// Holder-scoped delete: a lease that expired and was claimed by someone
	// else stays untouched.
	tag, err := s.db.Exec(ctx,
		`DELETE FROM job_locks WHERE resource = $1 AND holder_id = $2`,
		lock.Resource, lock.HolderID)
	if err != nil {
		return fmt.Errorf("failed to release lock for %s: %w", lock.Resource, err)
	}

	if tag.RowsAffected() == 0 {
		s.logger.Warn().
			Str("resource", lock.Resource).
			Str("holder_id", lock.HolderID.String()).
			Str("action", "lock_not_held").
			Msg("Released lock was already expired or taken over")
		return nil
	}

	s.logger.Info().
		Str("resource", lock.Resource).
		Str("action", "lock_released").
		Msg("Released job lock")
	return nil
}

func (s *PostgresLockStore) IsHeld(ctx context.Context, resource string) (bool, error) {
	var held bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM job_locks WHERE resource = $1 AND expires_at > now())`,
		resource).Scan(&held)
	if err != nil {
		return false, fmt.Errorf("failed to check lock status for %s: %w", resource, err)
	}
	return held, nil
}
