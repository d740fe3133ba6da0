package jobs

import (
	"context"
	"time"
)

// Job represents a schedulable job executed through the coordinator
type Job interface {
	// Execute runs the job with the given context
	Execute(ctx context.Context) error

	// Name returns the unique job name used for locking and the run ledger
	Name() string

	// Schedule returns the cron schedule expression for this job
	// Format: "minute hour day month weekday" or "@every duration"
	// Examples: "0 */6 * * *" (every 6 hours), "@every 1h" (every hour)
	Schedule() string
}

// Config declares a job's coordination parameters. Supplied once at
// registration and immutable afterwards.
type Config struct {
	// Dependencies lists jobs that must have completed recently enough
	// (per FreshnessWindow) before this job may start.
	Dependencies []string

	// FreshnessWindow bounds the age of a dependency's latest completed
	// run. Zero falls back to the coordinator default.
	FreshnessWindow time.Duration

	// LockTTL is the lease duration and, equally, the hard deadline for
	// the job body. Zero falls back to the coordinator default.
	LockTTL time.Duration

	// MaxRetries is how many times a failed body re-runs within one
	// coordinated execution. Zero means the first failure is final.
	MaxRetries int

	// RunAtStartup runs the job once, through the coordinator, before the
	// schedule starts ticking.
	RunAtStartup bool

	// Priority orders startup runs; lower values run earlier.
	Priority int
}

// JobManager manages and schedules multiple jobs
type JobManager interface {
	// RegisterJob adds a job and its coordination parameters
	RegisterJob(job Job, cfg Config) error

	// Start begins executing all registered jobs according to their schedules
	Start()

	// Stop gracefully shuts down the job manager
	Stop()

	// GetJobs returns all registered jobs
	GetJobs() []Job
}
