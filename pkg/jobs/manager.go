package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/tenmatch/core/pkg/logger"
	"github.com/tenmatch/core/pkg/models"
)

// scheduledTickTimeout is the outer safety net around one cron firing. The
// coordinator enforces the real per-job deadline (the lock TTL) inside it.
const scheduledTickTimeout = 30 * time.Minute

type registration struct {
	job Job
	cfg Config
}

// Orchestrator owns the cron schedule and pushes every firing through the
// Coordinator, so scheduled, startup and manual executions share the same
// locks and ledger records.
type Orchestrator struct {
	cron        *cron.Cron
	coordinator *Coordinator
	registry    map[string]registration
	order       []string
	logger      *logger.Logger
}

func NewOrchestrator(coordinator *Coordinator) *Orchestrator {
	return &Orchestrator{
		cron:        cron.New(cron.WithLocation(time.UTC)),
		coordinator: coordinator,
		registry:    make(map[string]registration),
		logger:      logger.New("schedule-orchestrator"),
	}
}

// RegisterJob declares a job with its coordination parameters. Declarations
// are immutable once made.
func (m *Orchestrator) RegisterJob(job Job, cfg Config) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}
	name := job.Name()
	if _, exists := m.registry[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	m.logger.Info().
		Str("action", "register_job").
		Str("job_name", name).
		Str("schedule", job.Schedule()).
		Strs("dependencies", cfg.Dependencies).
		Bool("run_at_startup", cfg.RunAtStartup).
		Msg("Registering job")

	_, err := m.cron.AddFunc(job.Schedule(), func() {
		m.runScheduled(job, cfg)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	m.registry[name] = registration{job: job, cfg: cfg}
	m.order = append(m.order, name)
	return nil
}

func (m *Orchestrator) runScheduled(job Job, cfg Config) {
	requestID := uuid.New().String()
	jobLogger := m.logger.WithRequestID(requestID).WithJob(job.Name())

	ctx, cancel := context.WithTimeout(context.Background(), scheduledTickTimeout)
	defer cancel()
	ctx = jobLogger.ToContext(ctx)

	jobLogger.LogJobStart(job.Name(), job.Schedule())
	outcome := m.coordinator.Run(ctx, job, cfg)

	switch outcome.Status {
	case models.RunCompleted:
		jobLogger.LogJobComplete(job.Name(), outcome.Duration, outcome.Attempts)
	case models.RunSkipped:
		jobLogger.Info().
			Str("action", "job_skipped").
			Str("reason", outcome.Reason).
			Msg("Scheduled run skipped")
	case models.RunFailed:
		jobLogger.Error().
			Err(outcome.Err).
			Str("action", "job_failed").
			Dur("duration", outcome.Duration).
			Msg("Scheduled run failed")
	}
}

// Start runs the startup jobs once, then begins the schedule.
func (m *Orchestrator) Start() {
	m.logger.Info().
		Str("action", "start").
		Int("job_count", len(m.registry)).
		Msg("Starting schedule orchestrator")

	m.runStartupJobs()
	m.cron.Start()
}

// runStartupJobs executes jobs flagged RunAtStartup in priority order. They
// go through the coordinator like any other run, so replicas starting
// together race for the lock instead of duplicating work.
func (m *Orchestrator) runStartupJobs() {
	names := make([]string, 0, len(m.order))
	for _, name := range m.order {
		if m.registry[name].cfg.RunAtStartup {
			names = append(names, name)
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		return m.registry[names[i]].cfg.Priority < m.registry[names[j]].cfg.Priority
	})

	for _, name := range names {
		reg := m.registry[name]

		m.logger.Info().
			Str("job_name", name).
			Str("action", "startup_job_start").
			Msg("Running job on startup")

		requestID := uuid.New().String()
		jobLogger := m.logger.WithRequestID(requestID).WithJob(name)

		ctx, cancel := context.WithTimeout(context.Background(), scheduledTickTimeout)
		ctx = jobLogger.ToContext(ctx)

		outcome := m.coordinator.Run(ctx, reg.job, reg.cfg)
		if outcome.Status == models.RunFailed {
			jobLogger.Error().
				Err(outcome.Err).
				Str("action", "startup_job_failed").
				Dur("duration", outcome.Duration).
				Msg("Startup job execution failed")
		} else {
			jobLogger.LogJobComplete(name, outcome.Duration, outcome.Attempts)
		}

		cancel()
	}
}

// Trigger runs a registered job immediately through the identical
// coordination path as a scheduled firing.
func (m *Orchestrator) Trigger(ctx context.Context, name string) (Outcome, error) {
	reg, ok := m.registry[name]
	if !ok {
		return Outcome{}, fmt.Errorf("unknown job: %s", name)
	}
	return m.coordinator.Run(ctx, reg.job, reg.cfg), nil
}

// TriggerFunc runs fn under the named job's lock, ledger name and
// dependency rules. Manual variants such as single-cycle resolution use
// this so they stay mutually exclusive with the scheduled job.
func (m *Orchestrator) TriggerFunc(ctx context.Context, name string, fn func(context.Context) error) (Outcome, error) {
	reg, ok := m.registry[name]
	if !ok {
		return Outcome{}, fmt.Errorf("unknown job: %s", name)
	}
	adhoc := &adhocJob{name: name, schedule: reg.job.Schedule(), fn: fn}
	return m.coordinator.Run(ctx, adhoc, reg.cfg), nil
}

// Stop gracefully shuts down the schedule and waits for running jobs.
func (m *Orchestrator) Stop() {
	m.logger.Info().
		Str("action", "stop_initiated").
		Msg("Stopping schedule orchestrator")

	ctx := m.cron.Stop()
	<-ctx.Done()

	m.logger.Info().
		Str("action", "stopped").
		Msg("Schedule orchestrator stopped")
}

// GetJobs returns all registered jobs in registration order.
func (m *Orchestrator) GetJobs() []Job {
	out := make([]Job, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.registry[name].job)
	}
	return out
}

// adhocJob adapts a bare function to the Job interface for manual triggers.
type adhocJob struct {
	name     string
	schedule string
	fn       func(context.Context) error
}

func (j *adhocJob) Execute(ctx context.Context) error { return j.fn(ctx) }
func (j *adhocJob) Name() string                      { return j.name }
func (j *adhocJob) Schedule() string                  { return j.schedule }
