package jobs

import (
	"context"

	"github.com/tenmatch/core/pkg/services"
)

// JobResolveCycles is the ledger and lock name of the cycle-resolution job.
const JobResolveCycles = "resolve_cycles"

type ResolveCyclesJob struct {
	resolver services.CycleResolver
}

func NewResolveCyclesJob(resolver services.CycleResolver) Job {
	return &ResolveCyclesJob{
		resolver: resolver,
	}
}

func (j *ResolveCyclesJob) Execute(ctx context.Context) error {
	_, err := j.resolver.ResolvePending(ctx)
	return err
}

func (j *ResolveCyclesJob) Name() string {
	return JobResolveCycles
}

func (j *ResolveCyclesJob) Schedule() string {
	// Every 15 minutes
	return "*/15 * * * *"
}
