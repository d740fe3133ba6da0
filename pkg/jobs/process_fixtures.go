package jobs

import (
	"context"

	"github.com/tenmatch/core/pkg/services"
)

// JobProcessFixtures is the ledger and lock name of the fixture-processing
// job that derives contract outcomes for finished matches.
const JobProcessFixtures = "process_finished_fixtures"

type ProcessFixturesJob struct {
	fixtures services.FixtureProcessor
}

func NewProcessFixturesJob(fixtures services.FixtureProcessor) Job {
	return &ProcessFixturesJob{
		fixtures: fixtures,
	}
}

func (j *ProcessFixturesJob) Execute(ctx context.Context) error {
	return j.fixtures.ProcessFinishedFixtures(ctx)
}

func (j *ProcessFixturesJob) Name() string {
	return JobProcessFixtures
}

func (j *ProcessFixturesJob) Schedule() string {
	// Every 5 minutes so readiness sees derivations quickly
	return "*/5 * * * *"
}
