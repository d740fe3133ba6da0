package jobs

import (
	"context"

	"github.com/tenmatch/core/pkg/services"
)

// JobFetchResults is the ledger and lock name of the results-fetch job.
const JobFetchResults = "fetch_results"

type FetchResultsJob struct {
	results services.ResultsSyncer
}

func NewFetchResultsJob(results services.ResultsSyncer) Job {
	return &FetchResultsJob{
		results: results,
	}
}

func (j *FetchResultsJob) Execute(ctx context.Context) error {
	return j.results.SyncResults(ctx)
}

func (j *FetchResultsJob) Name() string {
	return JobFetchResults
}

func (j *FetchResultsJob) Schedule() string {
	// Every 30 minutes
	return "*/30 * * * *"
}
