package services

import (
	"context"
	"time"

	"github.com/tenmatch/core/pkg/models"
)

// ResultsSyncer pulls provider results for the matches the pipeline still
// needs and persists them.
type ResultsSyncer interface {
	SyncResults(ctx context.Context) error
}

// FixtureProcessor derives contract outcomes for finished fixtures.
type FixtureProcessor interface {
	ProcessFinishedFixtures(ctx context.Context) error
}

// CycleResolver settles due cycles on chain.
type CycleResolver interface {
	ResolvePending(ctx context.Context) ([]models.ResolutionAttempt, error)
	ResolveCycle(ctx context.Context, cycleID int64) (*models.ResolutionAttempt, error)
}

// ProviderMatchResult is one fixture snapshot from the upstream feed.
type ProviderMatchResult struct {
	MatchID   int64
	HomeTeam  string
	AwayTeam  string
	KickoffAt time.Time
	Status    models.MatchStatus
	HomeScore *int32
	AwayScore *int32
}

// ResultProvider is the upstream results feed. GetMatchResult returns nil
// when the provider does not know the fixture yet.
type ResultProvider interface {
	GetMatchResult(ctx context.Context, matchID int64) (*ProviderMatchResult, error)
}

// TxReceipt identifies a settlement transaction accepted by the relayer.
type TxReceipt struct {
	TxHash      string
	BlockNumber *int64
}

// ChainSubmitter submits resolution payloads to the settlement contract.
type ChainSubmitter interface {
	SubmitResolution(ctx context.Context, cycleID int64, outcomes [models.CycleSize]models.OutcomePair) (TxReceipt, error)
	SubmitResolutionBatch(ctx context.Context, cycleIDs []int64, outcomes [][models.CycleSize]models.OutcomePair) (TxReceipt, error)
}
