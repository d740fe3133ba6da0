package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tenmatch/core/internal/config"
	"github.com/tenmatch/core/pkg/models"
)

// providerResultPayload mirrors the feed's result document.
type providerResultPayload struct {
	MatchID   int64     `json:"match_id"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	KickoffAt time.Time `json:"kickoff_utc"`
	Status    string    `json:"status"`
	HomeScore *int32    `json:"home_score"`
	AwayScore *int32    `json:"away_score"`
}

// ProviderClient fetches fixture results from the upstream feed. A circuit
// breaker sheds calls while the feed is degraded; an open breaker surfaces
// to callers as an ordinary transient error.
type ProviderClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewProviderClient(cfg *config.Config) *ProviderClient {
	return &ProviderClient{
		baseURL: cfg.Provider.BaseURL,
		apiKey:  cfg.Provider.APIKey,
		client: &http.Client{
			Timeout: time.Duration(cfg.Provider.Timeout) * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "results-provider",
			MaxRequests: 3,
			Interval:    2 * time.Minute,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// GetMatchResult returns the provider's current view of one fixture, or nil
// when the provider does not know the fixture yet.
func (c *ProviderClient) GetMatchResult(ctx context.Context, matchID int64) (*ProviderMatchResult, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchResult(ctx, matchID)
	})
	if err != nil {
		return nil, err
	}

	payload, ok := res.(*providerResultPayload)
	if !ok || payload == nil {
		return nil, nil
	}

	return &ProviderMatchResult{
		MatchID:   payload.MatchID,
		HomeTeam:  payload.HomeTeam,
		AwayTeam:  payload.AwayTeam,
		KickoffAt: payload.KickoffAt,
		Status:    mapProviderStatus(payload.Status),
		HomeScore: payload.HomeScore,
		AwayScore: payload.AwayScore,
	}, nil
}

func (c *ProviderClient) fetchResult(ctx context.Context, matchID int64) (*providerResultPayload, error) {
	url := fmt.Sprintf("%s/v1/matches/%d/result", c.baseURL, matchID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var result providerResultPayload
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// mapProviderStatus collapses the feed's status vocabulary onto the three
// states the pipeline cares about. Anything that is not clearly live or
// finished stays scheduled so a fixture is never finalized early.
func mapProviderStatus(s string) models.MatchStatus {
	switch s {
	case "finished", "full_time", "after_extra_time", "after_penalties":
		return models.MatchFinished
	case "live", "in_play", "half_time":
		return models.MatchLive
	default:
		return models.MatchScheduled
	}
}
