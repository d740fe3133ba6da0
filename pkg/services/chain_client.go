package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tenmatch/core/internal/config"
	"github.com/tenmatch/core/pkg/logger"
	"github.com/tenmatch/core/pkg/models"
)

type resolutionRequest struct {
	CycleID  int64                `json:"cycle_id"`
	Outcomes []models.OutcomePair `json:"outcomes"`
}

type batchResolutionRequest struct {
	Resolutions []resolutionRequest `json:"resolutions"`
}

type relayerReceipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber *int64 `json:"block_number"`
}

type relayerErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChainClient talks to the resolution relayer, which signs and submits the
// actual settlement transactions. Every error it returns carries an
// ErrorKind; callers branch on the kind, not on the relayer's wording.
type ChainClient struct {
	relayerURL string
	apiKey     string
	maxBatch   int
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

func NewChainClient(cfg *config.Config) *ChainClient {
	return &ChainClient{
		relayerURL: cfg.Chain.RelayerURL,
		apiKey:     cfg.Chain.APIKey,
		maxBatch:   cfg.Chain.MaxBatchSize,
		logger:     logger.New("chain-client"),
		client: &http.Client{
			Timeout: time.Duration(cfg.Chain.Timeout) * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "chain-relayer",
			MaxRequests: 1,
			Interval:    2 * time.Minute,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			// Definitive contract answers (already resolved, rejected) are
			// availability-wise fine; only transient faults may trip.
			IsSuccessful: func(err error) bool {
				return err == nil || !KindOf(err).Retryable()
			},
		}),
	}
}

// SubmitResolution submits one cycle's ten outcome pairs.
func (c *ChainClient) SubmitResolution(ctx context.Context, cycleID int64, outcomes [models.CycleSize]models.OutcomePair) (TxReceipt, error) {
	body := resolutionRequest{CycleID: cycleID, Outcomes: outcomes[:]}
	return c.submit(ctx, "/v1/resolutions", body, cycleID)
}

// SubmitResolutionBatch settles up to maxBatch cycles in a single relayer
// call. The relayer folds them into one transaction.
func (c *ChainClient) SubmitResolutionBatch(ctx context.Context, cycleIDs []int64, outcomes [][models.CycleSize]models.OutcomePair) (TxReceipt, error) {
	if len(cycleIDs) != len(outcomes) {
		return TxReceipt{}, NewResolutionError(KindInvariant, 0,
			fmt.Errorf("batch has %d cycles but %d payloads", len(cycleIDs), len(outcomes)))
	}
	if len(cycleIDs) == 0 {
		return TxReceipt{}, NewResolutionError(KindInvariant, 0, errors.New("empty batch"))
	}
	if len(cycleIDs) > c.maxBatch {
		return TxReceipt{}, NewResolutionError(KindInvariant, 0,
			fmt.Errorf("batch of %d exceeds limit %d", len(cycleIDs), c.maxBatch))
	}

	req := batchResolutionRequest{Resolutions: make([]resolutionRequest, len(cycleIDs))}
	for i, id := range cycleIDs {
		req.Resolutions[i] = resolutionRequest{CycleID: id, Outcomes: outcomes[i][:]}
	}
	return c.submit(ctx, "/v1/resolutions/batch", req, 0)
}

func (c *ChainClient) submit(ctx context.Context, path string, payload any, cycleID int64) (TxReceipt, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, path, payload, cycleID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return TxReceipt{}, NewResolutionError(KindTransient, cycleID, err)
		}
		return TxReceipt{}, err
	}

	receipt := res.(relayerReceipt)
	return TxReceipt{TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber}, nil
}

func (c *ChainClient) post(ctx context.Context, path string, payload any, cycleID int64) (relayerReceipt, error) {
	var receipt relayerReceipt

	body, err := json.Marshal(payload)
	if err != nil {
		return receipt, NewResolutionError(KindInvariant, cycleID, fmt.Errorf("failed to encode payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayerURL+path, bytes.NewReader(body))
	if err != nil {
		return receipt, NewResolutionError(KindTransient, cycleID, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.LogAPICall(http.MethodPost, c.relayerURL+path, 0, time.Since(start), err)
		return receipt, NewResolutionError(KindTransient, cycleID, fmt.Errorf("failed to make request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()
	c.logger.LogAPICall(http.MethodPost, c.relayerURL+path, resp.StatusCode, time.Since(start), nil)

	if resp.StatusCode != http.StatusOK {
		var errBody relayerErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return receipt, classifyRelayerError(resp.StatusCode, errBody, cycleID)
	}

	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return receipt, NewResolutionError(KindTransient, cycleID, fmt.Errorf("failed to decode response: %w", err))
	}
	if receipt.TxHash == "" {
		return receipt, NewResolutionError(KindTransient, cycleID, errors.New("relayer returned empty tx hash"))
	}

	return receipt, nil
}

// classifyRelayerError maps relayer HTTP responses onto the error taxonomy.
// The structured code in the body wins over the status class.
func classifyRelayerError(status int, body relayerErrorBody, cycleID int64) *ResolutionError {
	kind := KindTransient
	switch {
	case status == http.StatusConflict:
		kind = KindAlreadyResolved
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind = KindChainRejected
	}

	switch body.Code {
	case "ALREADY_RESOLVED":
		kind = KindAlreadyResolved
	case "INVALID_PAYLOAD", "REJECTED":
		kind = KindChainRejected
	}

	msg := body.Message
	if msg == "" {
		msg = fmt.Sprintf("relayer returned status %d", status)
	}
	return NewResolutionError(kind, cycleID, errors.New(msg))
}
