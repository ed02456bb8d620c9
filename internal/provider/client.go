// Package provider is the anti-corruption layer in front of the external
// channel-delivery service (push and in-app). All outbound calls go through
// a circuit breaker so a struggling provider fails fast instead of tying up
// dispatch workers.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"notifgate/internal/types"
)

// Config configures the provider client.
type Config struct {
	BaseURL string
	APIKey  types.SecretString
	Timeout time.Duration
}

// Client calls the delivery provider's send endpoint. It implements the
// queue.Provider contract.
type Client struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*sendResponse]
	logger  types.Logger
}

type sendResponse struct {
	DeliveryID string `json:"delivery_id"`
}

// NewClient creates a provider client.
func NewClient(cfg Config, httpClient *http.Client, logger types.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	cb := gobreaker.NewCircuitBreaker[*sendResponse](gobreaker.Settings{
		Name:        "delivery-provider",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Client{
		cfg:     cfg,
		client:  httpClient,
		breaker: cb,
		logger:  logger,
	}
}

// Send delivers one notification request to the provider and returns the
// provider-side delivery id. Failures are transient provider errors; the
// dispatch worker's retry budget decides how often to re-call.
func (c *Client) Send(ctx context.Context, req *types.NotificationRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode notification request", err)
	}

	resp, err := c.breaker.Execute(func() (*sendResponse, error) {
		return c.send(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", types.NewAppError(types.ErrCodeTransientProvider,
				"delivery provider circuit breaker is open", err)
		}
		return "", types.NewAppError(types.ErrCodeTransientProvider, "delivery provider call failed", err)
	}

	return resp.DeliveryID, nil
}

func (c *Client) send(ctx context.Context, body []byte) (*sendResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/send", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := c.cfg.APIKey.Unmask(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("provider returned %d", resp.StatusCode)
	}

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	if parsed.DeliveryID == "" {
		return nil, errors.New("provider response missing delivery_id")
	}
	return &parsed, nil
}
