// Package testrunner runs the evaluation suite through a remote HTTP service.
package testrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/longregen/promptforge/internal/adapters/circuitbreaker"
	"github.com/longregen/promptforge/internal/adapters/retry"
	"github.com/longregen/promptforge/internal/domain/models"
	"github.com/longregen/promptforge/internal/logging"
	"github.com/longregen/promptforge/internal/ports"
)

// maxErrorBody bounds how much of an error response is kept
const maxErrorBody = 512

// RunRequest is the body posted to the runner
type RunRequest struct {
	PromptID      string `json:"prompt_id"`
	VersionID     string `json:"version_id"`
	VersionNumber int    `json:"version_number"`
	Text          string `json:"text"`
}

// Client implements ports.TestRunner against POST {baseURL}/run
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      retry.BackoffConfig
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

var _ ports.TestRunner = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithRetry(cfg retry.BackoffConfig) Option {
	return func(cl *Client) { cl.retry = cfg }
}

func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(cl *Client) { cl.breaker = cb }
}

func NewClient(baseURL, apiKey string, logger *zap.Logger, opts ...Option) *Client {
	logger = logging.OrNop(logger)
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		retry:      retry.CollaboratorConfig(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = circuitbreaker.New(5, 30*time.Second, circuitbreaker.OnStateChange(func(from, to circuitbreaker.State) {
			logger.Warn("test runner circuit changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		}))
	}
	return c
}

// Run evaluates one version. Transient failures are retried with backoff;
// each attempt passes through the circuit breaker.
func (c *Client) Run(ctx context.Context, version *models.PromptVersion) (*models.Metrics, error) {
	if version == nil {
		return nil, errors.New("version is required")
	}

	body, err := json.Marshal(RunRequest{
		PromptID:      version.PromptID,
		VersionID:     version.ID,
		VersionNumber: version.VersionNumber,
		Text:          version.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var metrics models.Metrics
	err = retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.post(ctx, body, &metrics)
		})
	})
	if err != nil {
		c.logger.Warn("test runner failed",
			zap.String("version_id", version.ID),
			zap.Error(err))
		return nil, err
	}

	if err := validateMetrics(&metrics); err != nil {
		return nil, err
	}
	return &metrics, nil
}

func (c *Client) post(ctx context.Context, body []byte, out *models.Metrics) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &retry.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("failed to decode metrics: %w", err))
	}
	return nil
}

// validateMetrics rejects scores outside [0,1] and negative latencies
func validateMetrics(m *models.Metrics) error {
	for name, v := range map[string]float64{
		"success_rate": m.SuccessRate,
		"coherence":    m.Coherence,
		"relevance":    m.Relevance,
		"safety":       m.Safety,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("test runner returned %s %.3f outside [0,1]", name, v)
		}
	}
	if m.LatencyP50 < 0 || m.LatencyP95 < 0 {
		return errors.New("test runner returned a negative latency")
	}
	return nil
}
