// Package openai adapts an OpenAI-compatible chat-completion API (OpenAI,
// Nebius, Ollama's /v1 endpoint) into the pipeline's model client.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/louper-cloud/queryline/internal/domain"
	"github.com/louper-cloud/queryline/internal/metrics"
)

// Client is a thin completion adapter. It sends one prompt and returns raw
// text; it never retries (a generated query may carry side effects).
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	logger      *zap.Logger
}

// Config holds the completion provider settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
	Logger      *zap.Logger
}

// NewClient creates an OpenAI-compatible completion client.
func NewClient(cfg *Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		logger:      cfg.Logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Complete sends a system+user prompt pair and returns the raw completion
// text. Transport failures, timeouts, and empty responses wrap
// domain.ErrModelUnavailable; nothing else escapes this boundary.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if user == "" {
		return "", fmt.Errorf("%w: empty prompt", domain.ErrModelUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.ModelRequestsTotal.WithLabelValues(c.model, "error").Inc()
		metrics.ModelErrorsTotal.WithLabelValues(c.model, "api_error").Inc()
		return "", parseAPIError(err)
	}

	if len(resp.Choices) == 0 {
		metrics.ModelRequestsTotal.WithLabelValues(c.model, "error").Inc()
		metrics.ModelErrorsTotal.WithLabelValues(c.model, "empty_response").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrModelUnavailable)
	}

	metrics.ModelRequestsTotal.WithLabelValues(c.model, "success").Inc()
	metrics.ModelRequestDuration.WithLabelValues(c.model).Observe(duration.Seconds())

	if resp.Usage.TotalTokens > 0 {
		metrics.ModelTokensTotal.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.ModelTokensTotal.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))
		metrics.ModelTokensTotal.WithLabelValues(c.model, "total").Add(float64(resp.Usage.TotalTokens))
	}

	return resp.Choices[0].Message.Content, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrModelUnavailable for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrModelUnavailable

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("completion API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("completion API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("completion API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("completion request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
