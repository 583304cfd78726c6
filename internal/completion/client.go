// Package completion wraps the chat completion backend used by the answer
// generator. OpenAI-compatible endpoints (OpenAI, DeepSeek, local proxies)
// are selected by configuration; transient upstream failures are retried
// with exponential backoff before the caller sees an error.
package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/and27/supportops/internal/config"
	"github.com/and27/supportops/pkg/contracts"
)

// retryableStatus reports whether an upstream HTTP status is worth retrying.
func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// Client implements contracts.CompletionClient over an OpenAI-compatible
// chat completions endpoint.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
	attempts  int
}

// Option configures the client.
type Option func(*Client)

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithRetryAttempts sets how many retries follow the initial request.
func WithRetryAttempts(n int) Option {
	return func(c *Client) { c.attempts = n }
}

// New creates a completion client for an OpenAI-compatible endpoint.
// baseURL is optional; empty uses the OpenAI default.
func New(apiKey, model, baseURL string, opts ...Option) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	c := &Client{
		api:       openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: 256,
		attempts:  2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig builds the configured completion client, or nil when no
// provider is configured (the answer generator then uses its template
// fallback).
func FromConfig(cfg config.CompletionConfig) contracts.CompletionClient {
	if cfg.Provider == "" || cfg.APIKey == "" {
		return nil
	}
	baseURL := cfg.BaseURL
	if cfg.Provider == "deepseek" && baseURL == "" {
		baseURL = "https://api.deepseek.com/v1"
	}
	return New(cfg.APIKey, cfg.Model, baseURL,
		WithMaxTokens(cfg.MaxTokens),
		WithRetryAttempts(cfg.RetryAttempts))
}

// Complete sends a system/user message pair and returns the reply text.
// Rate-limit and server errors (429, 5xx) are retried with exponential
// backoff and jitter; any other failure returns immediately.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	var reply string
	operation := func() error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) && retryableStatus(apiErr.HTTPStatusCode) {
				log.Warn().Int("status", apiErr.HTTPStatusCode).Str("model", c.model).Msg("Completion request failed, retrying")
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("completion returned no choices"))
		}
		reply = resp.Choices[0].Message.Content
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(c.attempts)), ctx))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return reply, nil
}
