// Package openrouter checks that an OpenRouter API key and model answer
// chat completions.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"fbscrape/internal/config"
)

var ErrNoAPIKey = errors.New("openrouter api key is not set")

const testPrompt = "This is a connection test. Reply with one word: works"

type Client struct {
	http   *resty.Client
	model  string
	apiKey string
	logger logrus.FieldLogger
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Reply is the result of a connection test.
type Reply struct {
	Model       string
	Content     string
	TotalTokens int
	Latency     time.Duration
}

func NewClient(cfg config.OpenRouterConfig, logger logrus.FieldLogger) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Title", "fbscrape").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() >= 500
		})

	return &Client{
		http:   c,
		model:  cfg.Model,
		apiKey: cfg.APIKey,
		logger: logger,
	}
}

// TestConnection sends a short chat completion and returns the model's reply.
func (c *Client) TestConnection(ctx context.Context) (*Reply, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	var out chatResponse
	var apiErr apiError
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:       c.model,
			Messages:    []Message{{Role: "user", Content: testPrompt}},
			MaxTokens:   10,
			Temperature: 0.1,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("failed to reach openrouter: %w", err)
	}
	if resp.IsError() {
		return nil, statusError(resp, apiErr)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openrouter returned no choices")
	}

	reply := &Reply{
		Model:       out.Model,
		Content:     strings.TrimSpace(out.Choices[0].Message.Content),
		TotalTokens: out.Usage.TotalTokens,
		Latency:     time.Since(start),
	}
	c.logger.WithFields(logrus.Fields{
		"model":   reply.Model,
		"tokens":  reply.TotalTokens,
		"latency": reply.Latency.Round(time.Millisecond),
	}).Info("OpenRouter connection OK")
	return reply, nil
}

// ListModels returns the IDs of the models available to the key.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Get("/models")
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	if resp.IsError() {
		return nil, statusError(resp, apiErr)
	}

	ids := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func statusError(resp *resty.Response, apiErr apiError) error {
	if apiErr.Error.Message != "" {
		return fmt.Errorf("openrouter returned %d: %s", resp.StatusCode(), apiErr.Error.Message)
	}
	return fmt.Errorf("openrouter returned %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
}
