package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pubgate/internal/domain"
)

const defaultPrompt = "Summarize the following article in 3-4 sentences for a professional audience. Plain text only, no hashtags."

// Config holds summarizer configuration.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	Prompt    string
	MaxTokens int
	Timeout   time.Duration
}

// Client drafts post text with an OpenAI-compatible chat completions API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	prompt     string
	maxTokens  int
	logger     *slog.Logger
}

// New creates a new summarizer client.
func New(cfg Config, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.Prompt) == "" {
		cfg.Prompt = defaultPrompt
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		prompt:    cfg.Prompt,
		maxTokens: cfg.MaxTokens,
		logger:    logger.With("component", "summarizer"),
	}
}

// Summarize drafts the post text for one item.
func (c *Client) Summarize(ctx context.Context, item domain.ContentItem) (string, error) {
	if c.apiKey == "" || c.model == "" {
		return "", fmt.Errorf("summarizer misconfigured")
	}

	body, err := json.Marshal(ChatRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: c.prompt},
			{Role: "user", Content: fmt.Sprintf("Title: %s\nURL: %s", item.Title, item.URL)},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("completion error %s: %s", resp.Status, strings.TrimSpace(string(excerpt)))
	}

	var completion ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	summary := strings.TrimSpace(completion.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("empty summary in response")
	}

	c.logger.Debug("summary drafted",
		"item_key", item.Key,
		"length", len(summary),
		"total_tokens", completion.Usage.TotalTokens,
	)

	return summary, nil
}
