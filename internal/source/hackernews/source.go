package hackernews

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pubgate/internal/domain"
)

const (
	SourceID   = "hackernews"
	SourceName = "Hacker News"

	searchPageSize = 50
)

// Config holds Hacker News source configuration.
type Config struct {
	BaseURL        string
	MaxItems       int
	Keywords       []string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source implements service.Source against the Algolia HN search API.
type Source struct {
	httpClient     *http.Client
	baseURL        string
	maxItems       int
	keywords       []string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// New creates a new Hacker News source.
func New(cfg Config, logger *slog.Logger) *Source {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	keywords := make([]string, 0, len(cfg.Keywords))
	for _, kw := range cfg.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}

	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		maxItems:       cfg.MaxItems,
		keywords:       keywords,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return SourceName
}

// Discover fetches current front page stories and keeps the keyword matches.
func (s *Source) Discover(ctx context.Context) ([]domain.ContentItem, error) {
	resp, err := s.fetchStories(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch stories: %w", err)
	}

	items := s.transform(resp.Hits)

	s.logger.Debug("discovered stories",
		"hits", len(resp.Hits),
		"matched", len(items),
	)

	return items, nil
}

func (s *Source) fetchStories(ctx context.Context) (*SearchResponse, error) {
	url := fmt.Sprintf("%s/search?tags=front_page&hitsPerPage=%d", s.baseURL, searchPageSize)

	var resp *SearchResponse
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		resp, err = s.doRequest(ctx, url)
		if err == nil {
			return resp, nil
		}

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
}

func (s *Source) doRequest(ctx context.Context, url string) (*SearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Pubgate/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &searchResp, nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

func (s *Source) transform(hits []Hit) []domain.ContentItem {
	var items []domain.ContentItem

	for _, h := range hits {
		if h.Title == "" || !s.matches(h.Title) {
			continue
		}

		// Stories without an external link are keyed by their HN page
		key := h.URL
		if key == "" {
			key = fmt.Sprintf("https://news.ycombinator.com/item?id=%s", h.ObjectID)
		}

		items = append(items, domain.ContentItem{
			Key:          key,
			SourceID:     SourceID,
			Title:        h.Title,
			URL:          key,
			DiscoveredAt: time.Now(),
		})

		if s.maxItems > 0 && len(items) >= s.maxItems {
			break
		}
	}

	return items
}

func (s *Source) matches(title string) bool {
	if len(s.keywords) == 0 {
		return true
	}

	lower := strings.ToLower(title)
	for _, kw := range s.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
