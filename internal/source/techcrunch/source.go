package techcrunch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pubgate/internal/domain"
)

const (
	SourceID   = "techcrunch"
	SourceName = "TechCrunch"
)

// Config holds TechCrunch source configuration.
type Config struct {
	BaseURL  string
	MaxItems int
	Timeout  time.Duration
}

// Source implements service.Source by scraping the TechCrunch front page.
type Source struct {
	httpClient *http.Client
	baseURL    string
	maxItems   int
	logger     *slog.Logger
}

// New creates a new TechCrunch source.
func New(cfg Config, logger *slog.Logger) *Source {
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		maxItems: cfg.MaxItems,
		logger:   logger.With("source", SourceID),
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

// Discover scrapes the front page and returns the listed articles.
func (s *Source) Discover(ctx context.Context) ([]domain.ContentItem, error) {
	doc, err := s.fetchDocument(ctx, s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("fetch front page: %w", err)
	}

	items := s.extractItems(doc)

	s.logger.Debug("discovered articles", "count", len(items))

	return items, nil
}

func (s *Source) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", "Pubgate/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func (s *Source) extractItems(doc *goquery.Document) []domain.ContentItem {
	var items []domain.ContentItem
	seen := make(map[string]struct{})

	// Card layout first, legacy river layout as fallback
	links := doc.Find("a.loop-card__title-link")
	if links.Length() == 0 {
		links = doc.Find("h2.post-block__title a")
	}

	links.EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, ok := link.Attr("href")
		if !ok {
			return true
		}

		href = s.absoluteURL(strings.TrimSpace(href))
		title := strings.TrimSpace(link.Text())
		if href == "" || title == "" {
			return true
		}

		if _, dup := seen[href]; dup {
			return true
		}
		seen[href] = struct{}{}

		items = append(items, domain.ContentItem{
			Key:          href,
			SourceID:     SourceID,
			Title:        title,
			URL:          href,
			DiscoveredAt: time.Now(),
		})

		return s.maxItems <= 0 || len(items) < s.maxItems
	})

	return items
}

func (s *Source) absoluteURL(href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		return ""
	}
	return s.baseURL + href
}
