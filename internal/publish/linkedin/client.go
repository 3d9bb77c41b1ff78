package linkedin

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
	"pubgate/internal/publish"
)

// Config holds LinkedIn share client configuration.
type Config struct {
	BaseURL     string
	AccessToken string
	AuthorURN   string
	PostPrefix  string
	PostSuffix  string
	Timeout     time.Duration
}

// Client posts approved summaries as LinkedIn shares through the ugcPosts
// REST endpoint. Every failure is classified at this boundary: the gateway
// only ever sees publish.Transient or publish.Permanent errors.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	authorURN   string
	postPrefix  string
	postSuffix  string
	logger      *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		authorURN:   cfg.AuthorURN,
		postPrefix:  cfg.PostPrefix,
		postSuffix:  cfg.PostSuffix,
		logger:      logger.With("component", "linkedin"),
	}
}

// Post publishes text for item as a public share.
func (c *Client) Post(ctx context.Context, item domain.ContentItem, text string) error {
	body := sharePost{
		Author:         c.authorURN,
		LifecycleState: "PUBLISHED",
		SpecificContent: specificContent{
			ShareContent: shareContent{
				ShareCommentary:    commentary{Text: c.composeBody(item, text)},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: visibility{
			MemberNetworkVisibility: "PUBLIC",
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return publish.Permanent(fmt.Errorf("marshal share: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v2/ugcPosts", bytes.NewReader(payload))
	if err != nil {
		return publish.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return publish.Transient(fmt.Errorf("post share: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		var share shareResponse
		if err := json.NewDecoder(resp.Body).Decode(&share); err == nil && share.ID != "" {
			c.logger.Info("share posted", "item_key", item.Key, "share_id", share.ID)
		} else {
			c.logger.Info("share posted", "item_key", item.Key)
		}
		return nil
	}

	return c.classifyStatus(resp)
}

// composeBody assembles the final post: configured prefix line, the summary,
// the read-more trailer, configured suffix line.
func (c *Client) composeBody(item domain.ContentItem, text string) string {
	var b strings.Builder
	if c.postPrefix != "" {
		b.WriteString(c.postPrefix)
		b.WriteString("\n\n")
	}
	b.WriteString(text)
	if item.URL != "" {
		b.WriteString("\n\nRead more: ")
		b.WriteString(item.URL)
	}
	if c.postSuffix != "" {
		b.WriteString("\n\n")
		b.WriteString(c.postSuffix)
	}
	return b.String()
}

// classifyStatus maps an error response to the retry taxonomy: rate limits
// and server-side failures are worth retrying, everything else in the 4xx
// range means the share itself is unacceptable.
func (c *Client) classifyStatus(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	detail := strings.TrimSpace(string(raw))
	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
		detail = apiErr.Message
	}

	err := fmt.Errorf("linkedin api status %d: %s", resp.StatusCode, detail)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return publish.Transient(err)
	}
	return publish.Permanent(err)
}
