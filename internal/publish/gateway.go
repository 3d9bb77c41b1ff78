package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"

	"pubgate/internal/config"
	"pubgate/internal/domain"
)

// FailedError is the terminal publish outcome once the attempt budget is
// spent. Snapshot names the diagnostic file written for operator inspection,
// empty when the write itself failed.
type FailedError struct {
	ItemKey  string
	Attempts int
	Snapshot string
	Err      error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("publish %s failed after %d attempt(s): %v", e.ItemKey, e.Attempts, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// Gateway wraps a Poster with bounded retries. Publish always returns a
// definite outcome: nil, or a *FailedError carrying the last attempt's error.
type Gateway struct {
	poster Poster
	cfg    config.PublishConfig
	policy retrypolicy.RetryPolicy[any]
	logger *slog.Logger
}

func NewGateway(poster Poster, cfg config.PublishConfig, logger *slog.Logger) *Gateway {
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = 1 * time.Second
	}
	if cfg.Retry.MaxBackoff < cfg.Retry.InitialBackoff {
		cfg.Retry.MaxBackoff = cfg.Retry.InitialBackoff
	}

	policy := retrypolicy.NewBuilder[any]().
		WithBackoff(cfg.Retry.InitialBackoff, cfg.Retry.MaxBackoff).
		WithMaxRetries(cfg.Retry.MaxAttempts - 1).
		WithJitterFactor(0.1).
		HandleIf(func(_ any, err error) bool {
			return IsTransient(err)
		}).
		Build()

	return &Gateway{
		poster: poster,
		cfg:    cfg,
		policy: policy,
		logger: logger,
	}
}

// Publish posts text for item through the retry policy. Transient failures
// are retried with exponential backoff; permanent or unclassified ones fail
// on the first attempt.
func (g *Gateway) Publish(ctx context.Context, item domain.ContentItem, text string) error {
	var (
		attempts int
		lastErr  error
	)

	_, err := failsafe.With(g.policy).WithContext(ctx).Get(func() (any, error) {
		attempts++
		if err := g.poster.Post(ctx, item, text); err != nil {
			lastErr = err
			g.logger.Warn("publish attempt failed",
				"item_key", item.Key,
				"attempt", attempts,
				"error", err,
			)
			return nil, err
		}
		return nil, nil
	})
	if err == nil {
		return nil
	}
	if lastErr == nil {
		lastErr = err
	}

	snapshot := g.writeSnapshot(item, text, attempts, lastErr)

	g.logger.Error("publish failed",
		"item_key", item.Key,
		"attempts", attempts,
		"snapshot", snapshot,
		"error", lastErr,
	)

	return &FailedError{
		ItemKey:  item.Key,
		Attempts: attempts,
		Snapshot: snapshot,
		Err:      lastErr,
	}
}

type failureSnapshot struct {
	ItemKey   string    `json:"item_key"`
	SourceID  string    `json:"source_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Text      string    `json:"text"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// writeSnapshot dumps the failed post for later inspection. Best effort: a
// snapshot failure never masks the publish failure itself.
func (g *Gateway) writeSnapshot(item domain.ContentItem, text string, attempts int, cause error) string {
	if g.cfg.SnapshotDir == "" {
		return ""
	}
	if err := os.MkdirAll(g.cfg.SnapshotDir, 0o755); err != nil {
		g.logger.Warn("create snapshot dir", "error", err)
		return ""
	}

	snap := failureSnapshot{
		ItemKey:   item.Key,
		SourceID:  item.SourceID,
		Title:     item.Title,
		URL:       item.URL,
		Text:      text,
		Attempts:  attempts,
		Error:     cause.Error(),
		Timestamp: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		g.logger.Warn("marshal snapshot", "error", err)
		return ""
	}

	name := fmt.Sprintf("failure_%s_%s.json",
		snap.Timestamp.Format("20060102_150405"), uuid.NewString()[:8])
	path := filepath.Join(g.cfg.SnapshotDir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		g.logger.Warn("write snapshot", "error", err)
		return ""
	}
	return path
}
