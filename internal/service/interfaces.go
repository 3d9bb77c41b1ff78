package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"pubgate/internal/domain"
)

type Source interface {
	ID() string
	Name() string
	Discover(ctx context.Context) ([]domain.ContentItem, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, item domain.ContentItem) (string, error)
}

type Notifier interface {
	Send(ctx context.Context, req domain.ApprovalRequest) (string, error)
	Decisions(ctx context.Context) (<-chan domain.Decision, error)
	NotifyFailure(ctx context.Context, item domain.ContentItem, diagnostic string) error
}

type Publisher interface {
	Publish(ctx context.Context, item domain.ContentItem, text string) error
}

type Ledger interface {
	Has(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, rec *domain.ProcessedRecord) error
}

type RunStateStore interface {
	Get(ctx context.Context, sourceID string) (*domain.RunState, error)
	Update(ctx context.Context, state *domain.RunState) error
}

type OutcomeEvents interface {
	PublishOutcome(ctx context.Context, rec *domain.ProcessedRecord) error
	Close() error
}
