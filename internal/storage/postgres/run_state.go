package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"pubgate/internal/domain"
)

type RunStateStore struct {
	db *sqlx.DB
}

func NewRunStateStore(db *sqlx.DB) *RunStateStore {
	return &RunStateStore{db: db}
}

func (s *RunStateStore) Get(ctx context.Context, sourceID string) (*domain.RunState, error) {
	var state domain.RunState
	query := `
		SELECT id, source_id, last_pass_at, last_item_key, total_posted
		FROM run_state
		WHERE source_id = $1`

	err := s.db.GetContext(ctx, &state, query, sourceID)
	if err == sql.ErrNoRows {
		// Return empty state for new sources
		return &domain.RunState{SourceID: sourceID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *RunStateStore) Update(ctx context.Context, state *domain.RunState) error {
	query := `
		INSERT INTO run_state (source_id, last_pass_at, last_item_key, total_posted)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_id) DO UPDATE SET
			last_pass_at = EXCLUDED.last_pass_at,
			last_item_key = EXCLUDED.last_item_key,
			total_posted = EXCLUDED.total_posted`

	_, err := s.db.ExecContext(ctx, query,
		state.SourceID,
		state.LastPassAt,
		state.LastItemKey,
		state.TotalPosted,
	)
	return err
}
