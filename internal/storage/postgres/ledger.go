package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"pubgate/internal/domain"
)

type LedgerStore struct {
	db *sqlx.DB
}

func NewLedgerStore(db *sqlx.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Has reports whether an outcome has already been recorded for key.
func (s *LedgerStore) Has(ctx context.Context, key string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM processed_items WHERE item_key = $1)`

	if err := s.db.GetContext(ctx, &exists, query, key); err != nil {
		return false, err
	}
	return exists, nil
}

// Record persists the terminal outcome for rec's item key. The unique
// constraint on item_key enforces idempotency: a second record for the same
// key returns domain.ErrAlreadyRecorded and leaves the first row untouched.
func (s *LedgerStore) Record(ctx context.Context, rec *domain.ProcessedRecord) error {
	query := `
		INSERT INTO processed_items (item_key, source_id, title, outcome, processed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (item_key) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		rec.ItemKey,
		rec.SourceID,
		rec.Title,
		rec.Outcome,
		rec.ProcessedAt,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrAlreadyRecorded
	}
	return nil
}
