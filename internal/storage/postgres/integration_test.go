//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"pubgate/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_processed_items.up.sql"),
			filepath.Join(migrationsPath, "002_create_run_state.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM processed_items")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM run_state")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) TestLedgerStore_RecordThenHas() {
	store := NewLedgerStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	has, err := store.Has(s.ctx, "https://example.com/item-1")
	s.NoError(err)
	s.False(has)

	rec := &domain.ProcessedRecord{
		ItemKey:     "https://example.com/item-1",
		SourceID:    "test-source",
		Title:       "Test Item",
		Outcome:     domain.OutcomePosted,
		ProcessedAt: now,
	}
	err = store.Record(s.ctx, rec)
	s.NoError(err)

	has, err = store.Has(s.ctx, "https://example.com/item-1")
	s.NoError(err)
	s.True(has)

	var outcome string
	err = s.db.GetContext(s.ctx, &outcome,
		"SELECT outcome FROM processed_items WHERE item_key = $1", rec.ItemKey)
	s.NoError(err)
	s.Equal("posted", outcome)
}

func (s *PostgresIntegrationSuite) TestLedgerStore_RecordDuplicateKey() {
	store := NewLedgerStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	rec := &domain.ProcessedRecord{
		ItemKey:     "https://example.com/item-1",
		SourceID:    "test-source",
		Title:       "Test Item",
		Outcome:     domain.OutcomePosted,
		ProcessedAt: now,
	}
	err := store.Record(s.ctx, rec)
	s.NoError(err)

	dup := &domain.ProcessedRecord{
		ItemKey:     "https://example.com/item-1",
		SourceID:    "test-source",
		Title:       "Test Item",
		Outcome:     domain.OutcomeIgnored,
		ProcessedAt: now.Add(time.Minute),
	}
	err = store.Record(s.ctx, dup)
	s.ErrorIs(err, domain.ErrAlreadyRecorded)

	// first write stays untouched
	var outcome string
	err = s.db.GetContext(s.ctx, &outcome,
		"SELECT outcome FROM processed_items WHERE item_key = $1", rec.ItemKey)
	s.NoError(err)
	s.Equal("posted", outcome)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM processed_items")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestLedgerStore_ConcurrentDistinctKeys() {
	store := NewLedgerStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Record(s.ctx, &domain.ProcessedRecord{
				ItemKey:     "https://example.com/item-" + string(rune('a'+i)),
				SourceID:    "test-source",
				Title:       "Test Item",
				Outcome:     domain.OutcomeTimedOut,
				ProcessedAt: now,
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		s.NoError(err)
	}

	var count int
	err := s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM processed_items")
	s.NoError(err)
	s.Equal(n, count)
}

func (s *PostgresIntegrationSuite) TestRunStateStore_GetNew() {
	store := NewRunStateStore(s.db)

	state, err := store.Get(s.ctx, "new-source")
	s.NoError(err)
	s.NotNil(state)
	s.Equal("new-source", state.SourceID)
	s.True(state.LastPassAt.IsZero())
	s.Equal(int64(0), state.TotalPosted)
}

func (s *PostgresIntegrationSuite) TestRunStateStore_UpdateAndGet() {
	store := NewRunStateStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	state := &domain.RunState{
		SourceID:    "test-source",
		LastPassAt:  now,
		LastItemKey: "https://example.com/item-9",
		TotalPosted: 42,
	}
	err := store.Update(s.ctx, state)
	s.NoError(err)

	retrieved, err := store.Get(s.ctx, "test-source")
	s.NoError(err)
	s.Equal("test-source", retrieved.SourceID)
	s.Equal("https://example.com/item-9", retrieved.LastItemKey)
	s.Equal(int64(42), retrieved.TotalPosted)
	s.WithinDuration(now, retrieved.LastPassAt, time.Second)
}

func (s *PostgresIntegrationSuite) TestRunStateStore_UpdateExisting() {
	store := NewRunStateStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	state := &domain.RunState{
		SourceID:    "test-source",
		LastPassAt:  now,
		LastItemKey: "https://example.com/item-1",
		TotalPosted: 10,
	}
	err := store.Update(s.ctx, state)
	s.NoError(err)

	state.LastItemKey = "https://example.com/item-2"
	state.TotalPosted = 20
	err = store.Update(s.ctx, state)
	s.NoError(err)

	retrieved, err := store.Get(s.ctx, "test-source")
	s.NoError(err)
	s.Equal("https://example.com/item-2", retrieved.LastItemKey)
	s.Equal(int64(20), retrieved.TotalPosted)
}
