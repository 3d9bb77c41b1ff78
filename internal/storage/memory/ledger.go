package memory

import (
	"context"
	"sync"

	"pubgate/internal/domain"
)

// Ledger keeps processed records in memory for runs without a database.
// Contents do not survive a restart, so dedup holds only for the process
// lifetime.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]domain.ProcessedRecord
}

func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]domain.ProcessedRecord)}
}

func (l *Ledger) Has(_ context.Context, key string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.records[key]
	return ok, nil
}

func (l *Ledger) Record(_ context.Context, rec *domain.ProcessedRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[rec.ItemKey]; ok {
		return domain.ErrAlreadyRecorded
	}
	l.records[rec.ItemKey] = *rec
	return nil
}
