package memory

import (
	"context"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// HistoryLedger implements port.HistoryLedger in memory
type HistoryLedger struct {
	db *DB
}

// NewHistoryLedger creates a ledger over db
func NewHistoryLedger(db *DB) *HistoryLedger {
	return &HistoryLedger{db: db}
}

// Append stores a copy of the entry and assigns its sequence
func (l *HistoryLedger) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()

	l.db.sequence++
	entry.Sequence = l.db.sequence

	stored := *entry
	n := len(l.db.history)
	l.db.history = append(l.db.history, &stored)
	record(ctx, func() { l.db.history = l.db.history[:n] })
	return nil
}

// ListByRequest returns copies of the request's entries in insertion order
func (l *HistoryLedger) ListByRequest(_ context.Context, requestID string) ([]*entity.HistoryEntry, error) {
	l.db.mu.RLock()
	defer l.db.mu.RUnlock()

	var entries []*entity.HistoryEntry
	for _, e := range l.db.history {
		if e.RequestID == requestID {
			c := *e
			entries = append(entries, &c)
		}
	}
	return entries, nil
}

// Verify interface compliance
var _ port.HistoryLedger = (*HistoryLedger)(nil)
