package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const txKey contextKey = "memory-tx"

// DB is an in-process store holding requests, history and the user directory.
// Transactions are serialized and rolled back through an undo log.
type DB struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	requests map[string]*entity.ReimbursementRequest
	history  []*entity.HistoryEntry
	sequence int64
	roles    map[string]domainwf.RoleSet
	contacts map[string]*entity.Contact
	logger   *zap.Logger
}

// tx collects undo steps for one transaction
type tx struct {
	undo []func()
}

// NewDB creates an empty in-memory database
func NewDB(logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{
		requests: make(map[string]*entity.ReimbursementRequest),
		roles:    make(map[string]domainwf.RoleSet),
		contacts: make(map[string]*entity.Contact),
		logger:   logger,
	}
}

// WithTransaction implements port.TransactionManager
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// Reuse existing transaction
	if extractTx(ctx) != nil {
		return fn(ctx)
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()

	t := &tx{}
	txCtx := context.WithValue(ctx, txKey, t)

	defer func() {
		if p := recover(); p != nil {
			db.rollback(t)
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		db.rollback(t)
		return err
	}
	return nil
}

func (db *DB) rollback(t *tx) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

// record registers an undo step when ctx carries a transaction. Caller holds db.mu.
func record(ctx context.Context, undo func()) {
	if t := extractTx(ctx); t != nil {
		t.undo = append(t.undo, undo)
	}
}

func extractTx(ctx context.Context) *tx {
	if t, ok := ctx.Value(txKey).(*tx); ok {
		return t
	}
	return nil
}

// Verify interface compliance
var _ port.TransactionManager = (*DB)(nil)
