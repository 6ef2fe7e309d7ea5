package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// HistoryLedger implements port.HistoryLedger on PostgreSQL.
// A trigger rejects UPDATE and DELETE on the table.
type HistoryLedger struct {
	db     *DB
	logger *zap.Logger
}

// NewHistoryLedger creates a new ledger
func NewHistoryLedger(db *DB, logger *zap.Logger) *HistoryLedger {
	return &HistoryLedger{db: db, logger: logger}
}

// Append records an entry and assigns its sequence
func (l *HistoryLedger) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	query := `
		INSERT INTO request_history (
			id, request_id, actor_id, action, old_status, new_status, comment, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq
	`

	err := l.db.Querier(ctx).QueryRow(ctx, query,
		entry.ID,
		entry.RequestID,
		entry.ActorID,
		entry.Action,
		entry.OldStatus,
		entry.NewStatus,
		entry.Comment,
		entry.Timestamp,
	).Scan(&entry.Sequence)
	if err != nil {
		l.logger.Error("Failed to create history record", zap.String("request_id", entry.RequestID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}
	return nil
}

// ListByRequest returns entries ordered by timestamp then sequence
func (l *HistoryLedger) ListByRequest(ctx context.Context, requestID string) ([]*entity.HistoryEntry, error) {
	query := `
		SELECT seq, id, request_id, actor_id, action, old_status, new_status, comment, created_at
		FROM request_history
		WHERE request_id = $1
		ORDER BY created_at ASC, seq ASC
	`

	rows, err := l.db.Querier(ctx).Query(ctx, query, requestID)
	if err != nil {
		l.logger.Error("Failed to list history", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	entries := []*entity.HistoryEntry{}
	for rows.Next() {
		var entry entity.HistoryEntry
		if err := rows.Scan(
			&entry.Sequence,
			&entry.ID,
			&entry.RequestID,
			&entry.ActorID,
			&entry.Action,
			&entry.OldStatus,
			&entry.NewStatus,
			&entry.Comment,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		entry.Timestamp = entry.Timestamp.UTC()
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// Verify interface compliance
var _ port.HistoryLedger = (*HistoryLedger)(nil)
