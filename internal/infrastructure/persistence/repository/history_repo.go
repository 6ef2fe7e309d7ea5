package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryLedger.
// The table rejects UPDATE and DELETE through triggers.
type HistoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlite.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append records an entry and assigns its sequence
func (r *HistoryRepository) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	query := `
		INSERT INTO request_history (
			id, request_id, actor_id, action, old_status, new_status,
			comment, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		entry.ID,
		entry.RequestID,
		entry.ActorID,
		entry.Action,
		nullString(entry.OldStatus),
		entry.NewStatus,
		nullString(entry.Comment),
		entry.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.String("request_id", entry.RequestID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.Sequence = seq
	return nil
}

// ListByRequest retrieves all history entries for a request in order
func (r *HistoryRepository) ListByRequest(ctx context.Context, requestID string) ([]*entity.HistoryEntry, error) {
	query := `
		SELECT seq, id, request_id, actor_id, action, old_status, new_status,
			comment, created_at
		FROM request_history
		WHERE request_id = ?
		ORDER BY created_at ASC, seq ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to list history", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	entries := []*entity.HistoryEntry{}
	for rows.Next() {
		var (
			entry              entity.HistoryEntry
			oldStatus, comment sql.NullString
		)
		if err := rows.Scan(
			&entry.Sequence,
			&entry.ID,
			&entry.RequestID,
			&entry.ActorID,
			&entry.Action,
			&oldStatus,
			&entry.NewStatus,
			&comment,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		entry.OldStatus = stringPtr(oldStatus)
		entry.Comment = stringPtr(comment)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// Verify interface compliance
var _ port.HistoryLedger = (*HistoryRepository)(nil)
