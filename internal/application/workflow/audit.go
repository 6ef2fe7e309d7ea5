package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// AuditRecorder appends transition records to the ledger. It exposes no way to
// change or remove an entry.
type AuditRecorder struct {
	ledger port.HistoryLedger
}

// NewAuditRecorder creates a recorder over the given ledger
func NewAuditRecorder(ledger port.HistoryLedger) *AuditRecorder {
	return &AuditRecorder{ledger: ledger}
}

// Record appends one entry; it must be called inside the transition's transaction
func (r *AuditRecorder) Record(ctx context.Context, entry *entity.HistoryEntry) error {
	if entry.RequestID == "" || entry.NewStatus == "" || entry.Action == "" {
		return fmt.Errorf("incomplete history entry for request %q", entry.RequestID)
	}
	if err := r.ledger.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// Entries returns the request's entries ordered by (timestamp, sequence)
func (r *AuditRecorder) Entries(ctx context.Context, requestID string) ([]*entity.HistoryEntry, error) {
	entries, err := r.ledger.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].Sequence < entries[j].Sequence
	})
	return entries, nil
}
