package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// RequestFilter narrows RequestStore.List. Empty slices match everything.
type RequestFilter struct {
	SubmitterIDs []string
	Statuses     []string
	Limit        int
	Offset       int
}

// RequestStore defines persistence operations for ReimbursementRequest
type RequestStore interface {
	// Get returns the request or nil, nil when it does not exist
	Get(ctx context.Context, id string) (*entity.ReimbursementRequest, error)

	// Create inserts a new request; the request's Version is stored as given
	Create(ctx context.Context, req *entity.ReimbursementRequest) error

	// CompareAndSwap replaces the stored request if its version still equals
	// expectedVersion, storing req with Version = expectedVersion+1.
	// Returns false without error when the version moved.
	CompareAndSwap(ctx context.Context, id string, expectedVersion int64, req *entity.ReimbursementRequest) (bool, error)

	// List returns requests newest first
	List(ctx context.Context, filter RequestFilter) ([]*entity.ReimbursementRequest, error)
}

// HistoryLedger is the append-only transition log. It has no update or delete.
type HistoryLedger interface {
	// Append records an entry inside the transaction carried by ctx
	Append(ctx context.Context, entry *entity.HistoryEntry) error

	// ListByRequest returns entries ordered by (timestamp, sequence)
	ListByRequest(ctx context.Context, requestID string) ([]*entity.HistoryEntry, error)
}

// RoleResolver answers who holds which role and who manages whom
type RoleResolver interface {
	RolesOf(ctx context.Context, userID string) (domainwf.RoleSet, error)
	IsManagerOf(ctx context.Context, managerID, submitterID string) (bool, error)
}

// UserDirectory provides contact data for notifications and manager queues
type UserDirectory interface {
	// Contact returns nil, nil for unknown users
	Contact(ctx context.Context, userID string) (*entity.Contact, error)
	DirectReports(ctx context.Context, managerID string) ([]string, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
