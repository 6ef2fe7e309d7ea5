package workflow

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// TransitionRequest is the single input to ApplyTransition
type TransitionRequest struct {
	RequestID       string
	Action          domainwf.Action
	ActorID         string
	Comment         string
	PaymentMethod   string
	PaymentDate     *time.Time
	PaymentProofRef string
	// Draft carries field edits for update_draft and is ignored by other actions
	Draft *entity.DraftFields
}

// WorkflowEngine applies actions to reimbursement requests
type WorkflowEngine interface {
	// CreateDraft creates a request in draft owned by the actor
	CreateDraft(ctx context.Context, actorID string, fields entity.DraftFields) (*entity.ReimbursementRequest, error)

	// ApplyTransition authorizes, validates and applies one action
	ApplyTransition(ctx context.Context, req TransitionRequest) (*entity.ReimbursementRequest, error)

	// AvailableActions lists the actions the actor may attempt on the request now
	AvailableActions(ctx context.Context, requestID, actorID string) ([]domainwf.Action, error)

	// History returns the request's ledger in order
	History(ctx context.Context, requestID string) ([]*entity.HistoryEntry, error)

	// Verify replays the ledger and checks it against the stored status
	Verify(ctx context.Context, requestID string) (domainwf.State, error)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
