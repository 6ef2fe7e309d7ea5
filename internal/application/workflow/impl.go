package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// DefaultMaxAttempts bounds the optimistic-concurrency retry loop
const DefaultMaxAttempts = 3

// errVersionMoved signals a lost compare-and-swap inside one attempt
var errVersionMoved = errors.New("request version moved")

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	requests  port.RequestStore
	roles     port.RoleResolver
	audit     *AuditRecorder
	txManager port.TransactionManager
	gateway   port.NotificationGateway
	table     domainwf.Table
	policy    domainwf.Policy
	logger    Logger

	maxAttempts int
	now         func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithGateway sets the notification gateway
func WithGateway(g port.NotificationGateway) EngineOption {
	return func(e *engineImpl) {
		e.gateway = g
	}
}

// WithPolicy sets the submit policy (auto-approval threshold and limits)
func WithPolicy(p domainwf.Policy) EngineOption {
	return func(e *engineImpl) {
		e.policy = p
	}
}

// WithMaxAttempts sets how many times a transition is tried before ErrConflict
func WithMaxAttempts(n int) EngineOption {
	return func(e *engineImpl) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithTable replaces the transition table
func WithTable(t domainwf.Table) EngineOption {
	return func(e *engineImpl) {
		e.table = t
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	requests port.RequestStore,
	ledger port.HistoryLedger,
	roles port.RoleResolver,
	txManager port.TransactionManager,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		requests:    requests,
		roles:       roles,
		audit:       NewAuditRecorder(ledger),
		txManager:   txManager,
		table:       BuildExpenseTable(),
		logger:      nopLogger{},
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.gateway == nil {
		e.gateway = NewLogGateway(e.logger)
	}

	return e
}

// CreateDraft creates a request in draft owned by the actor
func (e *engineImpl) CreateDraft(ctx context.Context, actorID string, fields entity.DraftFields) (*entity.ReimbursementRequest, error) {
	roles, err := e.roles.RolesOf(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roles: %w", err)
	}

	rule, err := e.table.Lookup(domainwf.StateNone, domainwf.ActionCreateDraft)
	if err != nil {
		return nil, err
	}

	actor := domainwf.Actor{ID: actorID, Roles: roles, IsOwner: true}
	if !rule.Requirement.Allows(actor) {
		return nil, domainwf.ErrUnauthorized
	}

	now := e.now()
	req := &entity.ReimbursementRequest{
		ID:          uuid.NewString(),
		SubmitterID: actorID,
		ReceiptRefs: []string{},
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	fields.ApplyTo(req)

	to, err := rule.Resolve(ctx, &domainwf.Input{Actor: actor, Request: req, Policy: e.policy})
	if err != nil {
		return nil, err
	}
	req.Status = to.String()

	entry := &entity.HistoryEntry{
		ID:        uuid.NewString(),
		RequestID: req.ID,
		ActorID:   actorID,
		Action:    domainwf.ActionCreateDraft.String(),
		NewStatus: to.String(),
		Timestamp: now,
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.requests.Create(txCtx, req); err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		return e.audit.Record(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Draft created",
		"request_id", req.ID,
		"actor_id", actorID,
		"amount", req.Amount.String(),
	)

	e.notify(ctx, req, domainwf.StateNone, entry)

	return req, nil
}

// ApplyTransition authorizes, validates and applies one action, retrying lost
// version races up to maxAttempts times
func (e *engineImpl) ApplyTransition(ctx context.Context, tr TransitionRequest) (*entity.ReimbursementRequest, error) {
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		result, from, entry, err := e.attempt(ctx, tr)
		if errors.Is(err, errVersionMoved) {
			e.logger.Info("Version conflict, retrying transition",
				"request_id", tr.RequestID,
				"action", tr.Action,
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		e.logger.Info("Transition applied",
			"request_id", result.ID,
			"action", tr.Action,
			"actor_id", tr.ActorID,
			"old_status", from,
			"new_status", result.Status,
			"version", result.Version,
		)

		e.notify(ctx, result, from, entry)

		return result, nil
	}

	return nil, fmt.Errorf("%w: request %s changed concurrently %d times", domainwf.ErrConflict, tr.RequestID, e.maxAttempts)
}

// attempt runs one read-decide-write cycle
func (e *engineImpl) attempt(ctx context.Context, tr TransitionRequest) (*entity.ReimbursementRequest, domainwf.State, *entity.HistoryEntry, error) {
	current, err := e.load(ctx, tr.RequestID)
	if err != nil {
		return nil, domainwf.StateNone, nil, err
	}

	from, err := domainwf.ParseState(current.Status)
	if err != nil {
		return nil, domainwf.StateNone, nil, err
	}

	roles, err := e.roles.RolesOf(ctx, tr.ActorID)
	if err != nil {
		return nil, from, nil, fmt.Errorf("failed to resolve roles: %w", err)
	}

	rule, err := e.table.Lookup(from, tr.Action)
	if err != nil {
		return nil, from, nil, err
	}

	actor, err := e.actorFor(ctx, tr.ActorID, roles, current, rule.Requirement)
	if err != nil {
		return nil, from, nil, err
	}
	if !rule.Requirement.Allows(actor) {
		return nil, from, nil, domainwf.ErrUnauthorized
	}

	proposed := current.Clone()
	if tr.Action == domainwf.ActionUpdateDraft {
		tr.Draft.ApplyTo(proposed)
	}

	to, err := rule.Resolve(ctx, &domainwf.Input{
		Actor:         actor,
		Request:       proposed,
		Comment:       tr.Comment,
		PaymentMethod: tr.PaymentMethod,
		PaymentDate:   tr.PaymentDate,
		Policy:        e.policy,
	})
	if err != nil {
		return nil, from, nil, err
	}

	now := e.now()
	comment := strings.TrimSpace(tr.Comment)
	if tr.Action == domainwf.ActionSubmit && to == domainwf.StatePendingFinance {
		comment = fmt.Sprintf("auto-approved: amount %s below threshold %s",
			proposed.Amount.StringFixed(2), e.policy.AutoApproveBelow.StringFixed(2))
	}

	applyEffects(proposed, tr, to, comment, now)

	oldStatus := from.String()
	entry := &entity.HistoryEntry{
		ID:        uuid.NewString(),
		RequestID: current.ID,
		ActorID:   tr.ActorID,
		Action:    tr.Action.String(),
		OldStatus: &oldStatus,
		NewStatus: to.String(),
		Timestamp: now,
	}
	if comment != "" {
		entry.Comment = &comment
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		swapped, err := e.requests.CompareAndSwap(txCtx, current.ID, current.Version, proposed)
		if err != nil {
			return fmt.Errorf("failed to update request: %w", err)
		}
		if !swapped {
			return errVersionMoved
		}
		return e.audit.Record(txCtx, entry)
	})
	if err != nil {
		return nil, from, nil, err
	}

	proposed.Version = current.Version + 1
	return proposed, from, entry, nil
}

// actorFor resolves ownership and, only when the row needs it, the manager link
func (e *engineImpl) actorFor(ctx context.Context, actorID string, roles domainwf.RoleSet, req *entity.ReimbursementRequest, requirement domainwf.Requirement) (domainwf.Actor, error) {
	actor := domainwf.Actor{
		ID:      actorID,
		Roles:   roles,
		IsOwner: actorID != "" && actorID == req.SubmitterID,
	}
	if requirement.NeedsManagerLink() {
		manages, err := e.roles.IsManagerOf(ctx, actorID, req.SubmitterID)
		if err != nil {
			return actor, fmt.Errorf("failed to resolve manager link: %w", err)
		}
		actor.ManagesSubmitter = manages
	}
	return actor, nil
}

// applyEffects sets the one-time timestamps, comments and payment fields
func applyEffects(req *entity.ReimbursementRequest, tr TransitionRequest, to domainwf.State, comment string, now time.Time) {
	req.Status = to.String()
	req.UpdatedAt = now

	switch tr.Action {
	case domainwf.ActionSubmit:
		if req.SubmittedAt == nil {
			req.SubmittedAt = &now
		}
	case domainwf.ActionManagerApprove, domainwf.ActionManagerReject, domainwf.ActionManagerRequestChanges:
		if comment != "" {
			req.ManagerComment = comment
		}
	case domainwf.ActionFinanceApprove:
		if req.ApprovedAt == nil {
			req.ApprovedAt = &now
		}
		if comment != "" {
			req.FinanceComment = comment
		}
	case domainwf.ActionFinanceReject:
		req.FinanceComment = comment
	case domainwf.ActionMarkPaid:
		if req.PaidAt == nil {
			paymentDate := *tr.PaymentDate
			req.PaidAt = &now
			req.PaymentMethod = strings.TrimSpace(tr.PaymentMethod)
			req.PaymentDate = &paymentDate
		}
		if tr.PaymentProofRef != "" {
			req.PaymentProofRef = tr.PaymentProofRef
		}
		if comment != "" {
			req.FinanceComment = comment
		}
	}
}

// AvailableActions lists the actions whose requirement the actor satisfies in the current status
func (e *engineImpl) AvailableActions(ctx context.Context, requestID, actorID string) ([]domainwf.Action, error) {
	current, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	from, err := domainwf.ParseState(current.Status)
	if err != nil {
		return nil, err
	}

	roles, err := e.roles.RolesOf(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roles: %w", err)
	}

	var actions []domainwf.Action
	for _, action := range e.table.PermittedActions(from) {
		rule, err := e.table.Lookup(from, action)
		if err != nil {
			continue
		}
		actor, err := e.actorFor(ctx, actorID, roles, current, rule.Requirement)
		if err != nil {
			return nil, err
		}
		if rule.Requirement.Allows(actor) {
			actions = append(actions, action)
		}
	}
	return actions, nil
}

// History returns the request's ledger in order
func (e *engineImpl) History(ctx context.Context, requestID string) ([]*entity.HistoryEntry, error) {
	if _, err := e.load(ctx, requestID); err != nil {
		return nil, err
	}
	return e.audit.Entries(ctx, requestID)
}

// Verify replays the ledger and checks it against the stored status
func (e *engineImpl) Verify(ctx context.Context, requestID string) (domainwf.State, error) {
	current, err := e.load(ctx, requestID)
	if err != nil {
		return domainwf.StateNone, err
	}

	entries, err := e.audit.Entries(ctx, requestID)
	if err != nil {
		return domainwf.StateNone, err
	}

	replayed, err := domainwf.Replay(e.table, entries)
	if err != nil {
		return replayed, fmt.Errorf("ledger of request %s does not replay: %w", requestID, err)
	}

	stored, err := domainwf.ParseState(current.Status)
	if err != nil {
		return replayed, err
	}
	if replayed != stored {
		return replayed, fmt.Errorf("ledger of request %s replays to %s but stored status is %s", requestID, replayed, stored)
	}
	return replayed, nil
}

func (e *engineImpl) load(ctx context.Context, requestID string) (*entity.ReimbursementRequest, error) {
	req, err := e.requests.Get(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %s", domainwf.ErrNotFound, requestID)
	}
	return req, nil
}

// notify sends exactly one message per applied transition; failures are only logged
func (e *engineImpl) notify(ctx context.Context, req *entity.ReimbursementRequest, from domainwf.State, entry *entity.HistoryEntry) {
	comment := ""
	if entry.Comment != nil {
		comment = *entry.Comment
	}

	evt := event.NewStatusChanged(event.StatusChange{
		RequestID:   req.ID,
		OldStatus:   from.String(),
		NewStatus:   req.Status,
		ActorID:     entry.ActorID,
		Action:      entry.Action,
		Comment:     comment,
		SubmitterID: req.SubmitterID,
		Title:       req.Title,
		Amount:      req.Amount.StringFixed(2),
	})

	if err := e.gateway.Send(context.WithoutCancel(ctx), evt); err != nil {
		e.logger.Error("Notification failed",
			"request_id", req.ID,
			"event_id", evt.ID,
			"new_status", req.Status,
			"error", err,
		)
	}
}
