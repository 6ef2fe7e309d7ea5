package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DefaultPageSize is used when a caller passes no limit
const DefaultPageSize = 50

// RequestService is the read side of the workflow: single requests and work queues
type RequestService interface {
	// GetRequest returns a request the viewer is allowed to see
	GetRequest(ctx context.Context, viewerID, requestID string) (*entity.ReimbursementRequest, error)
	// ListMine returns the viewer's own requests
	ListMine(ctx context.Context, viewerID string, limit, offset int) ([]*entity.ReimbursementRequest, error)
	// ManagerQueue returns requests awaiting the viewer's manager decision
	ManagerQueue(ctx context.Context, viewerID string, limit, offset int) ([]*entity.ReimbursementRequest, error)
	// FinanceQueue returns requests awaiting finance review or payment
	FinanceQueue(ctx context.Context, viewerID string, limit, offset int) ([]*entity.ReimbursementRequest, error)
}

type requestServiceImpl struct {
	requests  port.RequestStore
	roles     port.RoleResolver
	directory port.UserDirectory
	logger    Logger
}

// NewRequestService creates a new RequestService
func NewRequestService(
	requests port.RequestStore,
	roles port.RoleResolver,
	directory port.UserDirectory,
	logger Logger,
) RequestService {
	return &requestServiceImpl{
		requests:  requests,
		roles:     roles,
		directory: directory,
		logger:    logger,
	}
}

// GetRequest returns the request when the viewer owns it, manages its submitter,
// or holds finance, admin or director
func (s *requestServiceImpl) GetRequest(ctx context.Context, viewerID, requestID string) (*entity.ReimbursementRequest, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		s.logger.Error("Failed to get request", "error", err, "request_id", requestID)
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %s", domainwf.ErrNotFound, requestID)
	}

	if req.SubmitterID == viewerID {
		return req, nil
	}

	roles, err := s.roles.RolesOf(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("resolve roles: %w", err)
	}
	if roles.Has(domainwf.RoleFinance) || roles.Has(domainwf.RoleAdmin) || roles.Has(domainwf.RoleDirector) {
		return req, nil
	}

	manages, err := s.roles.IsManagerOf(ctx, viewerID, req.SubmitterID)
	if err != nil {
		return nil, fmt.Errorf("resolve manager link: %w", err)
	}
	if !manages {
		return nil, domainwf.ErrUnauthorized
	}
	return req, nil
}

// ListMine returns the viewer's own requests newest first
func (s *requestServiceImpl) ListMine(ctx context.Context, viewerID string, limit, offset int) ([]*entity.ReimbursementRequest, error) {
	return s.list(ctx, port.RequestFilter{
		SubmitterIDs: []string{viewerID},
		Limit:        pageSize(limit),
		Offset:       offset,
	})
}

// ManagerQueue returns pending_manager requests of the viewer's direct reports; admins see all
func (s *requestServiceImpl) ManagerQueue(ctx context.Context, viewerID string, limit, offset int) ([]*entity.ReimbursementRequest, error) {
	roles, err := s.roles.RolesOf(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("resolve roles: %w", err)
	}

	filter := port.RequestFilter{
		Statuses: []string{domainwf.StatePendingManager.String()},
		Limit:    pageSize(limit),
		Offset:   offset,
	}

	if !roles.Has(domainwf.RoleAdmin) {
		reports, err := s.directory.DirectReports(ctx, viewerID)
		if err != nil {
			return nil, fmt.Errorf("list direct reports: %w", err)
		}
		if len(reports) == 0 {
			return []*entity.ReimbursementRequest{}, nil
		}
		filter.SubmitterIDs = reports
	}

	return s.list(ctx, filter)
}

// FinanceQueue returns requests in pending_finance or approved
func (s *requestServiceImpl) FinanceQueue(ctx context.Context, viewerID string, limit, offset int) ([]*entity.ReimbursementRequest, error) {
	roles, err := s.roles.RolesOf(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("resolve roles: %w", err)
	}
	if !roles.Has(domainwf.RoleFinance) && !roles.Has(domainwf.RoleAdmin) {
		return nil, domainwf.ErrUnauthorized
	}

	return s.list(ctx, port.RequestFilter{
		Statuses: []string{domainwf.StatePendingFinance.String(), domainwf.StateApproved.String()},
		Limit:    pageSize(limit),
		Offset:   offset,
	})
}

func (s *requestServiceImpl) list(ctx context.Context, filter port.RequestFilter) ([]*entity.ReimbursementRequest, error) {
	reqs, err := s.requests.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list requests", "error", err)
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return reqs, nil
}

func pageSize(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultPageSize
	}
	return limit
}
