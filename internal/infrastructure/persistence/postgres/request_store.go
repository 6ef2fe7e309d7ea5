package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const requestColumns = `
	id, submitter_id, title, description, category, amount, expense_date,
	cost_center_id, status, manager_comment, finance_comment,
	submitted_at, approved_at, paid_at, payment_method, payment_date,
	payment_proof_ref, receipt_refs, version, created_at, updated_at
`

// uniqueViolation is the SQLSTATE for a duplicate key
const uniqueViolation = "23505"

// RequestStore implements port.RequestStore on PostgreSQL
type RequestStore struct {
	db     *DB
	logger *zap.Logger
}

// NewRequestStore creates a new request store
func NewRequestStore(db *DB, logger *zap.Logger) *RequestStore {
	return &RequestStore{db: db, logger: logger}
}

// Get retrieves a request by ID, nil when absent
func (s *RequestStore) Get(ctx context.Context, id string) (*entity.ReimbursementRequest, error) {
	row := s.db.Querier(ctx).QueryRow(ctx, `SELECT`+requestColumns+`FROM reimbursement_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to get request", zap.String("request_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// Create inserts a new request
func (s *RequestStore) Create(ctx context.Context, req *entity.ReimbursementRequest) error {
	query := `
		INSERT INTO reimbursement_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err := s.db.Querier(ctx).Exec(ctx, query,
		req.ID,
		req.SubmitterID,
		req.Title,
		req.Description,
		string(req.Category),
		req.Amount,
		req.ExpenseDate,
		req.CostCenterID,
		req.Status,
		req.ManagerComment,
		req.FinanceComment,
		req.SubmittedAt,
		req.ApprovedAt,
		req.PaidAt,
		req.PaymentMethod,
		req.PaymentDate,
		req.PaymentProofRef,
		refsOrEmpty(req.ReceiptRefs),
		req.Version,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("request %s already exists: %w", req.ID, err)
		}
		s.logger.Error("Failed to create request", zap.String("request_id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// CompareAndSwap updates the row only while its version equals expectedVersion
func (s *RequestStore) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, req *entity.ReimbursementRequest) (bool, error) {
	query := `
		UPDATE reimbursement_requests SET
			title = $1, description = $2, category = $3, amount = $4, expense_date = $5,
			cost_center_id = $6, status = $7, manager_comment = $8, finance_comment = $9,
			submitted_at = $10, approved_at = $11, paid_at = $12, payment_method = $13,
			payment_date = $14, payment_proof_ref = $15, receipt_refs = $16,
			updated_at = $17, version = version + 1
		WHERE id = $18 AND version = $19
	`

	tag, err := s.db.Querier(ctx).Exec(ctx, query,
		req.Title,
		req.Description,
		string(req.Category),
		req.Amount,
		req.ExpenseDate,
		req.CostCenterID,
		req.Status,
		req.ManagerComment,
		req.FinanceComment,
		req.SubmittedAt,
		req.ApprovedAt,
		req.PaidAt,
		req.PaymentMethod,
		req.PaymentDate,
		req.PaymentProofRef,
		refsOrEmpty(req.ReceiptRefs),
		req.UpdatedAt,
		id,
		expectedVersion,
	)
	if err != nil {
		s.logger.Error("Failed to update request", zap.String("request_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to update request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// List returns matching requests newest first
func (s *RequestStore) List(ctx context.Context, filter port.RequestFilter) ([]*entity.ReimbursementRequest, error) {
	query, args := buildListQuery(filter)

	rows, err := s.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		s.logger.Error("Failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	requests := []*entity.ReimbursementRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func buildListQuery(filter port.RequestFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if len(filter.SubmitterIDs) > 0 {
		args = append(args, filter.SubmitterIDs)
		where = append(where, fmt.Sprintf("submitter_id = ANY($%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, filter.Statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT` + requestColumns + `FROM reimbursement_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func scanRequest(row pgx.Row) (*entity.ReimbursementRequest, error) {
	var (
		req      entity.ReimbursementRequest
		category string
	)

	err := row.Scan(
		&req.ID,
		&req.SubmitterID,
		&req.Title,
		&req.Description,
		&category,
		&req.Amount,
		&req.ExpenseDate,
		&req.CostCenterID,
		&req.Status,
		&req.ManagerComment,
		&req.FinanceComment,
		&req.SubmittedAt,
		&req.ApprovedAt,
		&req.PaidAt,
		&req.PaymentMethod,
		&req.PaymentDate,
		&req.PaymentProofRef,
		&req.ReceiptRefs,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Category = entity.Category(category)
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	for _, t := range []*time.Time{req.ExpenseDate, req.SubmittedAt, req.ApprovedAt, req.PaidAt, req.PaymentDate} {
		if t != nil {
			*t = t.UTC()
		}
	}
	return &req, nil
}

func refsOrEmpty(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}

// Verify interface compliance
var _ port.RequestStore = (*RequestStore)(nil)
