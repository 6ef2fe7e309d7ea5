package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

const requestColumns = `
	id, submitter_id, title, description, category, amount, expense_date,
	cost_center_id, status, manager_comment, finance_comment,
	submitted_at, approved_at, paid_at, payment_method, payment_date,
	payment_proof_ref, receipt_refs, version, created_at, updated_at
`

// RequestRepository implements port.RequestStore on SQLite
type RequestRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sqlite.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a request by ID, nil when absent
func (r *RequestRepository) Get(ctx context.Context, id string) (*entity.ReimbursementRequest, error) {
	query := `SELECT` + requestColumns + `FROM reimbursement_requests WHERE id = ?`

	req, err := scanRequest(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.String("request_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// Create inserts a new request
func (r *RequestRepository) Create(ctx context.Context, req *entity.ReimbursementRequest) error {
	refs, err := encodeRefs(req.ReceiptRefs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO reimbursement_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		req.ID,
		req.SubmitterID,
		req.Title,
		req.Description,
		string(req.Category),
		req.Amount.String(),
		nullTime(req.ExpenseDate),
		req.CostCenterID,
		req.Status,
		req.ManagerComment,
		req.FinanceComment,
		nullTime(req.SubmittedAt),
		nullTime(req.ApprovedAt),
		nullTime(req.PaidAt),
		req.PaymentMethod,
		nullTime(req.PaymentDate),
		req.PaymentProofRef,
		refs,
		req.Version,
		req.CreatedAt.UTC(),
		req.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.String("request_id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// CompareAndSwap updates the row only while its version equals expectedVersion
func (r *RequestRepository) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, req *entity.ReimbursementRequest) (bool, error) {
	refs, err := encodeRefs(req.ReceiptRefs)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE reimbursement_requests SET
			title = ?, description = ?, category = ?, amount = ?, expense_date = ?,
			cost_center_id = ?, status = ?, manager_comment = ?, finance_comment = ?,
			submitted_at = ?, approved_at = ?, paid_at = ?, payment_method = ?,
			payment_date = ?, payment_proof_ref = ?, receipt_refs = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		req.Title,
		req.Description,
		string(req.Category),
		req.Amount.String(),
		nullTime(req.ExpenseDate),
		req.CostCenterID,
		req.Status,
		req.ManagerComment,
		req.FinanceComment,
		nullTime(req.SubmittedAt),
		nullTime(req.ApprovedAt),
		nullTime(req.PaidAt),
		req.PaymentMethod,
		nullTime(req.PaymentDate),
		req.PaymentProofRef,
		refs,
		req.UpdatedAt.UTC(),
		id,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update request", zap.String("request_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to update request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// List returns matching requests newest first
func (r *RequestRepository) List(ctx context.Context, filter port.RequestFilter) ([]*entity.ReimbursementRequest, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(filter.SubmitterIDs) > 0 {
		where = append(where, "submitter_id IN ("+placeholders(len(filter.SubmitterIDs))+")")
		for _, id := range filter.SubmitterIDs {
			args = append(args, id)
		}
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, s)
		}
	}

	query := `SELECT` + requestColumns + `FROM reimbursement_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	} else if filter.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*entity.ReimbursementRequest, error) {
	var (
		req                                  entity.ReimbursementRequest
		category, amount, refs               string
		expenseDate, submittedAt, approvedAt sql.NullTime
		paidAt, paymentDate                  sql.NullTime
	)

	err := row.Scan(
		&req.ID,
		&req.SubmitterID,
		&req.Title,
		&req.Description,
		&category,
		&amount,
		&expenseDate,
		&req.CostCenterID,
		&req.Status,
		&req.ManagerComment,
		&req.FinanceComment,
		&submittedAt,
		&approvedAt,
		&paidAt,
		&req.PaymentMethod,
		&paymentDate,
		&req.PaymentProofRef,
		&refs,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Category = entity.Category(category)
	if req.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(refs), &req.ReceiptRefs); err != nil {
		return nil, fmt.Errorf("failed to decode receipt refs: %w", err)
	}
	req.ExpenseDate = timePtr(expenseDate)
	req.SubmittedAt = timePtr(submittedAt)
	req.ApprovedAt = timePtr(approvedAt)
	req.PaidAt = timePtr(paidAt)
	req.PaymentDate = timePtr(paymentDate)

	return &req, nil
}

// Verify interface compliance
var _ port.RequestStore = (*RequestRepository)(nil)
