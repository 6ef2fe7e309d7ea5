package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReimbursementRequest is the aggregate root of the approval workflow
type ReimbursementRequest struct {
	ID              string          `json:"id"`
	SubmitterID     string          `json:"submitter_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Category        Category        `json:"category"`
	Amount          decimal.Decimal `json:"amount"`
	ExpenseDate     *time.Time      `json:"expense_date,omitempty"`
	CostCenterID    string          `json:"cost_center_id,omitempty"`
	Status          string          `json:"status"`
	ManagerComment  string          `json:"manager_comment,omitempty"`
	FinanceComment  string          `json:"finance_comment,omitempty"`
	SubmittedAt     *time.Time      `json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	PaymentDate     *time.Time      `json:"payment_date,omitempty"`
	PaymentProofRef string          `json:"payment_proof_ref,omitempty"`
	ReceiptRefs     []string        `json:"receipt_refs"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so a transition can be computed without touching the stored value
func (r *ReimbursementRequest) Clone() *ReimbursementRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.ExpenseDate = cloneTime(r.ExpenseDate)
	c.SubmittedAt = cloneTime(r.SubmittedAt)
	c.ApprovedAt = cloneTime(r.ApprovedAt)
	c.PaidAt = cloneTime(r.PaidAt)
	c.PaymentDate = cloneTime(r.PaymentDate)
	if r.ReceiptRefs != nil {
		c.ReceiptRefs = append([]string(nil), r.ReceiptRefs...)
	}
	return &c
}

// DraftFields holds the editable descriptive fields of a request.
// Nil pointers leave the current value untouched.
type DraftFields struct {
	Title        *string          `json:"title,omitempty"`
	Description  *string          `json:"description,omitempty"`
	Category     *Category        `json:"category,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	ExpenseDate  *time.Time       `json:"expense_date,omitempty"`
	CostCenterID *string          `json:"cost_center_id,omitempty"`
	ReceiptRefs  []string         `json:"receipt_refs,omitempty"`
}

// ApplyTo copies the set fields onto the request
func (f *DraftFields) ApplyTo(r *ReimbursementRequest) {
	if f == nil {
		return
	}
	if f.Title != nil {
		r.Title = *f.Title
	}
	if f.Description != nil {
		r.Description = *f.Description
	}
	if f.Category != nil {
		r.Category = *f.Category
	}
	if f.Amount != nil {
		r.Amount = *f.Amount
	}
	if f.ExpenseDate != nil {
		r.ExpenseDate = cloneTime(f.ExpenseDate)
	}
	if f.CostCenterID != nil {
		r.CostCenterID = *f.CostCenterID
	}
	if f.ReceiptRefs != nil {
		r.ReceiptRefs = append([]string(nil), f.ReceiptRefs...)
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
