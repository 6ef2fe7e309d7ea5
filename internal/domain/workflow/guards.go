package workflow

import (
	"context"
	"strings"
)

// PositiveAmount requires amount > 0
func PositiveAmount(_ context.Context, in *Input) error {
	if !in.Request.Amount.IsPositive() {
		return &GuardError{Field: "amount", Reason: "must be greater than zero"}
	}
	return nil
}

// SubmitFields requires the descriptive fields a reviewer needs
func SubmitFields(_ context.Context, in *Input) error {
	r := in.Request
	switch {
	case strings.TrimSpace(r.Title) == "":
		return &GuardError{Field: "title", Reason: "is required"}
	case !r.Category.IsValid():
		return &GuardError{Field: "category", Reason: "is required"}
	case r.ExpenseDate == nil || r.ExpenseDate.IsZero():
		return &GuardError{Field: "expense_date", Reason: "is required"}
	}
	return nil
}

// WithinPolicy applies the configured amount ceiling and receipt rule
func WithinPolicy(_ context.Context, in *Input) error {
	if in.Policy.MaxAmount.IsPositive() && in.Request.Amount.GreaterThan(in.Policy.MaxAmount) {
		return &GuardError{Field: "amount", Reason: "exceeds the maximum of " + in.Policy.MaxAmount.StringFixed(2)}
	}
	if in.Policy.RequireReceipt && len(in.Request.ReceiptRefs) == 0 {
		return &GuardError{Field: "receipts", Reason: "at least one receipt is required"}
	}
	return nil
}

// CommentRequired rejects blank comments
func CommentRequired(_ context.Context, in *Input) error {
	if strings.TrimSpace(in.Comment) == "" {
		return &GuardError{Field: "comment", Reason: "is required"}
	}
	return nil
}

// PaymentRequired requires both payment method and payment date
func PaymentRequired(_ context.Context, in *Input) error {
	if strings.TrimSpace(in.PaymentMethod) == "" {
		return &GuardError{Field: "payment_method", Reason: "is required"}
	}
	if in.PaymentDate == nil || in.PaymentDate.IsZero() {
		return &GuardError{Field: "payment_date", Reason: "is required"}
	}
	return nil
}

// AutoApproved is the condition routing small submissions straight to finance
func AutoApproved(_ context.Context, in *Input) bool {
	return in.Policy.AutoApproves(in.Request.Amount)
}
