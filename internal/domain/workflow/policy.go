package workflow

import "github.com/shopspring/decimal"

// Policy holds the organisation settings consulted on submit
type Policy struct {
	// AutoApproveBelow skips manager review when positive and the amount is strictly below it
	AutoApproveBelow decimal.Decimal
	// MaxAmount rejects submissions above it when positive
	MaxAmount decimal.Decimal
	// RequireReceipt rejects submissions with no receipt references
	RequireReceipt bool
}

// AutoApproves reports whether a submission of amount bypasses the manager
func (p Policy) AutoApproves(amount decimal.Decimal) bool {
	return p.AutoApproveBelow.IsPositive() && amount.LessThan(p.AutoApproveBelow)
}
