package workflow

import (
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// BuildExpenseTable creates the transition table for expense reimbursement
func BuildExpenseTable() domainwf.Table {
	builder := domainwf.NewBuilder()

	// Creation has no from-status
	builder.ConfigureInitial().
		Permit(domainwf.ActionCreateDraft, domainwf.StateDraft, domainwf.RequireSubmitterRole,
			domainwf.PositiveAmount, domainwf.SubmitFields)

	// DRAFT: owner edits or submits; small amounts skip the manager
	builder.Configure(domainwf.StateDraft).
		PermitReentry(domainwf.ActionUpdateDraft, domainwf.RequireOwner, domainwf.PositiveAmount).
		PermitIf(domainwf.ActionSubmit, domainwf.StatePendingFinance, domainwf.AutoApproved, domainwf.RequireOwner,
			domainwf.PositiveAmount, domainwf.SubmitFields, domainwf.WithinPolicy).
		Permit(domainwf.ActionSubmit, domainwf.StatePendingManager, domainwf.RequireOwner,
			domainwf.PositiveAmount, domainwf.SubmitFields, domainwf.WithinPolicy)

	// CHANGES_REQUESTED behaves like DRAFT for the owner
	builder.Configure(domainwf.StateChangesRequested).
		PermitReentry(domainwf.ActionUpdateDraft, domainwf.RequireOwner, domainwf.PositiveAmount).
		PermitIf(domainwf.ActionSubmit, domainwf.StatePendingFinance, domainwf.AutoApproved, domainwf.RequireOwner,
			domainwf.PositiveAmount, domainwf.SubmitFields, domainwf.WithinPolicy).
		Permit(domainwf.ActionSubmit, domainwf.StatePendingManager, domainwf.RequireOwner,
			domainwf.PositiveAmount, domainwf.SubmitFields, domainwf.WithinPolicy)

	builder.Configure(domainwf.StatePendingManager).
		Permit(domainwf.ActionManagerApprove, domainwf.StatePendingFinance, domainwf.RequireManagerOfSubmitter).
		Permit(domainwf.ActionManagerReject, domainwf.StateRejected, domainwf.RequireManagerOfSubmitter,
			domainwf.CommentRequired).
		Permit(domainwf.ActionManagerRequestChanges, domainwf.StateChangesRequested, domainwf.RequireManagerOfSubmitter,
			domainwf.CommentRequired)

	builder.Configure(domainwf.StatePendingFinance).
		Permit(domainwf.ActionFinanceApprove, domainwf.StateApproved, domainwf.RequireFinance).
		Permit(domainwf.ActionFinanceReject, domainwf.StateRejected, domainwf.RequireFinance,
			domainwf.CommentRequired)

	builder.Configure(domainwf.StateApproved).
		Permit(domainwf.ActionMarkPaid, domainwf.StatePaid, domainwf.RequireFinance,
			domainwf.PaymentRequired)

	// REJECTED and PAID are terminal - no outgoing rows

	return builder.Build()
}
