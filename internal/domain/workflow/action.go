package workflow

import "fmt"

// Action is a named operation an actor performs on a request
type Action string

const (
	ActionCreateDraft           Action = "create_draft"
	ActionUpdateDraft           Action = "update_draft"
	ActionSubmit                Action = "submit"
	ActionManagerApprove        Action = "manager_approve"
	ActionManagerReject         Action = "manager_reject"
	ActionManagerRequestChanges Action = "manager_request_changes"
	ActionFinanceApprove        Action = "finance_approve"
	ActionFinanceReject         Action = "finance_reject"
	ActionMarkPaid              Action = "mark_paid"
)

var validActions = map[Action]bool{
	ActionCreateDraft:           true,
	ActionUpdateDraft:           true,
	ActionSubmit:                true,
	ActionManagerApprove:        true,
	ActionManagerReject:         true,
	ActionManagerRequestChanges: true,
	ActionFinanceApprove:        true,
	ActionFinanceReject:         true,
	ActionMarkPaid:              true,
}

// ParseAction converts a caller-supplied action name
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !validActions[a] {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
	return a, nil
}

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}
