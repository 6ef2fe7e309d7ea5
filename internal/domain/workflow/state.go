package workflow

import "fmt"

// State represents a request status in the reimbursement lifecycle
type State string

const (
	// StateNone is the position before a request exists; only create_draft leaves it
	StateNone State = ""

	StateDraft            State = "draft"
	StatePendingManager   State = "pending_manager"
	StateChangesRequested State = "changes_requested"
	StatePendingFinance   State = "pending_finance"
	StateApproved         State = "approved"
	StateRejected         State = "rejected"
	StatePaid             State = "paid"
)

// legacySubmitted is accepted on load and folded into pending_manager
const legacySubmitted = "submitted"

var validStates = map[State]bool{
	StateDraft:            true,
	StatePendingManager:   true,
	StateChangesRequested: true,
	StatePendingFinance:   true,
	StateApproved:         true,
	StateRejected:         true,
	StatePaid:             true,
}

var terminalStates = map[State]bool{
	StateRejected: true,
	StatePaid:     true,
}

// ParseState converts a stored status value into a State
func ParseState(s string) (State, error) {
	if s == legacySubmitted {
		return StatePendingManager, nil
	}
	st := State(s)
	if !st.IsValid() {
		return StateNone, fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
	return st, nil
}

// IsTerminal returns true if the state accepts no further actions
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid request status
func (s State) IsValid() bool {
	return validStates[s]
}
