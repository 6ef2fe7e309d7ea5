package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Table is the single source of truth for which action may move a request where
type Table interface {
	// Lookup returns the row for (from, action) or a *TransitionError
	Lookup(from State, action Action) (*Rule, error)

	// PermittedActions returns the actions that have a row leaving the state
	PermittedActions(from State) []Action
}

// Input carries everything guards and conditions may inspect
type Input struct {
	Actor Actor
	// Request is the proposed request with any draft edits already applied
	Request       *entity.ReimbursementRequest
	Comment       string
	PaymentMethod string
	PaymentDate   *time.Time
	Policy        Policy
}

// Rule is one row of the transition table
type Rule struct {
	From        State
	Action      Action
	Requirement Requirement
	targets     []transition
}

// Targets returns every status this row can lead to
func (r *Rule) Targets() []State {
	states := make([]State, 0, len(r.targets))
	for _, t := range r.targets {
		states = append(states, t.toState)
	}
	return states
}

// Allows reports whether to is one of the row's targets
func (r *Rule) Allows(to State) bool {
	for _, t := range r.targets {
		if t.toState == to {
			return true
		}
	}
	return false
}

// Resolve picks the first target whose condition holds and runs its guards
func (r *Rule) Resolve(ctx context.Context, in *Input) (State, error) {
	for _, t := range r.targets {
		if t.condition != nil && !t.condition(ctx, in) {
			continue
		}
		for _, guard := range t.guards {
			if err := guard(ctx, in); err != nil {
				return StateNone, err
			}
		}
		return t.toState, nil
	}

	return StateNone, &TransitionError{Action: r.Action, Status: r.From}
}

// table implements Table
type table struct {
	rows map[State]map[Action]*Rule
}

// Lookup returns the row for (from, action)
func (t *table) Lookup(from State, action Action) (*Rule, error) {
	rule, exists := t.rows[from][action]
	if !exists {
		return nil, &TransitionError{Action: action, Status: from}
	}
	return rule, nil
}

// PermittedActions returns the actions available from a state, sorted by name
func (t *table) PermittedActions(from State) []Action {
	rules := t.rows[from]
	actions := make([]Action, 0, len(rules))
	for action := range rules {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// Replay walks ledger entries through the table and returns the status they lead to.
// Entries must already be in ledger order.
func Replay(t Table, entries []*entity.HistoryEntry) (State, error) {
	current := StateNone
	for i, e := range entries {
		action, err := ParseAction(e.Action)
		if err != nil {
			return current, fmt.Errorf("entry %d: %w", i, err)
		}

		from := StateNone
		if e.OldStatus != nil {
			if from, err = ParseState(*e.OldStatus); err != nil {
				return current, fmt.Errorf("entry %d: %w", i, err)
			}
		}
		if from != current {
			return current, fmt.Errorf("entry %d: %w: recorded old status %q, replayed %q", i, ErrIllegalTransition, from, current)
		}

		rule, err := t.Lookup(current, action)
		if err != nil {
			return current, fmt.Errorf("entry %d: %w", i, err)
		}

		to, err := ParseState(e.NewStatus)
		if err != nil {
			return current, fmt.Errorf("entry %d: %w", i, err)
		}
		if !rule.Allows(to) {
			return current, fmt.Errorf("entry %d: %w: %s cannot lead to %s", i, ErrIllegalTransition, action, to)
		}
		current = to
	}
	return current, nil
}
