package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the request does not exist
	ErrNotFound = errors.New("request not found")

	// ErrIllegalTransition is returned when no table row matches (action, status)
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrUnauthorized is returned when the actor does not satisfy the row's requirement
	ErrUnauthorized = errors.New("actor is not allowed to perform this action")

	// ErrGuardViolation is returned when a required field is missing or invalid
	ErrGuardViolation = errors.New("guard violation")

	// ErrConflict is returned when the request kept changing underneath the caller; retryable
	ErrConflict = errors.New("concurrent modification")

	// ErrInvalidState is returned when a status value is not recognised
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidAction is returned when an action name is not recognised
	ErrInvalidAction = errors.New("invalid action")
)

// TransitionError reports an (action, status) pair with no table row
type TransitionError struct {
	Action Action
	Status State
}

func (e *TransitionError) Error() string {
	from := e.Status.String()
	if e.Status == StateNone {
		from = "<none>"
	}
	return fmt.Sprintf("%s: %s is not permitted from %s", ErrIllegalTransition, e.Action, from)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// GuardError names the field that failed a guard
type GuardError struct {
	Field  string
	Reason string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrGuardViolation, e.Field, e.Reason)
}

func (e *GuardError) Unwrap() error { return ErrGuardViolation }
