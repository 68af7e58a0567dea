package helper

import "fmt"

// Error wraps an operational error with the action that failed.
type Error struct {
	Action string
	Err    error
}

// NewError creates a wrapped error for the given action
func NewError(action string, err error) error {
	return &Error{Action: action, Err: err}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("error in %s: %v", e.Action, e.Err)
}

// Unwrap returns the wrapped error so errors.Is/As keep working
func (e *Error) Unwrap() error {
	return e.Err
}
