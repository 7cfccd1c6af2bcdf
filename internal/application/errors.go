package application

import "errors"

// ErrCycleInProgress is returned by RunCycle when another cycle is still running.
var ErrCycleInProgress = errors.New("poll cycle already in progress")

// ErrInvalidInput indicates user-supplied tracking input failed validation.
// The wrapped message is safe to show to the user.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotSubscribed is returned by Untrack when the chat does not follow the repository.
var ErrNotSubscribed = errors.New("chat is not subscribed to repository")

// PersistenceError wraps a storage failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
