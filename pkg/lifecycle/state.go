// Package lifecycle drives one cache generation through install and
// activate.
//
//	installing -> waiting -> activating -> active -> superseded
//	     \
//	      -> redundant (install failed)
package lifecycle

import (
	"errors"
	"fmt"
)

// State is a generation's lifecycle state.
type State string

const (
	StateNew        State = "new"
	StateInstalling State = "installing"
	StateWaiting    State = "waiting"
	StateActivating State = "activating"
	StateActive     State = "active"
	StateSuperseded State = "superseded"
	StateRedundant  State = "redundant"
)

var (
	// ErrInstallFailed wraps every install failure.
	ErrInstallFailed = errors.New("install failed")

	// ErrActivateFailed wraps every activate failure.
	ErrActivateFailed = errors.New("activate failed")

	// ErrInvalidTransition is matched by every TransitionError.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// TransitionError reports an operation attempted from the wrong state.
type TransitionError struct {
	From State
	To   State
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

// Is matches ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateSuperseded || s == StateRedundant
}
