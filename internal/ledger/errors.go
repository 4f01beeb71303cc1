// Package ledger implements the task/reward/points state machine: the
// rules governing how task transitions, demerit appeals, and reward
// purchases mutate point balances.
package ledger

import "errors"

// Sentinel errors for the operation failure taxonomy. Handlers map
// these onto HTTP statuses; services wrap them with detail.
var (
	// ErrPermissionDenied means the acting user's role lacks the
	// required capability. Nothing is mutated.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation means the input is malformed. No store call is made.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientPoints means a purchase precondition failed.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrAppealWindowClosed means an appeal was attempted after the
	// demerit was accepted, or a second appeal was filed.
	ErrAppealWindowClosed = errors.New("appeal window closed")

	// ErrConflict means the entity is not in a state that permits the
	// requested transition.
	ErrConflict = errors.New("conflicting state")
)
