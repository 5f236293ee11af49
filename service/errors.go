package service

import (
	"errors"
	"fmt"
)

var (
	// ErrMotionNotFound indicates the referenced motion does not exist.
	ErrMotionNotFound = errors.New("motion not found")

	// ErrMotionClosed indicates the motion's voting window has ended.
	ErrMotionClosed = errors.New("motion is no longer open for voting")

	// ErrMotionStillOpen indicates a resolution attempt before the end
	// of the voting window.
	ErrMotionStillOpen = errors.New("motion is still open for voting")

	// ErrAlreadyResolved is a no-op signal, not a failure: another
	// caller won the resolution race.
	ErrAlreadyResolved = errors.New("motion already resolved")
)

// InsufficientBalanceError rejects a transfer whose source side does
// not hold enough currency. Nothing is mutated.
type InsufficientBalanceError struct {
	User     int64
	ItemType string
	Have     int64
	Need     int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for user %d: have %d %s, need %d",
		e.User, e.Have, e.ItemType, e.Need)
}

// ValidationError rejects malformed input before any mutation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
