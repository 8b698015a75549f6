package gstack

import (
	"errors"
	"fmt"
)

// ErrTooManyReserved is returned by [*Walker.Reserve]
// when the reserved thread set is already full.
var ErrTooManyReserved = errors.New("reserved thread limit reached")

// ReservedThreadError is returned when a caller asks to suspend
// a thread that must never be suspended,
// such as the watchdog thread itself.
type ReservedThreadError struct {
	ID ThreadID
}

func (e ReservedThreadError) Error() string {
	return fmt.Sprintf("thread %d is reserved and cannot be suspended", e.ID)
}

// RegisterStateError wraps a failure from [ThreadLayer.RegisterState].
type RegisterStateError struct {
	ID  ThreadID
	Err error
}

func (e RegisterStateError) Error() string {
	return fmt.Sprintf("failed to read register state of thread %d: %v", e.ID, e.Err)
}

func (e RegisterStateError) Unwrap() error {
	return e.Err
}
