package domain

import "errors"

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a status change violates the
// record's state machine.
var ErrInvalidTransition = errors.New("invalid status transition")
