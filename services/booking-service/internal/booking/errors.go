package booking

import "errors"

var (
	// ErrInvalidInput covers malformed requests, unknown or non-bookable
	// staff and services, invalid working hours and starts off the slot grid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSlotNoLongerAvailable means the slot was taken or has passed
	// between listing and commit.
	ErrSlotNoLongerAvailable = errors.New("slot no longer available")
	ErrNotFound              = errors.New("not found")
	ErrInvalidTransition     = errors.New("invalid status transition")
)
