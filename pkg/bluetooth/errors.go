package bluetooth

import "errors"

var (
	// ErrReleased reports an operation on a handle whose manager has been
	// released. Cached reads keep working; everything remote is over.
	ErrReleased = errors.New("manager released")

	// ErrInvalidAddress reports a device address that is not a MAC address.
	ErrInvalidAddress = errors.New("invalid device address")
)
