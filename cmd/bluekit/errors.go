package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/bluekit/internal/bus"
	"github.com/srg/bluekit/pkg/bluetooth"
)

// FormatUserError turns library errors into terse one-line messages for
// stderr. The full error chain stays available to --log-level debug.
func FormatUserError(err error) string {
	var callErr *bus.CallError

	switch {
	case errors.Is(err, bluetooth.ErrInvalidAddress):
		return err.Error()

	case errors.Is(err, bluetooth.ErrReleased):
		return "the daemon session was already released"

	case errors.Is(err, bus.ErrNotFound):
		if errors.As(err, &callErr) {
			return fmt.Sprintf("%s: no such object known to the daemon", callErr.Op)
		}
		return err.Error()

	case errors.Is(err, bus.ErrUnavailable):
		return "the Bluetooth daemon is not reachable (is bluetoothd running?)"

	case errors.Is(err, bus.ErrClosed):
		return "the bus connection is closed"

	case errors.Is(err, context.DeadlineExceeded):
		return "the daemon did not answer in time"

	default:
		return err.Error()
	}
}
