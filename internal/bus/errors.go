package bus

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies remote failures into the cases callers branch on.
type FailureKind string

const (
	// NotFound: the daemon has no object for the requested identity.
	NotFound FailureKind = "not_found"
	// Unavailable: the daemon or the bus itself is unreachable.
	Unavailable FailureKind = "unavailable"
	// CallFailed: the object exists but the call was rejected or timed out.
	CallFailed FailureKind = "call_failed"
)

// CallError wraps a failed remote call with the operation and target path.
type CallError struct {
	Op   string
	Path string
	Err  error
}

func (e *CallError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// MalformedSignalError reports a signal whose body did not match the shape
// its member name promises. Dispatchers drop such signals.
type MalformedSignalError struct {
	Member string
	Reason string
}

func (e *MalformedSignalError) Error() string {
	return fmt.Sprintf("malformed signal %s: %s", e.Member, e.Reason)
}

// Sentinels for the failure taxonomy. Transports wrap these so callers can
// branch with errors.Is regardless of the underlying daemon wording.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
	ErrClosed      = errors.New("connection closed")
)

// Daemon and bus error names, and message fragments, that identify the
// NotFound and Unavailable cases across daemon versions.
var (
	notFoundNames = []string{
		".Error.DoesNotExist",
		".Error.UnknownObject",
		"no such adapter",
		"no such device",
		"does not exist",
	}
	unavailableNames = []string{
		".Error.ServiceUnknown",
		".Error.NoReply",
		".Error.Disconnected",
		".Error.NotConnected",
		".Error.NameHasNoOwner",
		"connection closed",
	}
)

// Normalize maps raw transport errors onto the sentinel taxonomy, wrapping
// so the original text is preserved. Unrecognized errors pass through.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrClosed) {
		return err
	}

	msg := strings.ToLower(err.Error())
	for _, frag := range notFoundNames {
		if strings.Contains(msg, strings.ToLower(frag)) {
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
	}
	for _, frag := range unavailableNames {
		if strings.Contains(msg, strings.ToLower(frag)) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}

// Kind classifies err. Errors outside the taxonomy classify as CallFailed.
func Kind(err error) FailureKind {
	switch {
	case errors.Is(err, ErrNotFound):
		return NotFound
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrClosed):
		return Unavailable
	default:
		return CallFailed
	}
}
