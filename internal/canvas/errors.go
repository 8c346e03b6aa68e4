package canvas

import (
	"errors"
	"fmt"
	"time"
)

// Transport-level errors. These describe a single failed exchange with
// the device; the session decides what they mean for connectivity state.
var (
	// ErrConnectionRefused indicates the device actively refused or the
	// connection could not be established.
	ErrConnectionRefused = errors.New("canvas: connection refused")

	// ErrTimeout indicates the device did not respond within the
	// per-call timeout.
	ErrTimeout = errors.New("canvas: request timed out")

	// ErrMalformedResponse indicates the device replied with a body
	// that could not be parsed, even after lenient JSON extraction.
	ErrMalformedResponse = errors.New("canvas: malformed device response")

	// ErrDeviceBusy indicates the device reported it cannot accept the
	// operation right now (HTTP 409 or 503).
	ErrDeviceBusy = errors.New("canvas: device busy")

	// ErrPayloadTooLarge indicates an image payload exceeds the
	// configured device limit. Raised before any bytes hit the wire.
	ErrPayloadTooLarge = errors.New("canvas: payload exceeds device limit")
)

// Session-level errors.
var (
	// ErrUnreachable indicates the device could not be contacted after
	// the bounded wake-probe or retry sequence.
	ErrUnreachable = errors.New("canvas: device unreachable")

	// ErrOperationRejected indicates the device answered but refused
	// the operation (non-success HTTP status).
	ErrOperationRejected = errors.New("canvas: operation rejected by device")
)

// ErrStale is returned by the status cache when the cached snapshot is
// older than the caller's acceptable age. It never triggers a network
// call; the caller decides whether to refresh.
var ErrStale = errors.New("canvas: cached status is stale")

// OpError wraps a failed operation with enough context for diagnostics:
// the operation kind, the device address, and when the failure occurred.
type OpError struct {
	Kind Kind
	Addr string
	Time time.Time
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("canvas: %s on %s at %s: %v",
		e.Kind, e.Addr, e.Time.Format(time.RFC3339), e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
