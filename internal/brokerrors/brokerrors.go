// Package brokerrors holds the sentinel error kinds shared across the
// questionnaire, event bus, and session packages, so callers can use
// errors.Is against one stable set of values regardless of which package
// surfaced the failure (spec.md §7).
package brokerrors

import "errors"

var (
	// ErrInvalidArgument marks a construction or mutation call rejected
	// because its arguments are malformed (e.g. an unknown condition
	// operator, a duplicate section id, an unmatched option).
	ErrInvalidArgument = errors.New("broker: invalid argument")

	// ErrTypeError marks a value rejected because of its Go type (e.g. a
	// spelling-sensitive answer that isn't a sequence of single characters).
	ErrTypeError = errors.New("broker: type error")

	// ErrSessionClosed marks an operation attempted on a closed session.
	ErrSessionClosed = errors.New("broker: session is closed")

	// ErrSessionError marks a session-level configuration or protocol
	// failure: a missing user port, an invalid upstream port, a handshake
	// timeout, or an invalid scaffolding return.
	ErrSessionError = errors.New("broker: session error")

	// ErrRenderError marks a template rendering failure.
	ErrRenderError = errors.New("broker: render error")
)
