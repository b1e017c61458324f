// Package orcherr defines the typed error taxonomy shared across the
// orchestrator core: sessions, the workflow graph engine, and the
// resilience layer all return *Error so callers can branch on Kind
// instead of parsing messages.
package orcherr

import "fmt"

// Kind is a machine-readable error classification.
type Kind string

const (
	NotFound     Kind = "NOT_FOUND"
	Busy         Kind = "BUSY"
	Stale        Kind = "STALE"
	Validation   Kind = "VALIDATION"
	Forbidden    Kind = "FORBIDDEN"
	Runaway      Kind = "RUNAWAY"
	Canceled     Kind = "CANCELED"
	Timeout      Kind = "TIMEOUT"
	RateLimited  Kind = "RATE_LIMITED"
	Overloaded   Kind = "OVERLOADED"
	NetworkError Kind = "NETWORK_ERROR"
	Auth         Kind = "AUTH"
	InvalidInput Kind = "INVALID_INPUT"
	Internal     Kind = "INTERNAL"
)

// Recoverable kinds are retried by the resilience layer with reason-specific
// backoff (spec §4.F); all others are non-recoverable and bubble immediately.
var recoverable = map[Kind]bool{
	RateLimited:  true,
	Overloaded:   true,
	Timeout:      true,
	NetworkError: true,
}

// Recoverable reports whether errors of this kind should be retried.
func (k Kind) Recoverable() bool { return recoverable[k] }

// Error is the concrete error type returned across the core. NodeID and
// SessionID are set where applicable for observability; either may be empty.
type Error struct {
	Kind      Kind
	Message   string
	SessionID string
	NodeID    string
	Cause     error
	// Issues carries per-item detail for Validation errors when the producer
	// sets it (spec §4.D requires the full list of problems, not just the
	// first). The session registry leaves it empty and wraps the compile
	// error, which carries the *workflow.ValidationError list, as Cause.
	Issues []string
}

func (e *Error) Error() string {
	switch {
	case e.NodeID != "" && e.SessionID != "":
		return fmt.Sprintf("%s: session %s: node %s: %s", e.Kind, e.SessionID, e.NodeID, e.Message)
	case e.SessionID != "":
		return fmt.Sprintf("%s: session %s: %s", e.Kind, e.SessionID, e.Message)
	case e.NodeID != "":
		return fmt.Sprintf("%s: node %s: %s", e.Kind, e.NodeID, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a bare *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is an *Error of the given kind, unwrapping as
// necessary.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if oe, ok := err.(*Error); ok {
			e = oe
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
