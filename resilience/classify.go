package resilience

import (
	"errors"
	"time"

	"github.com/agentloom/agentloom/orcherr"
)

// FailureReason is the model-error taxonomy the classifier maps adapter
// errors onto.
type FailureReason string

const (
	ReasonRateLimited  FailureReason = "rate_limited"
	ReasonOverloaded   FailureReason = "overloaded"
	ReasonTimeout      FailureReason = "timeout"
	ReasonNetworkError FailureReason = "network_error"
	ReasonAuth         FailureReason = "auth"
	ReasonInvalidInput FailureReason = "invalid_input"
	ReasonInternal     FailureReason = "internal"
	ReasonUnknown      FailureReason = "unknown"
)

var recoverableReasons = map[FailureReason]bool{
	ReasonRateLimited:  true,
	ReasonOverloaded:   true,
	ReasonTimeout:      true,
	ReasonNetworkError: true,
}

// Recoverable reports whether a FailureReason is worth retrying.
func (r FailureReason) Recoverable() bool { return recoverableReasons[r] }

var kindToReason = map[orcherr.Kind]FailureReason{
	orcherr.RateLimited:  ReasonRateLimited,
	orcherr.Overloaded:   ReasonOverloaded,
	orcherr.Timeout:      ReasonTimeout,
	orcherr.NetworkError: ReasonNetworkError,
	orcherr.Auth:         ReasonAuth,
	orcherr.InvalidInput: ReasonInvalidInput,
	orcherr.Internal:     ReasonInternal,
}

// Classify maps an error returned by a model adapter to a FailureReason.
// It recognizes *orcherr.Error by Kind; any other error classifies as
// ReasonUnknown (treated as non-recoverable, per spec: only the four
// named reasons retry).
func Classify(err error) FailureReason {
	var oe *orcherr.Error
	if errors.As(err, &oe) {
		if reason, ok := kindToReason[oe.Kind]; ok {
			return reason
		}
	}
	return ReasonUnknown
}

// backoffBase is the starting delay per FailureReason before scaling by
// attempt number.
var backoffBase = map[FailureReason]time.Duration{
	ReasonRateLimited: 5 * time.Second,
	ReasonOverloaded:  3 * time.Second,
}

const defaultBackoff = 2 * time.Second
const maxRetries = 2 // 3 total attempts

// Backoff returns the delay before retry attempt number `attempt` (1-indexed:
// the delay before the first retry is Backoff(reason, 1)).
func Backoff(reason FailureReason, attempt int) time.Duration {
	base, ok := backoffBase[reason]
	if !ok {
		base = defaultBackoff
	}
	return base * time.Duration(attempt)
}

// MaxRetries is the maximum number of retries after the initial attempt
// (3 total attempts).
func MaxRetries() int { return maxRetries }
