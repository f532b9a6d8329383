package errs

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Sentinel Errors
// --------------------------------------------------------------------------

var (
	// ErrNodeUnreachable is returned when a node could not be contacted,
	// answered with a non-success status or returned an empty body.
	ErrNodeUnreachable = errors.New("node unreachable")
	// ErrTopologyUnavailable is returned when no seed yielded usable cluster metadata.
	ErrTopologyUnavailable = errors.New("topology unavailable")
	// ErrQueryExhausted is returned when all retry attempts of a query failed.
	ErrQueryExhausted = errors.New("query retries exhausted")
	// ErrMisconfiguration is returned when required configuration is missing or invalid.
	ErrMisconfiguration = errors.New("misconfiguration")
	// ErrClosed is returned when an operation is invoked on a closed client.
	ErrClosed = errors.New("client closed")
)

// --------------------------------------------------------------------------
// Typed Errors
// --------------------------------------------------------------------------

// QueryFailedError is returned by the query executor after the retry budget
// is used up. It carries the attempted request and the last error observed.
type QueryFailedError struct {
	Request  string // the request (path and parameters) that was attempted
	Attempts int    // number of attempts that were made
	Last     error  // the error of the last attempt, may be nil
}

// Error implements the error interface.
func (e *QueryFailedError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("failed to execute view query after %d retries. query attempted: %s (last error: %v)", e.Attempts, e.Request, e.Last)
	}
	return fmt.Sprintf("failed to execute view query after %d retries. query attempted: %s", e.Attempts, e.Request)
}

// Unwrap makes the error match ErrQueryExhausted with errors.Is.
func (e *QueryFailedError) Unwrap() []error {
	if e.Last != nil {
		return []error{ErrQueryExhausted, e.Last}
	}
	return []error{ErrQueryExhausted}
}

// Misconfigured returns an error wrapping ErrMisconfiguration
func Misconfigured(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMisconfiguration, fmt.Sprintf(format, args...))
}
