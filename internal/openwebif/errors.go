package openwebif

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrAuth        = errors.New("api: authentication rejected")
	ErrSession     = errors.New("api: session token stale")
	ErrNotFound    = errors.New("api: endpoint not found")
	ErrUnavailable = errors.New("api: host unreachable or transport failure")
	ErrUpstream    = errors.New("api: receiver internal error")
	ErrBadResponse = errors.New("api: invalid response format")
	ErrTimeout     = errors.New("api: request timed out")
)

// APIError wraps a sentinel with the failing operation and, when the
// receiver answered, the HTTP status and a clip of the body.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("openwebif: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Sentinel }
