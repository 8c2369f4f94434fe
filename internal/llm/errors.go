package llm

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned when a completion request violates its input constraints.
var ErrInvalidRequest = errors.New("invalid completion request")

// PolicyRejectionError signals that the provider refused the request on content-policy grounds.
type PolicyRejectionError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *PolicyRejectionError) Error() string {
	msg := fmt.Sprintf("%s rejected the request on policy grounds", e.Provider)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PolicyRejectionError) Unwrap() error { return e.Err }

// TransportError is any provider failure that is not a policy rejection.
type TransportError struct {
	Provider   string
	StatusCode int  // zero when no HTTP response was received
	Retryable  bool // throttling, server errors, and network failures
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s transport error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsPolicyRejection reports whether err is or wraps a PolicyRejectionError.
func IsPolicyRejection(err error) bool {
	var pe *PolicyRejectionError
	return errors.As(err, &pe)
}

// IsRetryable reports whether err is a transport failure worth retrying with backoff.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// statusRetryable classifies HTTP status codes shared by every REST provider.
func statusRetryable(code int) bool {
	return code == 408 || code == 429 || code == 529 || code >= 500
}
