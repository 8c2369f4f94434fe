package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/apresai/panelcast/internal/assembly"
	"github.com/apresai/panelcast/internal/llm"
	"github.com/apresai/panelcast/internal/persona"
	"github.com/apresai/panelcast/internal/tts"
)

// ErrEmptyContext is returned when a session is started without context.
var ErrEmptyContext = errors.New("session context is empty")

// Error reports the turn at which a session failed. Turn is 1-based; it is
// zero when the final merge failed.
type Error struct {
	State   State
	Persona persona.ID
	Turn    int
	Err     error
}

func (e *Error) Error() string {
	if e.Turn == 0 {
		return fmt.Sprintf("[%s] %s: %v", e.State, e.Kind(), e.Err)
	}
	return fmt.Sprintf("[%s] turn %d (%s) %s: %v", e.State, e.Turn, e.Persona, e.Kind(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind names the underlying error class.
func (e *Error) Kind() string {
	var (
		policy    *llm.PolicyRejectionError
		transport *llm.TransportError
		synth     *tts.SynthesisError
		retryable *tts.RetryableError
		mismatch  *assembly.FormatMismatchError
	)
	switch {
	case errors.Is(e.Err, context.Canceled):
		return "canceled"
	case errors.Is(e.Err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(e.Err, &policy):
		return "policy_rejection"
	case errors.As(e.Err, &transport), errors.As(e.Err, &retryable):
		return "transport"
	case errors.As(e.Err, &synth):
		return "synthesis"
	case errors.As(e.Err, &mismatch):
		return "format_mismatch"
	case errors.Is(e.Err, llm.ErrInvalidRequest):
		return "invalid_request"
	}
	return "internal"
}
