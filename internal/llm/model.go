// Package llm wraps hosted language models behind a single chat capability
// and provides the tiered retry and fallback policy used for every turn.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Request is one chat completion call.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Validate checks the input constraints for a completion.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.System) == "":
		return fmt.Errorf("%w: empty system instruction", ErrInvalidRequest)
	case strings.TrimSpace(r.User) == "":
		return fmt.Errorf("%w: empty user prompt", ErrInvalidRequest)
	case r.MaxTokens <= 0:
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidRequest, r.MaxTokens)
	case r.Temperature < 0 || r.Temperature > 1:
		return fmt.Errorf("%w: temperature %.2f outside [0,1]", ErrInvalidRequest, r.Temperature)
	}
	return nil
}

// Model is the hosted model-call capability. Implementations must return
// *PolicyRejectionError for content-policy refusals and *TransportError for
// everything else so callers can tell the two apart.
type Model interface {
	Name() string
	Chat(ctx context.Context, req Request) (string, error)
}
