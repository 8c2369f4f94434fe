package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/panelcast/internal/sentence"
)

var tracer = otel.Tracer("panelcast/llm")

// Tier names a fallback step taken by Safe.
type Tier string

const (
	TierAdjusted Tier = "adjusted"
	TierSoftened Tier = "softened"
	TierMinimal  Tier = "minimal"
)

// Retry constants for transport failures within a single tier.
const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 1 * time.Second
	defaultBackoffMulti   = 2
	defaultMaxBackoff     = 10 * time.Second
)

// Options tunes Safe. Zero values pick the defaults.
type Options struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// CallTimeout bounds each individual model call. Zero disables the bound.
	CallTimeout time.Duration
	// OnFallback is called whenever a fallback tier is entered.
	OnFallback func(Tier)
	Logger     *slog.Logger
}

// Safe wraps a Model with the tiered retry and fallback policy. Only a
// transport failure on the final fixed-prompt attempt is surfaced.
type Safe struct {
	model Model
	opts  Options
	log   *slog.Logger
}

// NewSafe creates a Safe around model.
func NewSafe(model Model, opts Options) *Safe {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Safe{model: model, opts: opts, log: log.With("model", model.Name())}
}

// Model returns the wrapped model.
func (s *Safe) Model() Model { return s.model }

// Complete returns a non-empty sentence ending in terminal punctuation.
func (s *Safe) Complete(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	ctx, span := tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("model", s.model.Name()),
		attribute.Int("max_tokens", req.MaxTokens),
		attribute.Float64("temperature", req.Temperature),
	))
	defer span.End()

	text, err := s.complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", err
	}
	return text, nil
}

func (s *Safe) complete(ctx context.Context, req Request) (string, error) {
	out, err := s.call(ctx, req)
	if err == nil && !Acceptable(out) {
		s.enter(ctx, TierAdjusted, "output failed acceptability check", nil)
		out, err = s.call(ctx, Adjusted(req))
	}

	switch {
	case err == nil:
		if sentence.HasContent(out) {
			return sentence.Normalize(out), nil
		}
	case ctx.Err() != nil:
		return "", ctx.Err()
	case IsPolicyRejection(err):
		s.enter(ctx, TierSoftened, "policy rejection", err)
		out, err = s.call(ctx, Soften(req))
		if err == nil && sentence.HasContent(out) {
			return sentence.Normalize(out), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	s.enter(ctx, TierMinimal, "falling back to fixed prompt", err)
	out, err = s.call(ctx, MinimalRequest())
	if err != nil {
		return "", fmt.Errorf("final completion attempt: %w", err)
	}
	if !sentence.HasContent(out) {
		return NeutralFallback, nil
	}
	return sentence.Normalize(out), nil
}

func (s *Safe) enter(ctx context.Context, tier Tier, reason string, cause error) {
	attrs := []any{"tier", string(tier), "reason", reason}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	s.log.WarnContext(ctx, "Completion fallback", attrs...)
	trace.SpanFromContext(ctx).AddEvent("fallback", trace.WithAttributes(attribute.String("tier", string(tier))))
	if s.opts.OnFallback != nil {
		s.opts.OnFallback(tier)
	}
}

// call performs one model call, retrying retryable transport failures with
// exponential backoff.
func (s *Safe) call(ctx context.Context, req Request) (string, error) {
	var lastErr error
	backoff := s.opts.InitialBackoff

	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		out, err := s.chatOnce(ctx, req)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		if !IsRetryable(err) && !errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}

		if attempt < s.opts.MaxAttempts {
			s.log.WarnContext(ctx, "Model call failed, retrying",
				"attempt", attempt, "max_attempts", s.opts.MaxAttempts, "backoff", backoff.String(), "error", err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= time.Duration(defaultBackoffMulti)
			if backoff > s.opts.MaxBackoff {
				backoff = s.opts.MaxBackoff
			}
		}
	}
	return "", lastErr
}

func (s *Safe) chatOnce(ctx context.Context, req Request) (string, error) {
	if s.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
	}
	return s.model.Chat(ctx, req)
}
