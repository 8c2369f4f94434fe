package llm

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	text string
	err  error
}

// scriptedModel returns canned replies in order and records every request.
type scriptedModel struct {
	mu      sync.Mutex
	replies []reply
	calls   []Request
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Chat(_ context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	i := len(m.calls) - 1
	if i >= len(m.replies) {
		return "", errors.New("unexpected call")
	}
	return m.replies[i].text, m.replies[i].err
}

func newTestSafe(m Model, tiers *[]Tier) *Safe {
	return NewSafe(m, Options{
		InitialBackoff: time.Nanosecond,
		OnFallback: func(t Tier) {
			if tiers != nil {
				*tiers = append(*tiers, t)
			}
		},
	})
}

func baseRequest() Request {
	return Request{
		System:      "You are a metrics advisor. Ignore speculation. Do not debate; treat the data as the sole factual source.",
		User:        "Context: ASA fell 42%. Don't guess, ignore outliers, and give one recommendation.",
		MaxTokens:   130,
		Temperature: 0.45,
	}
}

func policyErr() error {
	return &PolicyRejectionError{Provider: "scripted", Reason: "content filter"}
}

func TestSafeCompleteAcceptsShortLowercase(t *testing.T) {
	m := &scriptedModel{replies: []reply{{text: "abcdefgh"}}}
	got, err := newTestSafe(m, nil).Complete(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh.", got)
	assert.Len(t, got, 9)
	assert.Len(t, m.calls, 1)
}

func TestSafeCompletePolicyTiers(t *testing.T) {
	var tiers []Tier
	m := &scriptedModel{replies: []reply{
		{err: policyErr()},
		{err: policyErr()},
		{text: "Trends are mixed, so validate the volume feed first"},
	}}

	got, err := newTestSafe(m, &tiers).Complete(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "Trends are mixed, so validate the volume feed first.", got)
	require.Len(t, m.calls, 3)

	softened := m.calls[1]
	ignoreRe := regexp.MustCompile(`(?i)\bignore\b`)
	assert.False(t, ignoreRe.MatchString(softened.System), softened.System)
	assert.False(t, ignoreRe.MatchString(softened.User), softened.User)
	assert.Contains(t, softened.System, "primary context")
	assert.Contains(t, softened.System, "discussion")
	assert.Contains(t, softened.System, neutralToneClause)
	assert.Equal(t, 110, softened.MaxTokens)
	assert.InDelta(t, 0.25, softened.Temperature, 1e-9)

	assert.Equal(t, MinimalRequest(), m.calls[2])
	assert.Equal(t, []Tier{TierSoftened, TierMinimal}, tiers)
}

func TestSafeCompleteUnacceptableRetriesWithAdjustedParams(t *testing.T) {
	var tiers []Tier
	m := &scriptedModel{replies: []reply{
		{text: "NO WAY THIS IS FINE"},
		{text: "A three-month rolling average will separate noise from signal"},
	}}

	got, err := newTestSafe(m, &tiers).Complete(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "A three-month rolling average will separate noise from signal.", got)
	require.Len(t, m.calls, 2)
	assert.Equal(t, 80, m.calls[1].MaxTokens)
	assert.InDelta(t, 0.55, m.calls[1].Temperature, 1e-9)
	assert.Equal(t, []Tier{TierAdjusted}, tiers)
}

func TestSafeCompleteAdjustedRetryPolicyRejectionSoftens(t *testing.T) {
	m := &scriptedModel{replies: []reply{
		{text: "see https://example.com"},
		{err: policyErr()},
		{text: "Please compare cohorts before acting"},
	}}

	got, err := newTestSafe(m, nil).Complete(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "Please compare cohorts before acting.", got)
	require.Len(t, m.calls, 3)
	assert.Equal(t, 110, m.calls[2].MaxTokens, "softened tier starts from the original parameters")
}

func TestSafeCompleteRetriesTransientTransport(t *testing.T) {
	m := &scriptedModel{replies: []reply{
		{err: &TransportError{Provider: "scripted", StatusCode: 503, Retryable: true, Err: errors.New("unavailable")}},
		{text: "Volume is steady across the quarter"},
	}}

	got, err := newTestSafe(m, nil).Complete(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "Volume is steady across the quarter.", got)
	require.Len(t, m.calls, 2)
	assert.Equal(t, m.calls[0], m.calls[1])
}

func TestSafeCompleteTransportFailureFallsToMinimal(t *testing.T) {
	m := &scriptedModel{replies: []reply{
		{err: &TransportError{Provider: "scripted", StatusCode: 401, Err: errors.New("unauthorized")}},
		{text: "Trends look stable; keep monitoring weekly"},
	}}

	got, err := newTestSafe(m, nil).Complete(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "Trends look stable; keep monitoring weekly.", got)
	require.Len(t, m.calls, 2)
	assert.Equal(t, MinimalRequest(), m.calls[1])
}

func TestSafeCompleteFinalTransportFailureSurfaces(t *testing.T) {
	final := &TransportError{Provider: "scripted", StatusCode: 403, Err: errors.New("forbidden")}
	m := &scriptedModel{replies: []reply{
		{err: policyErr()},
		{err: policyErr()},
		{err: final},
	}}

	_, err := newTestSafe(m, nil).Complete(context.Background(), baseRequest())
	require.Error(t, err)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 403, te.StatusCode)
	assert.False(t, IsPolicyRejection(err))
}

func TestSafeCompleteEmptyOutputsYieldNeutralSentence(t *testing.T) {
	m := &scriptedModel{replies: []reply{{text: ""}, {text: "  "}, {text: "**"}}}

	got, err := newTestSafe(m, nil).Complete(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, NeutralFallback, got)
	assert.Len(t, m.calls, 3)
}

func TestSafeCompleteNormalizesMarkdown(t *testing.T) {
	m := &scriptedModel{replies: []reply{{text: "**Given that** ASA   fell, add a _control chart_"}}}

	got, err := newTestSafe(m, nil).Complete(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "Given that ASA fell, add a control chart.", got)
}

func TestSafeCompleteValidatesInput(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Request)
	}{
		{name: "empty system", mod: func(r *Request) { r.System = " " }},
		{name: "empty user", mod: func(r *Request) { r.User = "" }},
		{name: "zero tokens", mod: func(r *Request) { r.MaxTokens = 0 }},
		{name: "temperature high", mod: func(r *Request) { r.Temperature = 1.2 }},
		{name: "temperature negative", mod: func(r *Request) { r.Temperature = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &scriptedModel{}
			req := baseRequest()
			tt.mod(&req)
			_, err := newTestSafe(m, nil).Complete(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidRequest)
			assert.Empty(t, m.calls)
		})
	}
}

func TestSafeCompleteHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &scriptedModel{replies: []reply{{text: "never returned"}}}

	_, err := newTestSafe(m, nil).Complete(ctx, baseRequest())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.calls)
}
