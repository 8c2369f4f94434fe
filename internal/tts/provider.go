package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/apresai/panelcast/internal/persona"
)

// AudioFormat represents the audio encoding returned by a provider.
type AudioFormat string

const (
	FormatWAV AudioFormat = "wav" // RIFF container, 16-bit mono PCM
	FormatPCM AudioFormat = "pcm" // raw 16-bit little-endian mono samples
)

// DefaultSampleRate is requested from every provider unless overridden.
const DefaultSampleRate = 24000

// Voice holds a provider-specific voice identifier.
type Voice struct {
	ID   string // Provider-specific voice identifier
	Name string // Human-readable label
}

// VoiceMap maps the show personas to voices.
type VoiceMap struct {
	Host    Voice
	Advisor Voice
	Analyst Voice
}

// For returns the voice assigned to a persona.
func (m VoiceMap) For(id persona.ID) Voice {
	switch id {
	case persona.Advisor:
		return m.Advisor
	case persona.Analyst:
		return m.Analyst
	default:
		return m.Host
	}
}

// Input is the text sent for synthesis. SSML marks Text as a speech markup
// document rather than plain text.
type Input struct {
	Text string
	SSML bool
}

// AudioResult is the output of a synthesis call.
type AudioResult struct {
	Data       []byte
	Format     AudioFormat
	SampleRate int // set for FormatPCM
}

// Provider synthesizes speech from markup or plain text.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, in Input, voice Voice) (AudioResult, error)
	DefaultVoices() VoiceMap
	Close() error
}

// OutputRate returns the PCM sample rate p produces, or zero when p does
// not report one.
func OutputRate(p Provider) int {
	if r, ok := p.(interface{ SampleRate() int }); ok {
		return r.SampleRate()
	}
	return 0
}

// ProviderConfig holds provider settings shared across backends.
type ProviderConfig struct {
	SampleRate int
	APIKey     string // ElevenLabs or Azure subscription key
	Region     string // Azure region
	Endpoint   string // overrides the provider base URL

	// Azure AD client credentials, used when APIKey is empty.
	TenantID     string
	ClientID     string
	ClientSecret string

	PollyEngine string
	AWS         *aws.Config // Polly; loaded from the environment when nil
}

// VoiceInfo describes an available voice for display in the registry.
type VoiceInfo struct {
	ID          string
	Name        string
	Gender      string // "male" or "female"
	Description string
	DefaultFor  string // "Host", "Advisor", "Analyst", or ""
}

// Providers lists the accepted provider names.
var Providers = []string{"azure", "google", "polly", "elevenlabs"}

// AvailableVoices returns the voice catalog for the named provider.
func AvailableVoices(providerName string) ([]VoiceInfo, error) {
	switch providerName {
	case "azure":
		return azureAvailableVoices(), nil
	case "elevenlabs":
		return elevenLabsAvailableVoices(), nil
	case "google":
		return googleAvailableVoices(), nil
	case "polly":
		return pollyAvailableVoices(), nil
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", providerName)
	}
}

// SynthesisError reports that a provider could not produce audio for the
// given input. Callers may retry once with plain text.
type SynthesisError struct {
	Provider string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("%s synthesis failed: %v", e.Provider, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// IsSynthesisError reports whether err is or wraps a SynthesisError.
func IsSynthesisError(err error) bool {
	var se *SynthesisError
	return errors.As(err, &se)
}

// RetryableError signals that the operation can be retried.
type RetryableError struct {
	StatusCode int
	Body       string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// RetryPolicy bounds exponential backoff on RetryableError.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Multiplier     int
	MaxBackoff     time.Duration
}

// DefaultRetry is shared by all providers.
var DefaultRetry = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 1 * time.Second,
	Multiplier:     2,
	MaxBackoff:     10 * time.Second,
}

// WithRetry executes fn with DefaultRetry.
func WithRetry(ctx context.Context, fn func() error) error {
	return DefaultRetry.Do(ctx, fn)
}

// Do executes fn with exponential backoff on RetryableError.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := max(p.MaxAttempts, 1)
	multi := max(p.Multiplier, 1)
	backoff := p.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var re *RetryableError
		if !errors.As(err, &re) {
			return err
		}
		lastErr = err

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= time.Duration(multi)
			if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}
	}

	return lastErr
}

// NewProvider creates a TTS provider by name. Empty voices keep the
// provider defaults.
func NewProvider(ctx context.Context, name string, voices VoiceMap, cfg ProviderConfig) (Provider, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	switch name {
	case "", "azure":
		return NewAzureProvider(voices, cfg)
	case "google":
		return NewGoogleProvider(ctx, voices, cfg)
	case "polly":
		return NewPollyProvider(ctx, voices, cfg)
	case "elevenlabs":
		return NewElevenLabsProvider(voices, cfg)
	default:
		return nil, fmt.Errorf("unknown TTS provider %q: choose azure, google, polly, or elevenlabs", name)
	}
}

// mergeVoices fills empty entries of v from defaults.
func mergeVoices(v, defaults VoiceMap) VoiceMap {
	if v.Host.ID == "" {
		v.Host = defaults.Host
	}
	if v.Advisor.ID == "" {
		v.Advisor = defaults.Advisor
	}
	if v.Analyst.ID == "" {
		v.Analyst = defaults.Analyst
	}
	return v
}
