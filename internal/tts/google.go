package tts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/apresai/panelcast/internal/ssml"
)

const (
	googleDefaultVoiceHost    = "en-US-Neural2-F"
	googleDefaultVoiceAdvisor = "en-US-Neural2-C"
	googleDefaultVoiceAnalyst = "en-US-Neural2-D"
)

// SpeechAPI is the subset of the Cloud TTS client used by GoogleProvider.
type SpeechAPI interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

type googleClient struct{ *texttospeech.Client }

func (c googleClient) SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	return c.Client.SynthesizeSpeech(ctx, req)
}

// GoogleProvider implements Provider using Google Cloud TTS. Neural2 voices
// accept standard SSML prosody; vendor style extensions are removed.
type GoogleProvider struct {
	voices     VoiceMap
	client     SpeechAPI
	sampleRate int
}

func NewGoogleProvider(ctx context.Context, voices VoiceMap, cfg ProviderConfig) (*GoogleProvider, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create Google TTS client: %w", err)
	}
	return NewGoogleProviderWithClient(googleClient{client}, voices, cfg), nil
}

// NewGoogleProviderWithClient wraps an existing client.
func NewGoogleProviderWithClient(client SpeechAPI, voices VoiceMap, cfg ProviderConfig) *GoogleProvider {
	p := &GoogleProvider{client: client, sampleRate: cfg.SampleRate}
	if p.sampleRate == 0 {
		p.sampleRate = DefaultSampleRate
	}
	p.voices = mergeVoices(voices, p.DefaultVoices())
	return p
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) SampleRate() int { return p.sampleRate }

func (p *GoogleProvider) DefaultVoices() VoiceMap {
	return VoiceMap{
		Host:    Voice{ID: googleDefaultVoiceHost, Name: "Neural2-F"},
		Advisor: Voice{ID: googleDefaultVoiceAdvisor, Name: "Neural2-C"},
		Analyst: Voice{ID: googleDefaultVoiceAnalyst, Name: "Neural2-D"},
	}
}

func (p *GoogleProvider) Synthesize(ctx context.Context, in Input, voice Voice) (AudioResult, error) {
	start := time.Now()
	input := &texttospeechpb.SynthesisInput{
		InputSource: &texttospeechpb.SynthesisInput_Text{Text: in.Text},
	}
	if in.SSML {
		input.InputSource = &texttospeechpb.SynthesisInput_Ssml{Ssml: ssml.WithoutExpressAs(in.Text)}
	}

	resp, err := p.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: input,
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: "en-US",
			Name:         voice.ID,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: int32(p.sampleRate),
		},
	})
	if err != nil {
		return AudioResult{}, p.classify(err)
	}
	if len(resp.AudioContent) == 0 {
		return AudioResult{}, &SynthesisError{Provider: p.Name(), Err: fmt.Errorf("empty audio")}
	}

	slog.DebugContext(ctx, "google TTS synthesized", "chars", len(in.Text), "bytes", len(resp.AudioContent),
		"elapsed", time.Since(start).Round(time.Millisecond))
	// LINEAR16 responses carry a RIFF header.
	return AudioResult{Data: resp.AudioContent, Format: FormatWAV}, nil
}

func (p *GoogleProvider) classify(err error) error {
	switch status.Code(err) {
	case codes.InvalidArgument:
		return &SynthesisError{Provider: p.Name(), Err: err}
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal:
		return &RetryableError{StatusCode: int(status.Code(err)), Body: err.Error()}
	case codes.Canceled:
		return context.Canceled
	default:
		return fmt.Errorf("Google TTS synthesize: %w", err)
	}
}

func (p *GoogleProvider) Close() error { return p.client.Close() }

func googleAvailableVoices() []VoiceInfo {
	return []VoiceInfo{
		{ID: "en-US-Neural2-F", Name: "Neural2-F", Gender: "female", Description: "Bright, clear host voice", DefaultFor: "Host"},
		{ID: "en-US-Neural2-C", Name: "Neural2-C", Gender: "female", Description: "Warm, confident female voice", DefaultFor: "Advisor"},
		{ID: "en-US-Neural2-D", Name: "Neural2-D", Gender: "male", Description: "Steady, measured male voice", DefaultFor: "Analyst"},
		{ID: "en-US-Neural2-A", Name: "Neural2-A", Gender: "male", Description: "Deep male narrator"},
		{ID: "en-US-Neural2-J", Name: "Neural2-J", Gender: "male", Description: "Upbeat male voice"},
		{ID: "en-US-Neural2-H", Name: "Neural2-H", Gender: "female", Description: "Soft, friendly female voice"},
	}
}
