package tts

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
)

const (
	elevenLabsDefaultVoiceHost    = "EXAVITQu4vr4xnSDxMaL" // Sarah
	elevenLabsDefaultVoiceAdvisor = "XB0fDUnXU5powFXDhCwa" // Charlotte
	elevenLabsDefaultVoiceAnalyst = "JBFqnCBsd6RMkjVDRZzb" // George

	elevenLabsBaseURL = "https://api.elevenlabs.io/v1/text-to-speech"
	elevenLabsModelID = "eleven_flash_v2_5"
)

// elevenLabsPCMFormats maps sample rates to raw PCM output formats.
var elevenLabsPCMFormats = map[int]string{
	16000: "pcm_16000",
	22050: "pcm_22050",
	24000: "pcm_24000",
	44100: "pcm_44100",
}

type elevenLabsRequest struct {
	Text          string                `json:"text"`
	ModelID       string                `json:"model_id"`
	VoiceSettings elevenLabsVoiceParams `json:"voice_settings"`
}

type elevenLabsVoiceParams struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed"`
}

// elevenLabsPanelSettings keeps three voices steady enough to sit in one
// episode without audible jumps between turns.
var elevenLabsPanelSettings = elevenLabsVoiceParams{
	Stability:       0.55,
	SimilarityBoost: 0.75,
	UseSpeakerBoost: true,
	Speed:           1.0,
}

// ElevenLabsProvider speaks plain text through the ElevenLabs REST API and
// returns raw PCM. Markup input is refused with a SynthesisError so the
// assembler re-renders the turn from plain text.
type ElevenLabsProvider struct {
	voices     VoiceMap
	apiKey     string
	baseURL    string
	format     string
	sampleRate int
	httpClient *http.Client
}

func NewElevenLabsProvider(voices VoiceMap, cfg ProviderConfig) (*ElevenLabsProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ELEVENLABS_API_KEY is required for the elevenlabs TTS provider")
	}
	rate := cfg.SampleRate
	if rate == 0 {
		rate = DefaultSampleRate
	}
	format, ok := elevenLabsPCMFormats[rate]
	if !ok {
		return nil, fmt.Errorf("elevenlabs does not support %d Hz PCM output", rate)
	}
	p := &ElevenLabsProvider{
		apiKey:     cfg.APIKey,
		baseURL:    cmp.Or(cfg.Endpoint, elevenLabsBaseURL),
		format:     format,
		sampleRate: rate,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	p.voices = mergeVoices(voices, p.DefaultVoices())
	return p, nil
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

func (p *ElevenLabsProvider) SampleRate() int { return p.sampleRate }

func (p *ElevenLabsProvider) DefaultVoices() VoiceMap {
	return VoiceMap{
		Host:    Voice{ID: elevenLabsDefaultVoiceHost, Name: "Sarah"},
		Advisor: Voice{ID: elevenLabsDefaultVoiceAdvisor, Name: "Charlotte"},
		Analyst: Voice{ID: elevenLabsDefaultVoiceAnalyst, Name: "George"},
	}
}

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, in Input, voice Voice) (AudioResult, error) {
	if in.SSML {
		return AudioResult{}, &SynthesisError{Provider: p.Name(), Err: errors.New("markup input is not supported")}
	}
	if voice.ID == "" {
		voice = p.voices.Host
	}

	body, err := sonic.Marshal(elevenLabsRequest{
		Text:          in.Text,
		ModelID:       elevenLabsModelID,
		VoiceSettings: elevenLabsPanelSettings,
	})
	if err != nil {
		return AudioResult{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s?output_format=%s", p.baseURL, url.PathEscape(voice.ID), p.format)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return AudioResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/pcm")

	res, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return AudioResult{}, ctx.Err()
		}
		return AudioResult{}, &RetryableError{Body: err.Error()}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		switch {
		case res.StatusCode == http.StatusTooManyRequests, res.StatusCode >= http.StatusInternalServerError:
			return AudioResult{}, &RetryableError{StatusCode: res.StatusCode, Body: string(msg)}
		case res.StatusCode == http.StatusUnprocessableEntity, res.StatusCode == http.StatusBadRequest:
			return AudioResult{}, &SynthesisError{Provider: p.Name(), Err: fmt.Errorf("status %d: %s", res.StatusCode, msg)}
		default:
			return AudioResult{}, fmt.Errorf("elevenlabs: status %d: %s", res.StatusCode, msg)
		}
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return AudioResult{}, fmt.Errorf("read response: %w", err)
	}
	if len(data) == 0 {
		return AudioResult{}, &SynthesisError{Provider: p.Name(), Err: errors.New("empty audio")}
	}
	return AudioResult{Data: data, Format: FormatPCM, SampleRate: p.sampleRate}, nil
}

func (p *ElevenLabsProvider) Close() error { return nil }

func elevenLabsAvailableVoices() []VoiceInfo {
	return []VoiceInfo{
		{ID: "EXAVITQu4vr4xnSDxMaL", Name: "Sarah", Gender: "female", Description: "Soft American female, friendly and engaging", DefaultFor: "Host"},
		{ID: "XB0fDUnXU5powFXDhCwa", Name: "Charlotte", Gender: "female", Description: "Swedish-English female, warm and natural", DefaultFor: "Advisor"},
		{ID: "JBFqnCBsd6RMkjVDRZzb", Name: "George", Gender: "male", Description: "Warm British male, clear and authoritative", DefaultFor: "Analyst"},
		{ID: "pNInz6obpgDQGcFmaJgB", Name: "Adam", Gender: "male", Description: "Deep American male, confident narrator"},
		{ID: "ErXwobaYiN019PkySvjV", Name: "Antoni", Gender: "male", Description: "Young American male, conversational"},
		{ID: "onwK4e9ZLuTAKqWW03F9", Name: "Daniel", Gender: "male", Description: "British male, authoritative news anchor"},
		{ID: "pFZP5JQG7iQjIQuC4Bku", Name: "Lily", Gender: "female", Description: "British female, warm storyteller"},
	}
}
