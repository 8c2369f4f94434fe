package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	azureDefaultVoiceHost    = "en-US-SaraNeural"
	azureDefaultVoiceAdvisor = "en-US-JennyNeural"
	azureDefaultVoiceAnalyst = "en-US-BrianNeural"

	azureCognitiveScope = "https://cognitiveservices.azure.com/.default"
)

// azureOutputFormats maps sample rates to RIFF 16-bit mono output formats.
var azureOutputFormats = map[int]string{
	8000:  "riff-8khz-16bit-mono-pcm",
	16000: "riff-16khz-16bit-mono-pcm",
	24000: "riff-24khz-16bit-mono-pcm",
	48000: "riff-48khz-16bit-mono-pcm",
}

// AzureProvider implements Provider using the Azure Speech REST API.
// It accepts markup with mstts express-as styles natively.
type AzureProvider struct {
	voices       VoiceMap
	endpoint     string
	apiKey       string
	tokens       oauth2.TokenSource
	outputFormat string
	sampleRate   int
	httpClient   *http.Client
}

// NewAzureProvider authenticates with a subscription key, or with Azure AD
// client credentials when no key is configured.
func NewAzureProvider(voices VoiceMap, cfg ProviderConfig) (*AzureProvider, error) {
	format, ok := azureOutputFormats[cfg.SampleRate]
	if !ok {
		return nil, fmt.Errorf("azure TTS does not support %d Hz output", cfg.SampleRate)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.Region == "" {
			return nil, fmt.Errorf("SPEECH_REGION is required for the azure TTS provider")
		}
		endpoint = fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", cfg.Region)
	}

	p := &AzureProvider{
		endpoint:     endpoint,
		apiKey:       cfg.APIKey,
		outputFormat: format,
		sampleRate:   cfg.SampleRate,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
	p.voices = mergeVoices(voices, p.DefaultVoices())

	if p.apiKey == "" {
		if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, fmt.Errorf("azure TTS needs SPEECH_KEY or AZURE_TENANT_ID, AZURE_CLIENT_ID and AZURE_CLIENT_SECRET")
		}
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
			Scopes:       []string{azureCognitiveScope},
		}
		p.tokens = oauth2.ReuseTokenSource(nil, cc.TokenSource(context.Background()))
	}
	return p, nil
}

func (p *AzureProvider) Name() string { return "azure" }

// SampleRate is the rate of the RIFF output requested from the service.
func (p *AzureProvider) SampleRate() int { return p.sampleRate }

func (p *AzureProvider) DefaultVoices() VoiceMap {
	return VoiceMap{
		Host:    Voice{ID: azureDefaultVoiceHost, Name: "Sara"},
		Advisor: Voice{ID: azureDefaultVoiceAdvisor, Name: "Jenny"},
		Analyst: Voice{ID: azureDefaultVoiceAnalyst, Name: "Brian"},
	}
}

func (p *AzureProvider) Synthesize(ctx context.Context, in Input, voice Voice) (AudioResult, error) {
	body := in.Text
	if !in.SSML {
		body = plainDocument(in.Text, voice.ID)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(body))
	if err != nil {
		return AudioResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", p.outputFormat)
	req.Header.Set("User-Agent", "panelcast")
	if err := p.authorize(req); err != nil {
		return AudioResult{}, err
	}

	res, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return AudioResult{}, err
		}
		return AudioResult{}, &RetryableError{Body: err.Error()}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return AudioResult{}, fmt.Errorf("read response: %w", err)
	}

	switch {
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError:
		return AudioResult{}, &RetryableError{StatusCode: res.StatusCode, Body: string(data)}
	case res.StatusCode == http.StatusBadRequest:
		return AudioResult{}, &SynthesisError{Provider: p.Name(), Err: fmt.Errorf("markup rejected: %s", strings.TrimSpace(string(data)))}
	case res.StatusCode != http.StatusOK:
		return AudioResult{}, fmt.Errorf("azure TTS API error (status %d): %s", res.StatusCode, string(data))
	case len(data) == 0:
		return AudioResult{}, &SynthesisError{Provider: p.Name(), Err: errors.New("empty audio")}
	}

	slog.DebugContext(ctx, "azure TTS synthesized", "chars", len(in.Text), "bytes", len(data), "ssml", in.SSML,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return AudioResult{Data: data, Format: FormatWAV}, nil
}

func (p *AzureProvider) authorize(req *http.Request) error {
	if p.apiKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)
		return nil
	}
	tok, err := p.tokens.Token()
	if err != nil {
		return fmt.Errorf("get Azure AD token: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}

func (p *AzureProvider) Close() error { return nil }

// plainDocument wraps plain text in the minimal document the REST API requires.
func plainDocument(text, voice string) string {
	var b bytes.Buffer
	b.WriteString(`<speak version="1.0" xml:lang="en-US" xmlns="http://www.w3.org/2001/10/synthesis"><voice name="`)
	b.WriteString(xmlEscaper.Replace(voice))
	b.WriteString(`">`)
	b.WriteString(xmlEscaper.Replace(text))
	b.WriteString(`</voice></speak>`)
	return b.String()
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func azureAvailableVoices() []VoiceInfo {
	return []VoiceInfo{
		{ID: "en-US-SaraNeural", Name: "Sara", Gender: "female", Description: "Friendly, brisk host voice", DefaultFor: "Host"},
		{ID: "en-US-JennyNeural", Name: "Jenny", Gender: "female", Description: "Warm, cheerful consultant", DefaultFor: "Advisor"},
		{ID: "en-US-BrianNeural", Name: "Brian", Gender: "male", Description: "Measured, serious narrator", DefaultFor: "Analyst"},
		{ID: "en-US-GuyNeural", Name: "Guy", Gender: "male", Description: "Clear newscast male voice"},
		{ID: "en-US-AriaNeural", Name: "Aria", Gender: "female", Description: "Expressive, many speaking styles"},
		{ID: "en-US-DavisNeural", Name: "Davis", Gender: "male", Description: "Calm, conversational male voice"},
		{ID: "en-GB-RyanNeural", Name: "Ryan", Gender: "male", Description: "British male, steady delivery"},
	}
}
