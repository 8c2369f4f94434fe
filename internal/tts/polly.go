package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/apresai/panelcast/internal/ssml"
)

const (
	pollyDefaultVoiceHost    = "Joanna"
	pollyDefaultVoiceAdvisor = "Kendra"
	pollyDefaultVoiceAnalyst = "Matthew"
)

// pollyVoiceLang maps voice IDs to their language codes.
var pollyVoiceLang = map[string]types.LanguageCode{
	"Joanna":  types.LanguageCodeEnUs,
	"Kendra":  types.LanguageCodeEnUs,
	"Matthew": types.LanguageCodeEnUs,
	"Joey":    types.LanguageCodeEnUs,
	"Salli":   types.LanguageCodeEnUs,
	"Amy":     types.LanguageCodeEnGb,
	"Brian":   types.LanguageCodeEnGb,
}

// Polly PCM output supports only these rates.
var pollyPCMRates = map[int]bool{8000: true, 16000: true}

// PollyAPI is the subset of the Polly client used by PollyProvider.
type PollyAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyProvider implements Provider using AWS Polly. The standard engine is
// the default because it honors prosody pitch.
type PollyProvider struct {
	voices     VoiceMap
	client     PollyAPI
	engine     types.Engine
	sampleRate int
}

func NewPollyProvider(ctx context.Context, voices VoiceMap, cfg ProviderConfig) (*PollyProvider, error) {
	var awsCfg aws.Config
	if cfg.AWS != nil {
		awsCfg = *cfg.AWS
	} else {
		var err error
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config for Polly: %w", err)
		}
	}
	return NewPollyProviderWithClient(polly.NewFromConfig(awsCfg), voices, cfg)
}

// NewPollyProviderWithClient wraps an existing client.
func NewPollyProviderWithClient(client PollyAPI, voices VoiceMap, cfg ProviderConfig) (*PollyProvider, error) {
	rate := cfg.SampleRate
	if rate == 0 || rate == DefaultSampleRate {
		rate = 16000
	}
	if !pollyPCMRates[rate] {
		return nil, fmt.Errorf("polly PCM output supports 8000 or 16000 Hz, not %d", rate)
	}
	engine := types.EngineStandard
	if cfg.PollyEngine != "" {
		engine = types.Engine(cfg.PollyEngine)
	}
	p := &PollyProvider{client: client, engine: engine, sampleRate: rate}
	p.voices = mergeVoices(voices, p.DefaultVoices())
	return p, nil
}

func (p *PollyProvider) Name() string { return "polly" }

// SampleRate is 8000 or 16000; Polly PCM offers nothing higher.
func (p *PollyProvider) SampleRate() int { return p.sampleRate }

func (p *PollyProvider) DefaultVoices() VoiceMap {
	return VoiceMap{
		Host:    Voice{ID: pollyDefaultVoiceHost, Name: pollyDefaultVoiceHost},
		Advisor: Voice{ID: pollyDefaultVoiceAdvisor, Name: pollyDefaultVoiceAdvisor},
		Analyst: Voice{ID: pollyDefaultVoiceAnalyst, Name: pollyDefaultVoiceAnalyst},
	}
}

func (p *PollyProvider) Synthesize(ctx context.Context, in Input, voice Voice) (AudioResult, error) {
	lang, ok := pollyVoiceLang[voice.ID]
	if !ok {
		lang = types.LanguageCodeEnUs
	}

	text, textType := in.Text, types.TextTypeText
	if in.SSML {
		text, textType = ssml.WithoutExpressAs(in.Text), types.TextTypeSsml
	}

	resp, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       p.engine,
		OutputFormat: types.OutputFormatPcm,
		SampleRate:   aws.String(strconv.Itoa(p.sampleRate)),
		Text:         aws.String(text),
		TextType:     textType,
		VoiceId:      types.VoiceId(voice.ID),
		LanguageCode: lang,
	})
	if err != nil {
		return AudioResult{}, p.classify(err)
	}
	defer resp.AudioStream.Close()

	data, err := io.ReadAll(resp.AudioStream)
	if err != nil {
		return AudioResult{}, fmt.Errorf("Polly read audio: %w", err)
	}
	if len(data) == 0 {
		return AudioResult{}, &SynthesisError{Provider: p.Name(), Err: errors.New("empty audio")}
	}
	return AudioResult{Data: data, Format: FormatPCM, SampleRate: p.sampleRate}, nil
}

func (p *PollyProvider) classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidSsmlException", "SsmlMarksNotSupportedForTextTypeException", "TextLengthExceededException",
			"EngineNotSupportedException", "LanguageNotSupportedException":
			return &SynthesisError{Provider: p.Name(), Err: err}
		case "ThrottlingException", "ServiceFailureException":
			return &RetryableError{Body: apiErr.ErrorMessage()}
		}
	}
	return fmt.Errorf("Polly synthesize: %w", err)
}

func (p *PollyProvider) Close() error { return nil }

func pollyAvailableVoices() []VoiceInfo {
	return []VoiceInfo{
		{ID: "Joanna", Name: "Joanna", Gender: "female", Description: "en-US, Standard", DefaultFor: "Host"},
		{ID: "Kendra", Name: "Kendra", Gender: "female", Description: "en-US, Standard", DefaultFor: "Advisor"},
		{ID: "Matthew", Name: "Matthew", Gender: "male", Description: "en-US, Standard", DefaultFor: "Analyst"},
		{ID: "Joey", Name: "Joey", Gender: "male", Description: "en-US, Standard"},
		{ID: "Salli", Name: "Salli", Gender: "female", Description: "en-US, Standard"},
		{ID: "Amy", Name: "Amy", Gender: "female", Description: "en-GB, Standard"},
		{ID: "Brian", Name: "Brian", Gender: "male", Description: "en-GB, Standard"},
	}
}
