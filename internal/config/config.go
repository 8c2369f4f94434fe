// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/apresai/panelcast/internal/llm"
	"github.com/apresai/panelcast/internal/polish"
	"github.com/apresai/panelcast/internal/session"
	"github.com/apresai/panelcast/internal/tts"
)

// Config contains all runtime settings.
type Config struct {
	ModelProvider string
	ModelID       string
	TTSProvider   string

	OutputDir   string
	Prefix      string
	Turns       int
	MaxTokens   int
	Temperature float64
	CallTimeout time.Duration
	SampleRate  int
	Seed        uint64
	Polish      polish.Config

	VoiceHost    string
	VoiceAdvisor string
	VoiceAnalyst string

	HTTPAddr        string
	MCPAddr         string
	AllowAnyOrigin  bool
	MaxJobs         int
	ShutdownTimeout time.Duration
	MetricsNS       string

	DatabaseURL   string
	DynamoDBTable string
	S3Bucket      string
	CDNBaseURL    string
	SecretPrefix  string
	AWSRegion     string

	Credentials Credentials
}

// Credentials are provider keys. They may be filled from Secrets Manager.
type Credentials struct {
	AnthropicAPIKey   string
	AzureOpenAIKey    string
	AzureOpenAIURL    string
	AzureOpenAIModel  string
	OpenAIAPIVersion  string
	OpenAIAPIKey      string
	GeminiAPIKey      string
	ElevenLabsAPIKey  string
	SpeechKey         string
	SpeechRegion      string
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string
}

// Load reads environment variables and applies defaults.
func Load() (Config, error) {
	cfg := Config{
		ModelProvider: envOr("PANELCAST_MODEL", "claude"),
		ModelID:       strings.TrimSpace(os.Getenv("PANELCAST_MODEL_ID")),
		TTSProvider:   envOr("PANELCAST_TTS", "azure"),
		OutputDir:     envOr("PANELCAST_OUTPUT_DIR", envOr("OUTPUT_DIR", ".")),
		Prefix:        envOr("PANELCAST_PREFIX", session.DefaultPrefix),
		VoiceHost:     strings.TrimSpace(os.Getenv("PANELCAST_VOICE_HOST")),
		VoiceAdvisor:  strings.TrimSpace(os.Getenv("PANELCAST_VOICE_ADVISOR")),
		VoiceAnalyst:  strings.TrimSpace(os.Getenv("PANELCAST_VOICE_ANALYST")),
		HTTPAddr:      envOr("PANELCAST_HTTP_ADDR", ":8001"),
		MCPAddr:       strings.TrimSpace(os.Getenv("PANELCAST_MCP_ADDR")),
		MetricsNS:     envOr("PANELCAST_METRICS_NAMESPACE", "panelcast"),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DynamoDBTable: strings.TrimSpace(os.Getenv("DYNAMODB_TABLE")),
		S3Bucket:      strings.TrimSpace(os.Getenv("S3_BUCKET")),
		CDNBaseURL:    strings.TrimSpace(os.Getenv("CDN_BASE_URL")),
		SecretPrefix:  strings.TrimSpace(os.Getenv("SECRET_PREFIX")),
		AWSRegion:     envOr("AWS_REGION", "us-east-1"),
		Polish:        polish.DefaultConfig(),
	}
	cfg.Credentials = credentialsFromEnv()

	var err error
	if cfg.Turns, err = intFromEnv("PANELCAST_TURNS", envIntOr("DEFAULT_TURNS", session.DefaultTurns)); err != nil {
		return Config{}, err
	}
	if cfg.MaxTokens, err = intFromEnv("PANELCAST_MAX_TOKENS", session.DefaultMaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.Temperature, err = floatFromEnv("PANELCAST_TEMPERATURE", session.DefaultTemperature); err != nil {
		return Config{}, err
	}
	if cfg.CallTimeout, err = durationFromEnv("PANELCAST_CALL_TIMEOUT", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.SampleRate, err = intFromEnv("PANELCAST_SAMPLE_RATE", tts.DefaultSampleRate); err != nil {
		return Config{}, err
	}
	seed, err := intFromEnv("PANELCAST_SEED", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.Seed = uint64(seed)
	if cfg.MaxJobs, err = intFromEnv("PANELCAST_MAX_JOBS", 3); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationFromEnv("PANELCAST_SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("PANELCAST_ALLOW_ANY_ORIGIN", false); err != nil {
		return Config{}, err
	}
	if cfg.Polish.OpenerReplace, err = floatFromEnv("PANELCAST_OPENER_REPLACE", cfg.Polish.OpenerReplace); err != nil {
		return Config{}, err
	}
	if cfg.Polish.Reaction, err = floatFromEnv("PANELCAST_REACTION", cfg.Polish.Reaction); err != nil {
		return Config{}, err
	}

	cfg.Turns = session.ClampTurns(cfg.Turns)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that flags may also have set.
func (c Config) Validate() error {
	switch {
	case !slices.Contains(llm.Providers, c.ModelProvider):
		return fmt.Errorf("PANELCAST_MODEL must be one of %s, got %q", strings.Join(llm.Providers, ", "), c.ModelProvider)
	case !slices.Contains(tts.Providers, c.TTSProvider):
		return fmt.Errorf("PANELCAST_TTS must be one of %s, got %q", strings.Join(tts.Providers, ", "), c.TTSProvider)
	case c.MaxTokens <= 0:
		return fmt.Errorf("PANELCAST_MAX_TOKENS must be positive")
	case c.Temperature < 0 || c.Temperature > 1:
		return fmt.Errorf("PANELCAST_TEMPERATURE must be within [0,1]")
	case c.CallTimeout <= 0:
		return fmt.Errorf("PANELCAST_CALL_TIMEOUT must be positive")
	case c.SampleRate <= 0:
		return fmt.Errorf("PANELCAST_SAMPLE_RATE must be positive")
	case c.MaxJobs <= 0:
		return fmt.Errorf("PANELCAST_MAX_JOBS must be positive")
	case c.Polish.OpenerReplace < 0 || c.Polish.OpenerReplace > 1, c.Polish.Reaction < 0 || c.Polish.Reaction > 1:
		return fmt.Errorf("polish probabilities must be within [0,1]")
	}
	return nil
}

// LLMSettings returns the model factory settings.
func (c Config) LLMSettings() llm.Settings {
	cr := c.Credentials
	openaiKey := cr.AzureOpenAIKey
	if openaiKey == "" {
		openaiKey = cr.OpenAIAPIKey
	}
	return llm.Settings{
		Provider:        c.ModelProvider,
		ModelID:         c.ModelID,
		AnthropicAPIKey: cr.AnthropicAPIKey,
		GeminiAPIKey:    cr.GeminiAPIKey,
		OpenAI: llm.OpenAIConfig{
			APIKey:     openaiKey,
			Endpoint:   cr.AzureOpenAIURL,
			APIVersion: cr.OpenAIAPIVersion,
			Deployment: cr.AzureOpenAIModel,
		},
	}
}

// TTSConfig returns the synthesis provider settings.
func (c Config) TTSConfig() tts.ProviderConfig {
	cr := c.Credentials
	key := cr.SpeechKey
	if c.TTSProvider == "elevenlabs" {
		key = cr.ElevenLabsAPIKey
	}
	return tts.ProviderConfig{
		SampleRate:   c.SampleRate,
		APIKey:       key,
		Region:       cr.SpeechRegion,
		TenantID:     cr.AzureTenantID,
		ClientID:     cr.AzureClientID,
		ClientSecret: cr.AzureClientSecret,
	}
}

// Voices returns the configured voice overrides.
func (c Config) Voices() tts.VoiceMap {
	return tts.VoiceMap{
		Host:    tts.Voice{ID: c.VoiceHost},
		Advisor: tts.Voice{ID: c.VoiceAdvisor},
		Analyst: tts.Voice{ID: c.VoiceAnalyst},
	}
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c Config) NeedsAWS() bool {
	return c.ModelProvider == "nova" || c.TTSProvider == "polly" ||
		c.DynamoDBTable != "" || c.S3Bucket != "" || c.SecretPrefix != ""
}

func credentialsFromEnv() Credentials {
	return Credentials{
		AnthropicAPIKey:   strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		AzureOpenAIKey:    strings.TrimSpace(os.Getenv("AZURE_OPENAI_KEY")),
		AzureOpenAIURL:    strings.TrimSpace(os.Getenv("AZURE_OPENAI_ENDPOINT")),
		AzureOpenAIModel:  strings.TrimSpace(os.Getenv("AZURE_OPENAI_DEPLOYMENT")),
		OpenAIAPIVersion:  strings.TrimSpace(os.Getenv("OPENAI_API_VERSION")),
		OpenAIAPIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		GeminiAPIKey:      strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		ElevenLabsAPIKey:  strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		SpeechKey:         strings.TrimSpace(os.Getenv("SPEECH_KEY")),
		SpeechRegion:      strings.TrimSpace(os.Getenv("SPEECH_REGION")),
		AzureTenantID:     strings.TrimSpace(os.Getenv("AZURE_TENANT_ID")),
		AzureClientID:     strings.TrimSpace(os.Getenv("AZURE_CLIENT_ID")),
		AzureClientSecret: strings.TrimSpace(os.Getenv("AZURE_CLIENT_SECRET")),
	}
}

func envOr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// envIntOr is intFromEnv for fallbacks, ignoring malformed values.
func envIntOr(key string, fallback int) int {
	v, err := intFromEnv(key, fallback)
	if err != nil {
		return fallback
	}
	return v
}

func intFromEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return v, nil
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return v, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return v, nil
}
