package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
)

// AWSConfig loads the default AWS config for region with tracing
// middleware on every client built from it.
func AWSConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)
	return cfg, nil
}

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadSecrets fills empty credentials from secrets named prefix+ENV_NAME.
// Missing secrets are logged and skipped.
func (c *Config) LoadSecrets(ctx context.Context, client SecretsAPI, logger *slog.Logger) {
	if c.SecretPrefix == "" {
		return
	}
	cr := &c.Credentials
	targets := []struct {
		env string
		dst *string
	}{
		{"ANTHROPIC_API_KEY", &cr.AnthropicAPIKey},
		{"AZURE_OPENAI_KEY", &cr.AzureOpenAIKey},
		{"OPENAI_API_KEY", &cr.OpenAIAPIKey},
		{"GEMINI_API_KEY", &cr.GeminiAPIKey},
		{"ELEVENLABS_API_KEY", &cr.ElevenLabsAPIKey},
		{"SPEECH_KEY", &cr.SpeechKey},
		{"AZURE_CLIENT_SECRET", &cr.AzureClientSecret},
	}

	for _, t := range targets {
		// Skip if already set in environment
		if *t.dst != "" {
			continue
		}
		secretID := c.SecretPrefix + t.env
		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretID),
		})
		if err != nil {
			logger.Info("Secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if result.SecretString != nil {
			*t.dst = *result.SecretString
			logger.Info("Loaded secret", "secret_id", secretID)
		}
	}
}

// NewSecretsClient builds a Secrets Manager client.
func NewSecretsClient(cfg aws.Config) *secretsmanager.Client {
	return secretsmanager.NewFromConfig(cfg)
}
