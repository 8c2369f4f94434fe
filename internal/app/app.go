// Package app builds the runtime object graph from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/apresai/panelcast/internal/config"
	"github.com/apresai/panelcast/internal/jobs"
	"github.com/apresai/panelcast/internal/llm"
	"github.com/apresai/panelcast/internal/observability"
	"github.com/apresai/panelcast/internal/session"
	"github.com/apresai/panelcast/internal/tts"
)

// App holds the configured capabilities shared by the CLI and servers.
type App struct {
	Config       config.Config
	Log          *slog.Logger
	Metrics      *observability.Metrics
	AWS          *aws.Config
	Model        llm.Model
	Completer    *llm.Safe
	Provider     tts.Provider
	Orchestrator *session.Orchestrator
}

// New loads secrets when configured, then builds the model, the speech
// provider and the orchestrator.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Config:  cfg,
		Log:     logger,
		Metrics: observability.NewMetrics(cfg.MetricsNS),
	}

	if cfg.NeedsAWS() {
		awsCfg, err := config.AWSConfig(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		a.AWS = &awsCfg
		if cfg.SecretPrefix != "" {
			a.Config.LoadSecrets(ctx, config.NewSecretsClient(awsCfg), logger)
		}
	}

	settings := a.Config.LLMSettings()
	settings.AWS = a.AWS
	model, err := llm.NewModel(settings)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	a.Model = model
	a.Completer = llm.NewSafe(model, llm.Options{
		CallTimeout: a.Config.CallTimeout,
		OnFallback:  func(t llm.Tier) { a.Metrics.CompletionFallback(string(t)) },
		Logger:      logger,
	})

	ttsCfg := a.Config.TTSConfig()
	ttsCfg.AWS = a.AWS
	provider, err := tts.NewProvider(ctx, a.Config.TTSProvider, a.Config.Voices(), ttsCfg)
	if err != nil {
		return nil, fmt.Errorf("speech provider: %w", err)
	}
	a.Provider = provider

	polishCfg := a.Config.Polish
	temperature := a.Config.Temperature
	a.Orchestrator = session.New(a.Completer, provider, session.Options{
		Voices:      a.Config.Voices(),
		MaxTokens:   a.Config.MaxTokens,
		Temperature: &temperature,
		Polish:      &polishCfg,
		Seed:        a.Config.Seed,
		CallTimeout: a.Config.CallTimeout,
		Logger:      logger,
		Metrics:     a.Metrics,
	})
	return a, nil
}

// JobManager builds the job store and artifact storage the configuration
// selects: Postgres, then DynamoDB, then memory for jobs; S3, then the
// output directory for artifacts.
func (a *App) JobManager(ctx, baseCtx context.Context) (*jobs.Manager, error) {
	cfg := a.Config
	var store jobs.Store
	switch {
	case cfg.DatabaseURL != "":
		pg, err := jobs.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store = pg
	case cfg.DynamoDBTable != "":
		if a.AWS == nil {
			return nil, errors.New("DYNAMODB_TABLE requires AWS configuration")
		}
		store = jobs.NewDynamoStore(dynamodb.NewFromConfig(*a.AWS), cfg.DynamoDBTable)
	default:
		store = jobs.NewMemoryStore()
	}

	var storage jobs.Storage
	if cfg.S3Bucket != "" {
		if a.AWS == nil {
			return nil, errors.New("S3_BUCKET requires AWS configuration")
		}
		storage = jobs.NewS3Storage(s3.NewFromConfig(*a.AWS), cfg.S3Bucket, cfg.CDNBaseURL)
	} else {
		dir, err := filepath.Abs(filepath.Join(cfg.OutputDir, "artifacts"))
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifact dir: %w", err)
		}
		storage = jobs.NewLocalStorage(dir, cfg.CDNBaseURL)
	}

	a.Log.Info("Job manager ready", "store", fmt.Sprintf("%T", store), "storage", fmt.Sprintf("%T", storage), "max_jobs", cfg.MaxJobs)
	return jobs.NewManager(baseCtx, store, storage, a.Orchestrator, jobs.Options{
		MaxJobs:     cfg.MaxJobs,
		Model:       cfg.ModelProvider,
		TTSProvider: cfg.TTSProvider,
		Logger:      a.Log,
		Metrics:     a.Metrics,
	}), nil
}

// Close releases provider resources.
func (a *App) Close() error {
	if a.Provider != nil {
		return a.Provider.Close()
	}
	return nil
}
