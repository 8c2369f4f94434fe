package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI or Azure OpenAI chat deployment.
// Setting Endpoint selects Azure.
type OpenAIConfig struct {
	APIKey     string
	Endpoint   string
	APIVersion string
	Deployment string // Azure deployment or OpenAI model name
	BaseURL    string // overrides the OpenAI base URL
}

// OpenAI implements Model using go-openai.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI model.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	var clientCfg openai.ClientConfig
	model := cfg.Deployment
	if cfg.Endpoint != "" {
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		deployment := cfg.Deployment
		clientCfg.AzureModelMapperFunc = func(string) string { return deployment }
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientCfg), model: model}
}

func (o *OpenAI) Name() string { return "openai" }

// openAITemperature keeps an explicit zero on the wire; go-openai omits a
// zero temperature and the service would apply its own default.
func openAITemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func (o *OpenAI) Chat(ctx context.Context, req Request) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: openAITemperature(req.Temperature),
	})
	if err != nil {
		return "", classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", &PolicyRejectionError{Provider: o.Name(), Reason: "content filter"}
	}
	return choice.Message.Content, nil
}

func classifyOpenAI(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusBadRequest {
			return &PolicyRejectionError{Provider: "openai", Reason: apiErr.Message, Err: err}
		}
		return &TransportError{
			Provider:   "openai",
			StatusCode: apiErr.HTTPStatusCode,
			Retryable:  statusRetryable(apiErr.HTTPStatusCode),
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusBadRequest {
			return &PolicyRejectionError{Provider: "openai", Reason: "bad request", Err: err}
		}
		return &TransportError{
			Provider:   "openai",
			StatusCode: reqErr.HTTPStatusCode,
			Retryable:  statusRetryable(reqErr.HTTPStatusCode),
			Err:        err,
		}
	}
	return &TransportError{Provider: "openai", Retryable: true, Err: fmt.Errorf("send request: %w", err)}
}
