package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var claudeModels = map[string]string{
	"haiku":  "claude-haiku-4-5-20251001",
	"sonnet": "claude-sonnet-4-5-20250929",
}

// Claude implements Model using the Anthropic Messages API.
type Claude struct {
	client anthropic.Client
	model  string
}

// NewClaude creates a Claude model. model may be an alias (haiku, sonnet) or a full model ID.
func NewClaude(model string, opts ...option.RequestOption) *Claude {
	if id, ok := claudeModels[model]; ok {
		model = id
	}
	if model == "" {
		model = claudeModels["haiku"]
	}
	// Retries are owned by Safe.
	opts = append([]option.RequestOption{option.WithMaxRetries(0)}, opts...)
	return &Claude{client: anthropic.NewClient(opts...), model: model}
}

func (c *Claude) Name() string { return "claude" }

func (c *Claude) Chat(ctx context.Context, req Request) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	})
	if err != nil {
		return "", classifyClaude(err)
	}
	if string(msg.StopReason) == "refusal" {
		return "", &PolicyRejectionError{Provider: c.Name(), Reason: "model refused"}
	}
	return extractText(msg), nil
}

func extractText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}

func classifyClaude(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusBadRequest {
			return &PolicyRejectionError{Provider: "claude", Reason: "bad request", Err: err}
		}
		return &TransportError{
			Provider:   "claude",
			StatusCode: apiErr.StatusCode,
			Retryable:  statusRetryable(apiErr.StatusCode),
			Err:        err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &TransportError{Provider: "claude", Retryable: true, Err: fmt.Errorf("send request: %w", err)}
}
