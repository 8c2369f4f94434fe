package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
)

var novaModels = map[string]string{
	"nova-lite": "us.amazon.nova-2-lite-v1:0",
}

// ConverseAPI is the subset of the Bedrock runtime client used by Nova.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Nova implements Model using the Bedrock Converse API.
type Nova struct {
	client ConverseAPI
	model  string
}

// NewNova creates a Nova model from an AWS config.
func NewNova(cfg aws.Config, model string) *Nova {
	return NewNovaWithClient(bedrockruntime.NewFromConfig(cfg), model)
}

// NewNovaWithClient creates a Nova model around an existing Converse client.
func NewNovaWithClient(client ConverseAPI, model string) *Nova {
	if id, ok := novaModels[model]; ok {
		model = id
	}
	if model == "" {
		model = novaModels["nova-lite"]
	}
	return &Nova{client: client, model: model}
}

func (n *Nova) Name() string { return "nova" }

func (n *Nova) Chat(ctx context.Context, req Request) (string, error) {
	resp, err := n.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(n.model),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		},
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: req.User},
				},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(req.MaxTokens)),
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	})
	if err != nil {
		return "", classifyNova(err)
	}

	switch resp.StopReason {
	case types.StopReasonGuardrailIntervened, types.StopReasonContentFiltered:
		return "", &PolicyRejectionError{Provider: n.Name(), Reason: string(resp.StopReason)}
	}
	return extractNovaText(resp), nil
}

func extractNovaText(resp *bedrockruntime.ConverseOutput) string {
	if resp.Output == nil {
		return ""
	}
	msg, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			return tb.Value
		}
	}
	return ""
}

func classifyNova(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ValidationException":
			return &PolicyRejectionError{Provider: "nova", Reason: apiErr.ErrorMessage(), Err: err}
		case "ThrottlingException", "ServiceUnavailableException", "InternalServerException",
			"ModelTimeoutException", "ModelNotReadyException":
			return &TransportError{Provider: "nova", Retryable: true, Err: err}
		default:
			return &TransportError{Provider: "nova", Err: err}
		}
	}
	return &TransportError{Provider: "nova", Retryable: true, Err: fmt.Errorf("converse: %w", err)}
}
