package llm

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/aws"
)

// Settings selects and configures a model provider.
type Settings struct {
	Provider string // claude, nova, openai, gemini
	ModelID  string // alias or provider model ID

	AnthropicAPIKey string
	OpenAI          OpenAIConfig
	GeminiAPIKey    string
	AWS             *aws.Config // required for nova
}

// Providers lists the accepted provider names.
var Providers = []string{"claude", "nova", "openai", "gemini"}

// NewModel creates a model-call capability by provider name.
func NewModel(s Settings) (Model, error) {
	switch s.Provider {
	case "", "claude":
		var opts []option.RequestOption
		if s.AnthropicAPIKey != "" {
			opts = append(opts, option.WithAPIKey(s.AnthropicAPIKey))
		}
		return NewClaude(s.ModelID, opts...), nil
	case "nova":
		if s.AWS == nil {
			return nil, fmt.Errorf("nova requires an AWS config")
		}
		return NewNova(*s.AWS, s.ModelID), nil
	case "openai":
		cfg := s.OpenAI
		if s.ModelID != "" {
			cfg.Deployment = s.ModelID
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai requires AZURE_OPENAI_KEY or OPENAI_API_KEY")
		}
		return NewOpenAI(cfg), nil
	case "gemini":
		if s.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini requires GEMINI_API_KEY")
		}
		return NewGemini(s.ModelID, s.GeminiAPIKey, ""), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q: choose claude, nova, openai, or gemini", s.Provider)
	}
}
