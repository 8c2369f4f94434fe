package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var geminiModels = map[string]string{
	"gemini-flash": "gemini-2.5-flash",
	"gemini-pro":   "gemini-2.5-pro",
}

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini implements Model using the Gemini generateContent REST API.
type Gemini struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGemini creates a Gemini model. baseURL may be empty.
func NewGemini(model, apiKey, baseURL string) *Gemini {
	if id, ok := geminiModels[model]; ok {
		model = id
	}
	if model == "" {
		model = geminiModels["gemini-flash"]
	}
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return &Gemini{
		model:      model,
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type geminiTextRequest struct {
	SystemInstruction *geminiTextContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiTextContent `json:"contents"`
	GenerationConfig  *geminiTextGenCfg   `json:"generationConfig,omitempty"`
}

type geminiTextContent struct {
	Parts []geminiTextPart `json:"parts"`
}

type geminiTextPart struct {
	Text string `json:"text"`
}

type geminiTextGenCfg struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiTextResponse struct {
	Candidates []struct {
		Content      geminiTextContent `json:"content"`
		FinishReason string            `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

var geminiPolicyFinish = map[string]bool{
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
	"SPII":               true,
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Chat(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(geminiTextRequest{
		SystemInstruction: &geminiTextContent{Parts: []geminiTextPart{{Text: req.System}}},
		Contents:          []geminiTextContent{{Parts: []geminiTextPart{{Text: req.User}}}},
		GenerationConfig: &geminiTextGenCfg{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	res, err := g.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", &TransportError{Provider: g.Name(), Retryable: true, Err: fmt.Errorf("send request: %w", err)}
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return "", &TransportError{Provider: g.Name(), Retryable: true, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case res.StatusCode == http.StatusBadRequest:
		return "", &PolicyRejectionError{Provider: g.Name(), Reason: "bad request", Err: errors.New(string(respBody))}
	case res.StatusCode != http.StatusOK:
		return "", &TransportError{
			Provider:   g.Name(),
			StatusCode: res.StatusCode,
			Retryable:  statusRetryable(res.StatusCode),
			Err:        errors.New(string(respBody)),
		}
	}

	var resp geminiTextResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &TransportError{Provider: g.Name(), Err: fmt.Errorf("parse response: %w", err)}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &PolicyRejectionError{Provider: g.Name(), Reason: resp.PromptFeedback.BlockReason}
	}
	if len(resp.Candidates) == 0 {
		return "", nil
	}
	cand := resp.Candidates[0]
	if geminiPolicyFinish[cand.FinishReason] {
		return "", &PolicyRejectionError{Provider: g.Name(), Reason: cand.FinishReason}
	}
	var out string
	for _, p := range cand.Content.Parts {
		out += p.Text
	}
	return out, nil
}
