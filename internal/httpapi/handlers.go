package httpapi

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/apresai/panelcast/internal/assembly"
	"github.com/apresai/panelcast/internal/llm"
	"github.com/apresai/panelcast/internal/persona"
	"github.com/apresai/panelcast/internal/polish"
	"github.com/apresai/panelcast/internal/session"
	"github.com/apresai/panelcast/internal/ssml"
	"github.com/apresai/panelcast/internal/tts"
)

type generateResponseRequest struct {
	SystemPrompt string   `json:"system_prompt"`
	UserPrompt   string   `json:"user_prompt"`
	MaxTokens    *int     `json:"max_tokens"`
	Temperature  *float64 `json:"temperature"`
}

// Defaults for /generate-response when the request omits them.
const (
	defaultResponseTokens      = 150
	defaultResponseTemperature = 0.45
)

func (s *Server) handleGenerateResponse(w http.ResponseWriter, r *http.Request) {
	var req generateResponseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if s.deps.Completer == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "no model configured")
		return
	}
	llmReq := llm.Request{
		System:      req.SystemPrompt,
		User:        req.UserPrompt,
		MaxTokens:   defaultResponseTokens,
		Temperature: defaultResponseTemperature,
	}
	if req.MaxTokens != nil {
		llmReq.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		llmReq.Temperature = *req.Temperature
	}

	text, err := s.deps.Completer.Complete(r.Context(), llmReq)
	if err != nil {
		s.logger(r).WarnContext(r.Context(), "Completion failed", "error", err)
		status, code := classify(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"text": text, "success": true})
}

type generateAudioRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"` // persona role: host, advisor, analyst
}

func (s *Server) handleGenerateAudio(w http.ResponseWriter, r *http.Request) {
	var req generateAudioRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	id, err := persona.ParseID(req.Voice)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if s.deps.Provider == nil || s.deps.AudioDir == "" {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "no speech provider configured")
		return
	}

	// Each request gets its own random source; Renderer is not safe for
	// concurrent use.
	markup := ssml.NewRenderer(polish.NewRand(0)).Render(text, s.deps.Cast.Get(id))
	asm := assembly.New(s.deps.Provider, s.deps.AudioDir, assembly.Options{
		CallTimeout: s.deps.CallTimeout,
		OnFallback:  s.deps.Metrics.SynthesisFallback,
		Logger:      s.logger(r),
	})
	seg, err := asm.Synthesize(r.Context(), 0, markup, s.deps.Voices.For(id))
	if err != nil {
		s.logger(r).WarnContext(r.Context(), "Synthesis failed", "error", err, "persona", string(id))
		status, code := classify(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"audio_url":        "/audio/" + filepath.Base(seg.Path),
		"duration_seconds": seg.DurationSeconds(),
		"success":          true,
	})
}

type generatePodcastRequest struct {
	Context      string `json:"context"`
	Turns        int    `json:"turns"`
	OutputPrefix string `json:"output_prefix"`
}

type lineResponse struct {
	Turn    int    `json:"turn"`
	State   string `json:"state"`
	Speaker string `json:"speaker"`
	Label   string `json:"label"`
	Text    string `json:"text"`
}

type podcastResponse struct {
	Success        bool           `json:"success"`
	SessionID      string         `json:"session_id"`
	AudioURL       string         `json:"audio_url"`
	TranscriptURL  string         `json:"transcript_url"`
	Duration       float64        `json:"duration_seconds"`
	SizeBytes      int64          `json:"size_bytes"`
	Turns          int            `json:"turns"`
	Lines          []lineResponse `json:"lines"`
	AlternatePath  bool           `json:"alternate_path,omitempty"`
	RequestedAudio string         `json:"requested_audio,omitempty"`
}

func (s *Server) handleGeneratePodcast(w http.ResponseWriter, r *http.Request) {
	var req generatePodcastRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Context) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", session.ErrEmptyContext.Error())
		return
	}
	if s.deps.Runner == nil || s.deps.AudioDir == "" {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "sessions are not configured")
		return
	}

	summary, err := s.deps.Runner.Run(r.Context(), session.Request{
		Context:   req.Context,
		Turns:     req.Turns,
		OutputDir: s.deps.AudioDir,
		Prefix:    req.OutputPrefix,
	})
	if err != nil {
		s.logger(r).ErrorContext(r.Context(), "Session failed", "error", err)
		status, code := classify(err)
		respondError(w, status, code, err.Error())
		return
	}

	resp := podcastResponse{
		Success:       true,
		SessionID:     summary.SessionID,
		AudioURL:      "/audio/" + filepath.Base(summary.AudioPath),
		TranscriptURL: "/audio/" + filepath.Base(summary.TranscriptPath),
		Duration:      summary.Duration,
		SizeBytes:     summary.SizeBytes,
		Turns:         summary.Turns,
		Lines:         make([]lineResponse, len(summary.Lines)),
	}
	for i, l := range summary.Lines {
		resp.Lines[i] = lineResponse{Turn: l.Index, State: l.State.String(), Speaker: string(l.Speaker), Label: l.Label, Text: l.Text}
	}
	if summary.Conflict != nil {
		resp.AlternatePath = true
		resp.RequestedAudio = filepath.Base(summary.Conflict.Requested)
	}
	respondJSON(w, http.StatusOK, resp)
}

// classify maps an error to an HTTP status and error code.
func classify(err error) (int, string) {
	var (
		se        *session.Error
		policy    *llm.PolicyRejectionError
		transport *llm.TransportError
		retryable *tts.RetryableError
	)
	switch {
	case errors.Is(err, llm.ErrInvalidRequest), errors.Is(err, session.ErrEmptyContext):
		return http.StatusBadRequest, "invalid_request"
	case errors.As(err, &se):
		return statusForKind(se.Kind()), se.Kind()
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &policy):
		return http.StatusBadGateway, "policy_rejection"
	case errors.As(err, &transport), errors.As(err, &retryable):
		return http.StatusBadGateway, "transport"
	case tts.IsSynthesisError(err):
		return http.StatusBadGateway, "synthesis"
	}
	return http.StatusInternalServerError, "internal"
}

func statusForKind(kind string) int {
	switch kind {
	case "invalid_request":
		return http.StatusBadRequest
	case "timeout":
		return http.StatusGatewayTimeout
	case "canceled":
		return 499
	case "internal", "format_mismatch":
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}
