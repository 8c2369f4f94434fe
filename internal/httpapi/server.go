// Package httpapi exposes completions, single-line synthesis, sessions and
// async jobs over HTTP.
package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/apresai/panelcast/internal/jobs"
	"github.com/apresai/panelcast/internal/observability"
	"github.com/apresai/panelcast/internal/persona"
	"github.com/apresai/panelcast/internal/session"
	"github.com/apresai/panelcast/internal/tts"
)

const maxBodyBytes = 4 << 20

// Deps are the capabilities the server drives. Jobs may be nil, which
// disables the /v1/jobs routes.
type Deps struct {
	Completer session.Completer
	Provider  tts.Provider
	// Cast and Voices render /generate-audio lines; Orchestrator.Cast and
	// Orchestrator.Voices supply them.
	Cast   persona.Cast
	Voices tts.VoiceMap
	Runner jobs.Runner
	Jobs   *jobs.Manager

	// AudioDir holds synthesized lines and synchronous episodes, served
	// under /audio/.
	AudioDir    string
	CallTimeout time.Duration
	Metrics     *observability.Metrics
	Logger      *slog.Logger
	Version     string
	// AllowAnyOrigin disables the same-origin check on WebSocket upgrades.
	AllowAnyOrigin bool
}

// Server is the HTTP adapter.
type Server struct {
	deps     Deps
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a Server.
func New(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Server{
		deps: deps,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if deps.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Metrics == nil {
			http.NotFound(w, r)
			return
		}
		s.deps.Metrics.Handler().ServeHTTP(w, r)
	})

	r.Post("/generate-response", s.handleGenerateResponse)
	r.Post("/generate-audio", s.handleGenerateAudio)
	r.Post("/generate-podcast", s.handleGeneratePodcast)
	if s.deps.AudioDir != "" {
		r.Handle("/audio/*", http.StripPrefix("/audio/", http.FileServer(http.Dir(s.deps.AudioDir))))
	}

	if s.deps.Jobs != nil {
		r.Post("/v1/jobs", s.handleCreateJob)
		r.Get("/v1/jobs", s.handleListJobs)
		r.Get("/v1/jobs/{id}", s.handleGetJob)
		r.Post("/v1/jobs/{id}/cancel", s.handleCancelJob)
		r.Get("/v1/jobs/{id}/events", s.handleJobEvents)
	}
	return r
}

type ctxKey struct{}

// requestID tags each request with an X-Request-ID, keeping one the
// client sent.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) logger(r *http.Request) *slog.Logger {
	if id, ok := r.Context().Value(ctxKey{}).(string); ok {
		return s.log.With("request_id", id)
	}
	return s.log
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":  "healthy",
		"service": "panelcast",
		"version": s.deps.Version,
	}
	if s.deps.Jobs != nil {
		body["running_jobs"] = s.deps.Jobs.Running()
	}
	respondJSON(w, http.StatusOK, body)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return errEmptyBody
	}
	return sonic.Unmarshal(data, out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"success":false,"error":"encode response","code":"internal"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
