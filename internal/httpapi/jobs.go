package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/apresai/panelcast/internal/ingest"
	"github.com/apresai/panelcast/internal/jobs"
	"github.com/apresai/panelcast/internal/progress"
)

type createJobRequest struct {
	Context string   `json:"context"`
	Sources []string `json:"sources"`
	Turns   int      `json:"turns"`
	Prefix  string   `json:"prefix"`
	Owner   string   `json:"owner"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	job, err := s.deps.Jobs.Start(r.Context(), jobs.Request{
		Context: req.Context,
		Sources: req.Sources,
		Turns:   req.Turns,
		Prefix:  req.Prefix,
		Owner:   req.Owner,
	})
	switch {
	case errors.Is(err, ingest.ErrNoContext):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case errors.Is(err, jobs.ErrBusy):
		respondError(w, http.StatusTooManyRequests, "busy", err.Error())
		return
	case err != nil:
		s.logger(r).ErrorContext(r.Context(), "Start job failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	w.Header().Set("Location", "/v1/jobs/"+job.ID)
	respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Store().Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, jobs.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be within 1..100")
			return
		}
		limit = n
	}
	list, next, err := s.deps.Jobs.Store().List(r.Context(), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if list == nil {
		list = []jobs.Job{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": list, "next_cursor": next})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.deps.Jobs.Cancel(id) {
		respondError(w, http.StatusConflict, "not_running", "job "+id+" is not running")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"id": id, "canceled": true})
}

// jobEvent is one message on the events stream.
type jobEvent struct {
	Type  string          `json:"type"` // progress or job
	Event *progress.Event `json:"event,omitempty"`
	Job   *jobs.Job       `json:"job,omitempty"`
}

// handleJobEvents streams progress events until the job finishes, then
// sends the final job record and closes.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.deps.Jobs.Store().Get(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	events, unsubscribe, running := s.deps.Jobs.Subscribe(id)
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	log := s.logger(r).With("job_id", id)

	// Drain client frames so close messages are seen.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(msg jobEvent) error {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(msg)
	}

	closeNormal := func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
			time.Now().Add(time.Second))
	}

	if err := write(jobEvent{Type: "job", Job: &job}); err != nil {
		return
	}
	if !running {
		closeNormal()
		return
	}
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				if final, err := s.deps.Jobs.Store().Get(r.Context(), id); err == nil {
					_ = write(jobEvent{Type: "job", Job: &final})
				}
				closeNormal()
				return
			}
			if err := write(jobEvent{Type: "progress", Event: &evt}); err != nil {
				log.DebugContext(r.Context(), "Event stream write failed", "error", err)
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
