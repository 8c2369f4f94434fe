package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/panelcast/internal/ingest"
	"github.com/apresai/panelcast/internal/observability"
	"github.com/apresai/panelcast/internal/progress"
	"github.com/apresai/panelcast/internal/session"
)

var tracer = otel.Tracer("panelcast/jobs")

// ErrBusy is returned when the concurrent job limit is reached.
var ErrBusy = errors.New("max concurrent jobs reached")

// Runner produces one episode. *session.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req session.Request) (session.Summary, error)
}

// Request holds parameters for one async session.
type Request struct {
	// Context is used as-is when set; otherwise Sources are ingested.
	Context string
	Sources []string
	Turns   int
	Prefix  string
	Owner   string
}

// Options configures a Manager.
type Options struct {
	MaxJobs int
	// Model and TTSProvider are recorded on every job.
	Model       string
	TTSProvider string
	// WorkDir is the parent of per-job working directories.
	WorkDir string
	Logger  *slog.Logger
	Metrics *observability.Metrics
	// ProgressInterval throttles store writes within one stage.
	ProgressInterval time.Duration
}

// Manager runs sessions in the background and tracks them in a Store.
type Manager struct {
	store   Store
	storage Storage
	runner  Runner
	opts    Options
	log     *slog.Logger
	baseCtx context.Context // cancelled on SIGTERM for graceful shutdown
	now     func() time.Time

	mu        sync.Mutex
	cancels   map[string]context.CancelFunc
	subs      map[string]map[int]chan progress.Event
	nextSubID int
	running   int
	wg        sync.WaitGroup
}

// NewManager creates a job manager. baseCtx should be cancelled on
// SIGTERM so running sessions stop and their jobs are marked failed.
func NewManager(baseCtx context.Context, store Store, storage Storage, runner Runner, opts Options) *Manager {
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = 3
	}
	if opts.ProgressInterval < 0 {
		opts.ProgressInterval = 0
	} else if opts.ProgressInterval == 0 {
		opts.ProgressInterval = 2 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:   store,
		storage: storage,
		runner:  runner,
		opts:    opts,
		log:     log,
		baseCtx: baseCtx,
		now:     time.Now,
		cancels: make(map[string]context.CancelFunc),
		subs:    make(map[string]map[int]chan progress.Event),
	}
}

// Store returns the job store.
func (m *Manager) Store() Store { return m.store }

// Start records a new job and runs it in a goroutine. It returns the job
// immediately.
func (m *Manager) Start(ctx context.Context, req Request) (Job, error) {
	if strings.TrimSpace(req.Context) == "" && len(req.Sources) == 0 {
		return Job{}, fmt.Errorf("%w: context or sources required", ingest.ErrNoContext)
	}
	id, err := NewJobID()
	if err != nil {
		return Job{}, err
	}

	m.mu.Lock()
	if m.running >= m.opts.MaxJobs {
		m.mu.Unlock()
		return Job{}, fmt.Errorf("%w (%d)", ErrBusy, m.opts.MaxJobs)
	}
	m.running++

	// Derive the job context from baseCtx rather than the request context,
	// carrying the request's trace span for linking.
	jobCtx := observability.DetachTraceContextFrom(ctx, m.baseCtx)
	jobCtx, cancel := context.WithCancel(jobCtx)
	m.cancels[id] = cancel
	m.subs[id] = make(map[int]chan progress.Event)
	m.mu.Unlock()

	now := m.now().UTC()
	job := Job{
		ID:          id,
		Status:      StatusSubmitted,
		Message:     "Submitted",
		Turns:       session.ClampTurns(req.Turns),
		Model:       m.opts.Model,
		TTSProvider: m.opts.TTSProvider,
		Owner:       req.Owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.Create(ctx, job); err != nil {
		cancel()
		m.release(id)
		return Job{}, fmt.Errorf("create job: %w", err)
	}

	m.opts.Metrics.JobStarted()
	m.wg.Add(1)
	go m.run(jobCtx, job, req)
	return job, nil
}

// Cancel stops a running job. It reports whether the job was running.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancel, ok := m.cancels[id]
	if ok {
		cancel()
	}
	return ok
}

// Running returns the number of jobs in flight.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() { m.wg.Wait() }

// Subscribe streams progress events of a running job. The channel is
// closed when the job finishes or unsubscribe is called. ok is false when
// the job is not running.
func (m *Manager) Subscribe(id string) (events <-chan progress.Event, unsubscribe func(), ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs, ok := m.subs[id]
	if !ok {
		ch := make(chan progress.Event)
		close(ch)
		return ch, func() {}, false
	}

	ch := make(chan progress.Event, 64)
	m.nextSubID++
	subID := m.nextSubID
	subs[subID] = ch
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id][subID]; ok {
			delete(m.subs[id], subID)
			close(c)
		}
	}, true
}

func (m *Manager) publish(id string, evt progress.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[id] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// release drops the bookkeeping of a finished job and closes its streams.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
	for _, ch := range m.subs[id] {
		close(ch)
	}
	delete(m.subs, id)
	m.running--
}

func (m *Manager) run(ctx context.Context, job Job, req Request) {
	defer m.wg.Done()
	ctx, span := tracer.Start(ctx, "jobs.run", trace.WithAttributes(
		attribute.String("job_id", job.ID),
		attribute.Int("turns", job.Turns),
	))
	defer span.End()

	log := m.log.With("job_id", job.ID)
	start := m.now()

	defer func() {
		m.opts.Metrics.JobFinished()
		m.release(job.ID)
	}()

	result, err := m.execute(ctx, job, req, log)
	if err != nil {
		kind := errorKind(err)
		msg := err.Error()
		if m.baseCtx.Err() != nil {
			msg = "server shutdown during processing"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "job failed")
		log.ErrorContext(ctx, "Job failed", "error", err, "kind", kind, "elapsed", m.now().Sub(start).Round(time.Second).String())

		// The job context may already be cancelled.
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := m.store.Fail(failCtx, job.ID, kind, msg); err != nil {
			log.WarnContext(ctx, "Mark job failed", "error", err)
		}
		m.publish(job.ID, progress.Event{Stage: progress.StageFailed, Message: "Failed: " + msg, Elapsed: m.now().Sub(start)})
		return
	}

	if err := m.store.Complete(ctx, job.ID, result); err != nil {
		log.ErrorContext(ctx, "Complete job failed", "error", err)
	}
	m.publish(job.ID, progress.Event{
		Stage:    progress.StageComplete,
		Message:  "Complete",
		Percent:  1,
		Elapsed:  m.now().Sub(start),
		Duration: progress.FormatDuration(result.Duration),
		SizeMB:   result.SizeMB,
	})
	span.SetAttributes(
		attribute.String("audio_url", result.AudioURL),
		attribute.Float64("duration_s", result.Duration),
	)
	span.SetStatus(codes.Ok, "complete")
	log.InfoContext(ctx, "Job complete", "audio_url", result.AudioURL, "duration_s", result.Duration)
}

func (m *Manager) execute(ctx context.Context, job Job, req Request, log *slog.Logger) (Result, error) {
	if err := m.store.UpdateProgress(ctx, job.ID, StatusRunning, 0, "Starting"); err != nil {
		log.WarnContext(ctx, "Update progress failed", "error", err)
	}

	sessionContext := req.Context
	if strings.TrimSpace(sessionContext) == "" {
		m.publish(job.ID, progress.Event{Stage: progress.StageIngest, Message: "Loading context"})
		bundle, err := ingest.Load(ctx, req.Sources, log)
		if err != nil {
			return Result{}, err
		}
		sessionContext = bundle.Context
	}

	workDir, err := os.MkdirTemp(m.opts.WorkDir, "panelcast-job-*")
	if err != nil {
		return Result{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	summary, err := m.runner.Run(ctx, session.Request{
		Context:   sessionContext,
		Turns:     req.Turns,
		OutputDir: workDir,
		Prefix:    req.Prefix,
		Progress:  m.progressWriter(ctx, job.ID, log),
	})
	if err != nil {
		return Result{}, err
	}

	if err := m.store.UpdateProgress(ctx, job.ID, StatusUploading, 0.97, "Uploading artifacts"); err != nil {
		log.WarnContext(ctx, "Update progress failed", "error", err)
	}
	audioKey := ArtifactKey("audio", job.ID, filepath.Ext(summary.AudioPath))
	audioURL, err := m.storage.Upload(ctx, audioKey, summary.AudioPath, "audio/wav")
	if err != nil {
		return Result{}, fmt.Errorf("upload audio: %w", err)
	}
	transcriptKey := ArtifactKey("transcripts", job.ID, ".txt")
	transcriptURL, err := m.storage.Upload(ctx, transcriptKey, summary.TranscriptPath, "text/plain; charset=utf-8")
	if err != nil {
		return Result{}, fmt.Errorf("upload transcript: %w", err)
	}

	return Result{
		SessionID:     summary.SessionID,
		AudioKey:      audioKey,
		AudioURL:      audioURL,
		TranscriptKey: transcriptKey,
		TranscriptURL: transcriptURL,
		Duration:      summary.Duration,
		SizeMB:        float64(summary.SizeBytes) / (1024 * 1024),
		Lines:         summary.Turns,
		Transcript:    session.Transcript(summary.Lines),
	}, nil
}

// progressWriter publishes every event and writes at most one store
// update per interval, except on stage transitions.
func (m *Manager) progressWriter(ctx context.Context, id string, log *slog.Logger) progress.Callback {
	var (
		lastWrite time.Time
		lastStage progress.Stage
	)
	return func(evt progress.Event) {
		m.publish(id, evt)
		if evt.Stage == progress.StageComplete || evt.Stage == progress.StageFailed {
			return
		}
		now := m.now()
		if evt.Stage == lastStage && now.Sub(lastWrite) < m.opts.ProgressInterval {
			return
		}
		if err := m.store.UpdateProgress(ctx, id, StatusRunning, evt.Percent, evt.Message); err != nil {
			log.WarnContext(ctx, "Update progress failed", "error", err)
		}
		lastWrite, lastStage = now, evt.Stage
	}
}

func errorKind(err error) string {
	var se *session.Error
	switch {
	case errors.As(err, &se):
		return se.Kind()
	case errors.Is(err, ingest.ErrNoContext), errors.Is(err, session.ErrEmptyContext):
		return "invalid_request"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
