package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/panelcast/internal/assembly"
	"github.com/apresai/panelcast/internal/llm"
	"github.com/apresai/panelcast/internal/observability"
	"github.com/apresai/panelcast/internal/persona"
	"github.com/apresai/panelcast/internal/polish"
	"github.com/apresai/panelcast/internal/progress"
	"github.com/apresai/panelcast/internal/sentence"
	"github.com/apresai/panelcast/internal/ssml"
	"github.com/apresai/panelcast/internal/tts"
)

var tracer = otel.Tracer("panelcast/session")

// Completer produces one finished sentence per request. *llm.Safe satisfies it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Options configures an Orchestrator. Zero values pick the defaults.
type Options struct {
	Cast persona.Cast
	// Voices overrides the provider's default voice per persona.
	Voices tts.VoiceMap

	MaxTokens int
	// Temperature applies to round-robin turns. Nil uses DefaultTemperature;
	// zero is a valid setting.
	Temperature *float64
	Polish      *polish.Config
	// Seed makes phrasing and prosody reproducible. Zero seeds from the clock.
	Seed uint64

	// CallTimeout bounds each synthesis call. Model calls are bounded by
	// the Completer.
	CallTimeout time.Duration
	Retry       tts.RetryPolicy
	// TempDir is the parent of per-session segment directories.
	TempDir string

	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Progress progress.Callback
}

// Defaults for round-robin turns.
const (
	DefaultMaxTokens   = 130
	DefaultTemperature = 0.45
)

// Request starts one session.
type Request struct {
	Context   string
	Turns     int
	OutputDir string
	Prefix    string
	// Progress receives this session's events in addition to Options.Progress.
	Progress progress.Callback
}

// Summary reports a finished session.
type Summary struct {
	SessionID      string
	AudioPath      string
	TranscriptPath string
	Duration       float64 // seconds
	SizeBytes      int64
	Turns          int
	Lines          []Line
	// Conflict is set when the audio went to an alternate path.
	Conflict *assembly.DestinationConflictError
}

// Orchestrator runs sessions. Sessions share no mutable state, so one
// Orchestrator may run several concurrently.
type Orchestrator struct {
	model    Completer
	provider tts.Provider
	opts     Options
	voices   tts.VoiceMap
	cast     persona.Cast
	log      *slog.Logger
	now      func() time.Time
	// format is the segment layout the provider produces; zero when the
	// provider does not report its rate.
	format      assembly.Format
	temperature float64
}

// New creates an Orchestrator.
func New(model Completer, provider tts.Provider, opts Options) *Orchestrator {
	if opts.Cast.Host.ID == "" {
		opts.Cast = persona.DefaultCast()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	temperature := DefaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	if opts.Polish == nil {
		cfg := polish.DefaultConfig()
		opts.Polish = &cfg
	}
	if opts.Progress == nil {
		opts.Progress = progress.NopCallback
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	voices := resolveVoices(opts.Voices, provider.DefaultVoices())
	return &Orchestrator{
		model:    model,
		provider: provider,
		opts:     opts,
		voices:   voices,
		cast: opts.Cast.WithVoices(persona.Voices{
			Host:    voices.Host.ID,
			Advisor: voices.Advisor.ID,
			Analyst: voices.Analyst.ID,
		}),
		log:         log,
		now:         time.Now,
		format:      segmentFormat(provider),
		temperature: temperature,
	}
}

func segmentFormat(p tts.Provider) assembly.Format {
	if rate := tts.OutputRate(p); rate > 0 {
		return assembly.MonoPCM16(rate)
	}
	return assembly.Format{}
}

func resolveVoices(override, defaults tts.VoiceMap) tts.VoiceMap {
	if override.Host.ID != "" {
		defaults.Host = override.Host
	}
	if override.Advisor.ID != "" {
		defaults.Advisor = override.Advisor
	}
	if override.Analyst.ID != "" {
		defaults.Analyst = override.Analyst
	}
	return defaults
}

// Cast returns the personas with the voices this orchestrator renders with.
func (o *Orchestrator) Cast() persona.Cast { return o.cast }

// Voices returns the resolved voice per persona.
func (o *Orchestrator) Voices() tts.VoiceMap { return o.voices }

// run is the mutable state of one session.
type run struct {
	o        *Orchestrator
	id       string
	req      Request
	pairs    int
	total    int
	start    time.Time
	log      *slog.Logger
	emit     progress.Callback
	polisher *polish.Polisher
	renderer *ssml.Renderer
	asm      *assembly.Assembler

	history     History
	topic       string
	lastSpeaker persona.ID
	pair        int // current 1-based pair during the exchange
	lines       []Line
	segments    []assembly.Segment
}

// Run produces one episode. On any turn failure it returns *Error and
// leaves neither audio nor transcript behind.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Summary, error) {
	if strings.TrimSpace(req.Context) == "" {
		return Summary{}, ErrEmptyContext
	}

	id := ulid.Make().String()
	pairs := ClampTurns(req.Turns)
	log := o.log.With("session_id", id)

	ctx, span := tracer.Start(ctx, "session.run", trace.WithAttributes(
		attribute.String("session_id", id),
		attribute.Int("pairs", pairs),
		attribute.String("tts_provider", o.provider.Name()),
	))
	defer span.End()

	summary, err := o.run(ctx, id, pairs, req, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session failed")
	}
	return summary, err
}

func (o *Orchestrator) run(ctx context.Context, id string, pairs int, req Request, log *slog.Logger) (Summary, error) {
	start := time.Now()
	tmpDir, err := os.MkdirTemp(o.opts.TempDir, "panelcast-"+id+"-")
	if err != nil {
		return Summary{}, fmt.Errorf("create segment directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	rng := polish.NewRand(o.opts.Seed)
	r := &run{
		o:        o,
		id:       id,
		req:      req,
		pairs:    pairs,
		total:    TurnCount(pairs),
		start:    start,
		log:      log,
		emit:     progress.Multi(o.opts.Progress, req.Progress),
		polisher: polish.New(o.cast, rng, *o.opts.Polish),
		renderer: ssml.NewRenderer(rng),
		asm: assembly.New(o.provider, tmpDir, assembly.Options{
			Retry:       o.opts.Retry,
			CallTimeout: o.opts.CallTimeout,
			OnFallback:  o.opts.Metrics.SynthesisFallback,
			Format:      o.format,
			Logger:      log,
		}),
	}

	log.InfoContext(ctx, "Session started", "pairs", pairs, "turns", r.total, "context_bytes", len(req.Context))

	summary, err := r.execute(ctx)
	if err != nil {
		o.opts.Metrics.SessionFinished("failure", time.Since(start), 0)
		r.emit(progress.Event{Stage: progress.StageFailed, Message: "Session failed", Error: err, Elapsed: time.Since(start)})
		log.ErrorContext(ctx, "Session failed", "error", err)
		return Summary{}, err
	}

	o.opts.Metrics.SessionFinished("success", time.Since(start), summary.Duration)
	log.InfoContext(ctx, "Session complete",
		"audio", summary.AudioPath,
		"transcript", summary.TranscriptPath,
		"duration_s", summary.Duration,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return summary, nil
}

func (r *run) execute(ctx context.Context) (Summary, error) {
	completed := 0
	for state := HostIntro; state != Done; state = Next(state, completed, r.pairs) {
		index := len(r.lines) + 1
		speaker := state.Speaker()
		if err := ctx.Err(); err != nil {
			return Summary{}, &Error{State: state, Persona: speaker, Turn: index, Err: err}
		}
		if state == AdvisorTurn {
			r.pair = completed + 1
		}

		if err := r.turn(ctx, state, index); err != nil {
			return Summary{}, &Error{State: state, Persona: speaker, Turn: index, Err: err}
		}
		if state == AnalystTurn {
			completed++
		}
	}

	return r.finish(ctx)
}

func (r *run) turn(ctx context.Context, state State, index int) error {
	p := r.o.cast.Get(state.Speaker())
	ctx, span := tracer.Start(ctx, "session.turn", trace.WithAttributes(
		attribute.String("state", state.String()),
		attribute.String("persona", string(p.ID)),
		attribute.Int("turn", index),
	))
	defer span.End()

	r.emit(progress.Event{
		Stage:     progress.StageTurn,
		Message:   fmt.Sprintf("%s (%s)", p.Label, state),
		Percent:   progress.TurnPercent(index-1, r.total),
		State:     state.String(),
		Persona:   string(p.ID),
		TurnNum:   index,
		TurnTotal: r.total,
		Elapsed:   time.Since(r.start),
	})

	raw, text, err := r.compose(ctx, state, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compose failed")
		return err
	}

	markup := r.renderer.Render(text, p)
	seg, err := r.asm.Synthesize(ctx, index, markup, r.o.voices.For(p.ID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
		return err
	}

	r.lines = append(r.lines, Line{
		Index:   index,
		State:   state,
		Speaker: p.ID,
		Label:   p.Label,
		Raw:     raw,
		Text:    text,
		Segment: seg,
	})
	r.segments = append(r.segments, seg)
	r.o.opts.Metrics.TurnCompleted(string(p.ID), state.String())

	r.log.InfoContext(ctx, "Turn complete",
		"turn", index, "state", state.String(), "persona", string(p.ID),
		"chars", len(text), "audio_s", seg.DurationSeconds())
	return nil
}

// compose returns the model output and the final text for a turn.
func (r *run) compose(ctx context.Context, state State, p persona.Persona) (raw, text string, err error) {
	switch state {
	case HostIntro, AdvisorIntro, AnalystIntro:
		return "", p.Intro, nil
	case HostOutro:
		return "", r.o.cast.Host.Outro, nil

	case HostTopicIntro:
		raw, err = r.o.model.Complete(ctx, topicRequest(r.o.cast, r.req.Context))
		if err != nil {
			return "", "", err
		}
		r.topic = sentence.Complete(raw)
		r.history = append(r.history, Entry{Speaker: p.ID, Name: p.Name, Text: r.topic})
		return raw, r.topic, nil

	case AdvisorTurn:
		raw, err = r.o.model.Complete(ctx, advisorRequest(r.o.cast, r.req.Context, r.topic, r.history,
			r.o.opts.MaxTokens, r.o.temperature))
	case AnalystTurn:
		advisorLine, _ := r.history.lastFrom(persona.Advisor)
		raw, err = r.o.model.Complete(ctx, analystRequest(r.o.cast, r.req.Context, r.topic, advisorLine, r.history,
			r.o.opts.MaxTokens, r.o.temperature))
	default:
		return "", "", fmt.Errorf("state %s produces no turn", state)
	}
	if err != nil {
		return "", "", err
	}

	text = r.polisher.Polish(raw, polish.Turn{
		Speaker:     p.ID,
		Pair:        r.pair,
		LastSpeaker: r.lastSpeaker,
		HistoryLen:  len(r.history),
	})
	r.history = append(r.history, Entry{Speaker: p.ID, Name: p.Name, Text: text})
	r.lastSpeaker = p.ID
	return raw, text, nil
}

func (r *run) finish(ctx context.Context) (Summary, error) {
	r.emit(progress.Event{
		Stage:   progress.StageMerge,
		Message: "Merging audio",
		Percent: progress.TurnPercent(r.total, r.total),
		Elapsed: time.Since(r.start),
	})

	now := r.o.now()
	audioPath, transcriptPath := OutputPaths(r.req.OutputDir, r.req.Prefix, now)
	merged, err := r.asm.Concatenate(ctx, r.segments, audioPath)
	if err != nil {
		return Summary{}, &Error{State: Done, Err: err}
	}
	transcriptPath, conflict, err := assembly.Reserve(transcriptPath, now)
	if err == nil {
		if conflict != nil {
			r.log.WarnContext(ctx, "Transcript name taken, wrote alternate file", "requested", conflict.Requested, "path", transcriptPath)
		}
		if err = WriteTranscript(transcriptPath, r.lines); err != nil {
			os.Remove(transcriptPath)
		}
	}
	if err != nil {
		os.Remove(merged.Path)
		return Summary{}, &Error{State: Done, Err: fmt.Errorf("write transcript: %w", err)}
	}

	summary := Summary{
		SessionID:      r.id,
		AudioPath:      merged.Path,
		TranscriptPath: transcriptPath,
		Duration:       merged.Duration,
		Turns:          len(r.lines),
		Lines:          r.lines,
		Conflict:       merged.Conflict,
	}
	if info, err := os.Stat(merged.Path); err == nil {
		summary.SizeBytes = info.Size()
	}

	r.emit(progress.Event{
		Stage:          progress.StageComplete,
		Message:        "Episode complete",
		Percent:        1,
		Elapsed:        time.Since(r.start),
		OutputFile:     summary.AudioPath,
		TranscriptFile: summary.TranscriptPath,
		Duration:       progress.FormatDuration(summary.Duration),
		SizeMB:         float64(summary.SizeBytes) / (1024 * 1024),
	})
	return summary, nil
}
