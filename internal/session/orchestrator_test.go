package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/panelcast/internal/assembly"
	"github.com/apresai/panelcast/internal/llm"
	"github.com/apresai/panelcast/internal/persona"
	"github.com/apresai/panelcast/internal/progress"
	"github.com/apresai/panelcast/internal/tts"
)

type scriptedModel struct {
	mu      sync.Mutex
	reqs    []llm.Request
	failOn  int // 1-based call that fails, 0 never
	failErr error
}

func (m *scriptedModel) Complete(_ context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	n := len(m.reqs)
	if n == m.failOn {
		return "", m.failErr
	}
	if n == 1 {
		return "Today we look at wait times and backlog trends.", nil
	}
	return fmt.Sprintf("The backlog figure moved in week %d of the quarter.", n), nil
}

type fakeSynth struct {
	mu     sync.Mutex
	fail   error
	voices []string
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(_ context.Context, in tts.Input, v tts.Voice) (tts.AudioResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return tts.AudioResult{}, f.fail
	}
	f.voices = append(f.voices, v.ID)
	// 0.1s of silence at 24 kHz
	return tts.AudioResult{Data: make([]byte, 4800), Format: tts.FormatPCM, SampleRate: 24000}, nil
}

func (f *fakeSynth) DefaultVoices() tts.VoiceMap {
	return tts.VoiceMap{
		Host:    tts.Voice{ID: "host-voice"},
		Advisor: tts.Voice{ID: "advisor-voice"},
		Analyst: tts.Voice{ID: "analyst-voice"},
	}
}

func (f *fakeSynth) Close() error { return nil }

var fastRetry = tts.RetryPolicy{MaxAttempts: 1}

func newTestOrchestrator(t *testing.T, model Completer, synth tts.Provider, events *[]progress.Event) (*Orchestrator, string) {
	t.Helper()
	tmp := t.TempDir()
	opts := Options{Seed: 7, Retry: fastRetry, TempDir: tmp}
	if events != nil {
		opts.Progress = func(e progress.Event) { *events = append(*events, e) }
	}
	o := New(model, synth, opts)
	o.now = func() time.Time { return time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC) }
	return o, tmp
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "expected %s to be empty", dir)
}

func TestPlan(t *testing.T) {
	assert.Equal(t, []State{HostIntro, AdvisorIntro, AnalystIntro, HostTopicIntro, AdvisorTurn, AnalystTurn, HostOutro}, Plan(1))

	plan := Plan(3)
	require.Len(t, plan, 11)
	assert.Equal(t, []State{AdvisorTurn, AnalystTurn, AdvisorTurn, AnalystTurn, AdvisorTurn, AnalystTurn}, plan[4:10])

	assert.Len(t, Plan(0), TurnCount(DefaultTurns))
	assert.Len(t, Plan(99), TurnCount(MaxTurns))
}

func TestClampTurns(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 6}, {-3, 1}, {1, 1}, {12, 12}, {13, 12}, {5, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampTurns(tt.in), "ClampTurns(%d)", tt.in)
	}
}

func TestStateSpeaker(t *testing.T) {
	assert.Equal(t, persona.Host, HostTopicIntro.Speaker())
	assert.Equal(t, persona.Advisor, AdvisorTurn.Speaker())
	assert.Equal(t, persona.Analyst, AnalystIntro.Speaker())
	assert.True(t, HostOutro.Scripted())
	assert.False(t, HostTopicIntro.Scripted())
	assert.Equal(t, "analyst_turn", AnalystTurn.String())
}

func TestRunSinglePair(t *testing.T) {
	model := &scriptedModel{}
	synth := &fakeSynth{}
	var events []progress.Event
	o, tmp := newTestOrchestrator(t, model, synth, &events)
	out := t.TempDir()

	sum, err := o.Run(context.Background(), Request{Context: `{"wait_time": [4.1, 3.8]}`, Turns: 1, OutputDir: out})
	require.NoError(t, err)

	require.Len(t, sum.Lines, 7)
	wantStates := Plan(1)
	for i, l := range sum.Lines {
		assert.Equal(t, wantStates[i], l.State)
		assert.Equal(t, i+1, l.Index)
	}
	assert.Equal(t, persona.DefaultHost.Intro, sum.Lines[0].Text)
	assert.Equal(t, persona.DefaultHost.Outro, sum.Lines[6].Text)
	assert.Empty(t, sum.Lines[1].Raw)
	assert.NotEmpty(t, sum.Lines[4].Raw)

	// transcript: one line per turn, persona order
	assert.Equal(t, filepath.Join(out, "podcast_script_20260501_093000.txt"), sum.TranscriptPath)
	data, err := os.ReadFile(sum.TranscriptPath)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	require.Len(t, lines, 7)
	labels := []string{"Host Alex", "Advisor Jordan", "Analyst Sam", "Host Alex", "Advisor Jordan", "Analyst Sam", "Host Alex"}
	for i, line := range lines {
		assert.True(t, strings.HasPrefix(line, labels[i]+": "), "line %d: %q", i, line)
	}

	// audio: every segment, in order
	assert.Equal(t, filepath.Join(out, "podcast_20260501_093000.wav"), sum.AudioPath)
	assert.InDelta(t, 0.7, sum.Duration, 1e-9)
	assert.Equal(t, int64(44+7*4800), sum.SizeBytes)
	assert.Equal(t, 7, sum.Turns)
	assert.NotEmpty(t, sum.SessionID)

	// three model calls: topic, advisor, analyst
	require.Len(t, model.reqs, 3)
	assert.Contains(t, model.reqs[0].System, "host of")
	assert.Equal(t, 120, model.reqs[0].MaxTokens)
	assert.Equal(t, DefaultMaxTokens, model.reqs[1].MaxTokens)
	assert.Contains(t, model.reqs[1].User, sum.Lines[3].Text)
	assert.Contains(t, model.reqs[2].User, "Jordan just said: "+sum.Lines[4].Text)

	assert.Equal(t, []string{"host-voice", "advisor-voice", "analyst-voice", "host-voice", "advisor-voice", "analyst-voice", "host-voice"}, synth.voices)

	turnEvents := 0
	for _, e := range events {
		if e.Stage == progress.StageTurn {
			turnEvents++
		}
	}
	assert.Equal(t, 7, turnEvents)
	assert.Equal(t, progress.StageComplete, events[len(events)-1].Stage)

	assertEmptyDir(t, tmp)
}

func TestRunRoundRobinPrompts(t *testing.T) {
	model := &scriptedModel{}
	o, _ := newTestOrchestrator(t, model, &fakeSynth{}, nil)

	sum, err := o.Run(context.Background(), Request{Context: "metrics", Turns: 2, OutputDir: t.TempDir(), Prefix: "ep"})
	require.NoError(t, err)
	require.Len(t, sum.Lines, 9)
	assert.True(t, strings.HasPrefix(filepath.Base(sum.AudioPath), "ep_"))

	// second advisor turn sees the analyst's last line
	require.Len(t, model.reqs, 5)
	assert.NotContains(t, model.reqs[1].User, "Sam last said")
	assert.Contains(t, model.reqs[3].User, "Sam last said: "+sum.Lines[5].Text)
	assert.NotContains(t, model.reqs[1].User, "Previous conversation:\nAlex")
	assert.Contains(t, model.reqs[3].User, "Previous conversation:\nJordan: "+sum.Lines[4].Text)
}

func TestRunTurnFailure(t *testing.T) {
	model := &scriptedModel{failOn: 2, failErr: &llm.TransportError{Provider: "fake", Err: errors.New("connection reset")}}
	var events []progress.Event
	o, tmp := newTestOrchestrator(t, model, &fakeSynth{}, &events)
	out := t.TempDir()

	_, err := o.Run(context.Background(), Request{Context: "metrics", Turns: 1, OutputDir: out})
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, AdvisorTurn, serr.State)
	assert.Equal(t, persona.Advisor, serr.Persona)
	assert.Equal(t, 5, serr.Turn)
	assert.Equal(t, "transport", serr.Kind())
	assert.Contains(t, err.Error(), "turn 5")

	assertEmptyDir(t, out)
	assertEmptyDir(t, tmp)
	assert.Equal(t, progress.StageFailed, events[len(events)-1].Stage)
}

func TestRunSynthesisFailure(t *testing.T) {
	synth := &fakeSynth{fail: &tts.SynthesisError{Provider: "fake", Err: errors.New("no audio")}}
	o, tmp := newTestOrchestrator(t, &scriptedModel{}, synth, nil)
	out := t.TempDir()

	_, err := o.Run(context.Background(), Request{Context: "metrics", Turns: 1, OutputDir: out})
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, HostIntro, serr.State)
	assert.Equal(t, "synthesis", serr.Kind())
	assertEmptyDir(t, out)
	assertEmptyDir(t, tmp)
}

type ratedSynth struct {
	fakeSynth
	rate int
}

func (r *ratedSynth) SampleRate() int { return r.rate }

func TestRunRejectsUnexpectedSampleRate(t *testing.T) {
	// provider declares 16 kHz but returns 24 kHz audio
	o, tmp := newTestOrchestrator(t, &scriptedModel{}, &ratedSynth{rate: 16000}, nil)
	out := t.TempDir()

	_, err := o.Run(context.Background(), Request{Context: "metrics", Turns: 1, OutputDir: out})
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "format_mismatch", serr.Kind())
	var fm *assembly.FormatMismatchError
	require.ErrorAs(t, err, &fm)
	assert.Equal(t, 0, fm.Index)
	assertEmptyDir(t, out)
	assertEmptyDir(t, tmp)

	o, _ = newTestOrchestrator(t, &scriptedModel{}, &ratedSynth{rate: 24000}, nil)
	_, err = o.Run(context.Background(), Request{Context: "metrics", Turns: 1, OutputDir: t.TempDir()})
	assert.NoError(t, err)
}

func TestSameSecondSessionsKeepSeparateArtifacts(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedModel{}, &fakeSynth{}, nil)
	out := t.TempDir()
	ctx := context.Background()

	first, err := o.Run(ctx, Request{Context: "metrics", Turns: 1, OutputDir: out})
	require.NoError(t, err)
	assert.Nil(t, first.Conflict)
	firstAudio, err := os.ReadFile(first.AudioPath)
	require.NoError(t, err)
	firstScript, err := os.ReadFile(first.TranscriptPath)
	require.NoError(t, err)

	second, err := o.Run(ctx, Request{Context: "metrics", Turns: 2, OutputDir: out})
	require.NoError(t, err)
	assert.NotEqual(t, first.AudioPath, second.AudioPath)
	assert.NotEqual(t, first.TranscriptPath, second.TranscriptPath)
	require.NotNil(t, second.Conflict)
	assert.Equal(t, first.AudioPath, second.Conflict.Requested)
	assert.Equal(t, second.AudioPath, second.Conflict.Used)
	assert.ErrorIs(t, second.Conflict, os.ErrExist)

	// the first episode is untouched
	got, err := os.ReadFile(first.AudioPath)
	require.NoError(t, err)
	assert.Equal(t, firstAudio, got)
	got, err = os.ReadFile(first.TranscriptPath)
	require.NoError(t, err)
	assert.Equal(t, firstScript, got)

	assert.Equal(t, int64(44+9*4800), second.SizeBytes)
	info, err := os.Stat(second.AudioPath)
	require.NoError(t, err)
	assert.Equal(t, second.SizeBytes, info.Size())

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestConcurrentSessionsShareOutputDir(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedModel{}, &fakeSynth{}, nil)
	out := t.TempDir()

	const n = 3
	sums := make([]Summary, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sums[i], errs[i] = o.Run(context.Background(), Request{Context: "metrics", Turns: 1, OutputDir: out})
		}()
	}
	wg.Wait()

	audio := map[string]bool{}
	scripts := map[string]bool{}
	for i := range n {
		require.NoError(t, errs[i])
		audio[sums[i].AudioPath] = true
		scripts[sums[i].TranscriptPath] = true
		info, err := os.Stat(sums[i].AudioPath)
		require.NoError(t, err)
		assert.Equal(t, sums[i].SizeBytes, info.Size())
	}
	assert.Len(t, audio, n)
	assert.Len(t, scripts, n)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 2*n)
}

func TestTemperatureOption(t *testing.T) {
	run := func(opts Options) []llm.Request {
		model := &scriptedModel{}
		opts.Retry, opts.TempDir = fastRetry, t.TempDir()
		_, err := New(model, &fakeSynth{}, opts).Run(context.Background(), Request{Context: "metrics", Turns: 1, OutputDir: t.TempDir()})
		require.NoError(t, err)
		require.Len(t, model.reqs, 3)
		return model.reqs
	}

	reqs := run(Options{})
	assert.Equal(t, DefaultTemperature, reqs[1].Temperature)

	zero := 0.0
	reqs = run(Options{Temperature: &zero})
	assert.Zero(t, reqs[1].Temperature)
	assert.Zero(t, reqs[2].Temperature)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o, tmp := newTestOrchestrator(t, &scriptedModel{}, &fakeSynth{}, nil)

	_, err := o.Run(ctx, Request{Context: "metrics", Turns: 1, OutputDir: t.TempDir()})
	require.ErrorIs(t, err, context.Canceled)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "canceled", serr.Kind())
	assertEmptyDir(t, tmp)
}

func TestRunEmptyContext(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedModel{}, &fakeSynth{}, nil)
	_, err := o.Run(context.Background(), Request{Context: "  "})
	assert.ErrorIs(t, err, ErrEmptyContext)
}

func TestVoiceOverrides(t *testing.T) {
	o := New(&scriptedModel{}, &fakeSynth{}, Options{Voices: tts.VoiceMap{Analyst: tts.Voice{ID: "custom"}}})
	assert.Equal(t, "host-voice", o.Cast().Host.Plan.Voice)
	assert.Equal(t, "custom", o.Cast().Analyst.Plan.Voice)
	assert.Equal(t, "custom", o.Voices().Analyst.ID)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&llm.PolicyRejectionError{Provider: "x"}, "policy_rejection"},
		{fmt.Errorf("wrapped: %w", &tts.RetryableError{StatusCode: 503}), "transport"},
		{context.DeadlineExceeded, "timeout"},
		{llm.ErrInvalidRequest, "invalid_request"},
		{errors.New("disk full"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, (&Error{Err: tt.err}).Kind(), "%v", tt.err)
	}
}

func TestHistoryWindow(t *testing.T) {
	h := History{{Speaker: persona.Host, Name: "Alex", Text: "a"}}
	assert.Equal(t, "None", h.window(2, 1))
	h = append(h, Entry{Speaker: persona.Advisor, Name: "Jordan", Text: "b"}, Entry{Speaker: persona.Analyst, Name: "Sam", Text: "c"})
	assert.Equal(t, "Jordan: b\nSam: c", h.window(2, 1))
	assert.Equal(t, "Alex: a\nJordan: b\nSam: c", h.window(3, 2))
	last, ok := h.lastFrom(persona.Advisor)
	assert.True(t, ok)
	assert.Equal(t, "b", last)
}
