// Package assembly renders markup to per-turn WAV segments and merges the
// segments into the final episode file.
package assembly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/panelcast/internal/ssml"
	"github.com/apresai/panelcast/internal/tts"
)

// FallbackSampleRate is assumed when a container reports a zero rate.
const FallbackSampleRate = 24000

var tracer = otel.Tracer("panelcast/assembly")

// Segment is one rendered turn on disk.
type Segment struct {
	Path   string
	Format Format
	Frames int64
}

// DurationSeconds is the segment length computed from its sample count.
func (s Segment) DurationSeconds() float64 {
	return durationSeconds(s.Frames, s.Format.SampleRate)
}

func durationSeconds(frames int64, rate int) float64 {
	if rate <= 0 {
		rate = FallbackSampleRate
	}
	return float64(frames) / float64(rate)
}

// FormatMismatchError reports a segment whose sample layout differs from
// the first segment of a merge.
type FormatMismatchError struct {
	Index int
	Path  string
	Want  Format
	Got   Format
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("segment %d (%s) is %s, expected %s", e.Index, filepath.Base(e.Path), e.Got, e.Want)
}

// DestinationConflictError records that the requested destination could not
// be written and the merge went to Used instead.
type DestinationConflictError struct {
	Requested string
	Used      string
	Err       error
}

func (e *DestinationConflictError) Error() string {
	return fmt.Sprintf("destination %s unavailable (%v), wrote %s", e.Requested, e.Err, e.Used)
}

func (e *DestinationConflictError) Unwrap() error { return e.Err }

// MergeResult describes the merged episode file.
type MergeResult struct {
	Path     string
	Format   Format
	Frames   int64
	Duration float64
	// Conflict is set when the audio was written to an alternate path.
	Conflict *DestinationConflictError
}

// Options tunes an Assembler. Zero values pick the defaults.
type Options struct {
	Retry tts.RetryPolicy
	// CallTimeout bounds each synthesis call. Zero disables the bound.
	CallTimeout time.Duration
	// OnFallback is called when a turn is re-rendered from plain text.
	OnFallback func()
	// Format is the layout every segment must have. Zero accepts the
	// layout of the first segment.
	Format Format
	Logger *slog.Logger
}

// Assembler renders markup through a tts.Provider into segment files under
// dir and concatenates them.
type Assembler struct {
	provider tts.Provider
	dir      string
	opts     Options
	log      *slog.Logger

	rename func(oldpath, newpath string) error
	now    func() time.Time
}

// New creates an Assembler writing segments into dir.
func New(provider tts.Provider, dir string, opts Options) *Assembler {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = tts.DefaultRetry
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{
		provider: provider,
		dir:      dir,
		opts:     opts,
		log:      log.With("tts_provider", provider.Name()),
		rename:   os.Rename,
		now:      time.Now,
	}
}

// Synthesize renders m to a segment file. When the provider cannot handle
// the markup, the turn is rendered once more from the markup-stripped text.
func (a *Assembler) Synthesize(ctx context.Context, index int, m ssml.Markup, voice tts.Voice) (Segment, error) {
	if voice.ID == "" {
		voice.ID = m.Voice
	}
	ctx, span := tracer.Start(ctx, "assembly.synthesize", trace.WithAttributes(
		attribute.Int("index", index),
		attribute.String("voice", voice.ID),
	))
	defer span.End()

	res, err := a.synthesize(ctx, tts.Input{Text: m.SSML, SSML: true}, voice)
	if tts.IsSynthesisError(err) {
		a.log.WarnContext(ctx, "Markup synthesis failed, retrying as plain text", "index", index, "error", err)
		span.AddEvent("plain_text_fallback")
		if a.opts.OnFallback != nil {
			a.opts.OnFallback()
		}
		res, err = a.synthesize(ctx, tts.Input{Text: ssml.Plain(m.SSML)}, voice)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
		return Segment{}, err
	}

	format, pcm, err := decodeResult(res)
	if err != nil {
		return Segment{}, fmt.Errorf("decode %s audio: %w", a.provider.Name(), err)
	}

	path := filepath.Join(a.dir, fmt.Sprintf("seg_%03d_%s.wav", index, uuid.NewString()))
	if err := WriteWAVFile(path, format, pcm); err != nil {
		return Segment{}, fmt.Errorf("write segment %d: %w", index, err)
	}

	seg := Segment{Path: path, Format: format, Frames: int64(len(pcm) / format.BlockAlign())}
	span.SetAttributes(attribute.Float64("duration_s", seg.DurationSeconds()))
	return seg, nil
}

func (a *Assembler) synthesize(ctx context.Context, in tts.Input, voice tts.Voice) (tts.AudioResult, error) {
	var res tts.AudioResult
	err := a.opts.Retry.Do(ctx, func() error {
		callCtx := ctx
		if a.opts.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, a.opts.CallTimeout)
			defer cancel()
		}
		var err error
		res, err = a.provider.Synthesize(callCtx, in, voice)
		return err
	})
	return res, err
}

// decodeResult returns the sample layout and raw samples of a provider
// response. Raw PCM is assumed to be 16-bit mono.
func decodeResult(res tts.AudioResult) (Format, []byte, error) {
	var (
		f   Format
		pcm []byte
	)
	switch res.Format {
	case tts.FormatWAV:
		var err error
		f, pcm, err = DecodeWAV(res.Data)
		if err != nil {
			return Format{}, nil, err
		}
	case tts.FormatPCM:
		rate := res.SampleRate
		if rate == 0 {
			rate = FallbackSampleRate
		}
		f, pcm = MonoPCM16(rate), res.Data
	default:
		return Format{}, nil, fmt.Errorf("unsupported audio format %q", res.Format)
	}

	if f.BlockAlign() == 0 {
		return Format{}, nil, fmt.Errorf("invalid sample layout %s", f)
	}
	if len(pcm) == 0 {
		return Format{}, nil, errors.New("empty audio")
	}
	// drop a trailing partial frame
	pcm = pcm[:len(pcm)-len(pcm)%f.BlockAlign()]
	return f, pcm, nil
}

// Concatenate merges segments in order into dest. All segments must share
// one sample layout; on a mismatch nothing is written. When dest cannot be
// replaced the merge is kept at a timestamped alternate path and reported
// in MergeResult.Conflict.
func (a *Assembler) Concatenate(ctx context.Context, segments []Segment, dest string) (MergeResult, error) {
	if len(segments) == 0 {
		return MergeResult{}, errors.New("no audio segments to concatenate")
	}

	var (
		want   = a.opts.Format
		chunks = make([][]byte, 0, len(segments))
		frames int64
	)
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return MergeResult{}, err
		}
		f, pcm, err := ReadWAVFile(seg.Path)
		if err != nil {
			return MergeResult{}, fmt.Errorf("read segment %d: %w", i, err)
		}
		if i == 0 && want == (Format{}) {
			want = f
		} else if f != want {
			return MergeResult{}, &FormatMismatchError{Index: i, Path: seg.Path, Want: want, Got: f}
		}
		chunks = append(chunks, pcm)
		frames += int64(len(pcm) / f.BlockAlign())
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return MergeResult{}, fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".panelcast-merge-*.wav")
	if err != nil {
		return MergeResult{}, fmt.Errorf("create merge file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := WriteWAVFile(tmpPath, want, chunks...); err != nil {
		os.Remove(tmpPath)
		return MergeResult{}, fmt.Errorf("write merge file: %w", err)
	}

	result := MergeResult{Path: dest, Format: want, Frames: frames, Duration: durationSeconds(frames, want.SampleRate)}
	path, conflict, err := Reserve(dest, a.now())
	if err != nil {
		os.Remove(tmpPath)
		return MergeResult{}, err
	}
	err = a.rename(tmpPath, path)
	if err != nil && conflict == nil && isWriteConflict(err) {
		os.Remove(path)
		path, conflict, err = reserveAlternate(dest, a.now(), err)
		if err == nil {
			err = a.rename(tmpPath, path)
		}
	}
	if err != nil {
		os.Remove(tmpPath)
		if path != "" {
			os.Remove(path)
		}
		return MergeResult{}, fmt.Errorf("move merge file into place: %w", err)
	}

	result.Path = path
	if conflict != nil {
		result.Conflict = conflict
		a.log.WarnContext(ctx, "Destination unavailable, wrote alternate file", "requested", dest, "path", path, "error", conflict.Err)
	}
	return result, nil
}

// Reserve claims dest by creating it exclusively, so concurrent writers
// never replace each other's output. When dest already exists or cannot be
// written, an alternate path is claimed instead and the substitution is
// reported.
func Reserve(dest string, t time.Time) (string, *DestinationConflictError, error) {
	err := createExclusive(dest)
	if err == nil {
		return dest, nil, nil
	}
	if !errors.Is(err, os.ErrExist) && !isWriteConflict(err) {
		return "", nil, fmt.Errorf("create %s: %w", dest, err)
	}
	return reserveAlternate(dest, t, err)
}

const maxAlternates = 100

func reserveAlternate(dest string, t time.Time, cause error) (string, *DestinationConflictError, error) {
	alt := AlternatePath(dest, t)
	ext := filepath.Ext(alt)
	base := strings.TrimSuffix(alt, ext)
	for n := 2; ; n++ {
		err := createExclusive(alt)
		if err == nil {
			return alt, &DestinationConflictError{Requested: dest, Used: alt, Err: cause}, nil
		}
		if !errors.Is(err, os.ErrExist) || n > maxAlternates {
			return "", nil, fmt.Errorf("write alternate %s: %w", alt, err)
		}
		alt = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
}

func createExclusive(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// AlternatePath appends a second-resolution timestamp to the base name.
func AlternatePath(dest string, t time.Time) string {
	ext := filepath.Ext(dest)
	return strings.TrimSuffix(dest, ext) + t.Format("20060102150405") + ext
}

func isWriteConflict(err error) bool {
	return errors.Is(err, os.ErrPermission) ||
		errors.Is(err, syscall.EACCES) ||
		errors.Is(err, syscall.EPERM) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETXTBSY)
}

// FileDuration reads a WAV file and returns its length in seconds.
func FileDuration(path string) (float64, error) {
	f, pcm, err := ReadWAVFile(path)
	if err != nil {
		return 0, err
	}
	if f.BlockAlign() == 0 {
		return 0, fmt.Errorf("%s: invalid sample layout %s", path, f)
	}
	return durationSeconds(int64(len(pcm)/f.BlockAlign()), f.SampleRate), nil
}
