package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apresai/panelcast/internal/assembly"
	"github.com/apresai/panelcast/internal/persona"
)

// DefaultPrefix names output files when the request leaves it empty.
const DefaultPrefix = "podcast"

// Line is one finished turn.
type Line struct {
	Index   int // 1-based
	State   State
	Speaker persona.ID
	Label   string
	Raw     string // model output before polishing, empty for scripted lines
	Text    string
	Segment assembly.Segment
}

// ScriptLine formats the line for the transcript artifact.
func (l Line) ScriptLine() string {
	return l.Label + ": " + l.Text
}

// Transcript renders lines one per turn in order, newline-joined.
func Transcript(lines []Line) string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.ScriptLine()
	}
	return strings.Join(out, "\n")
}

// WriteTranscript writes the transcript artifact to path.
func WriteTranscript(path string, lines []Line) error {
	return os.WriteFile(path, []byte(Transcript(lines)), 0o644)
}

// OutputPaths returns the audio and transcript paths for a session
// finishing at t.
func OutputPaths(dir, prefix string, t time.Time) (audio, transcript string) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if dir == "" {
		dir = "."
	}
	ts := t.Format("20060102_150405")
	return filepath.Join(dir, fmt.Sprintf("%s_%s.wav", prefix, ts)),
		filepath.Join(dir, fmt.Sprintf("%s_script_%s.txt", prefix, ts))
}
