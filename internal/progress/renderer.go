package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
)

var (
	speakerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5555"))
)

// BarRenderer draws session progress on a terminal: a redrawn two-line
// status and bar on a TTY, one line per event otherwise.
type BarRenderer struct {
	out   io.Writer
	start time.Time
	isTTY bool
	width int
	last  Event
	drawn int // lines on screen to erase before the next redraw
}

// NewBarRenderer creates a renderer for out, sizing the bar to the
// terminal when out is one.
func NewBarRenderer(out *os.File) *BarRenderer {
	tty := IsTerminal(out)
	width := 80
	if tty {
		if w, _, err := term.GetSize(out.Fd()); err == nil && w > 0 {
			width = w
		}
	}
	return newBarRenderer(out, tty, width)
}

func newBarRenderer(out io.Writer, tty bool, width int) *BarRenderer {
	return &BarRenderer{out: out, start: time.Now(), isTTY: tty, width: width}
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Handle satisfies Callback.
func (r *BarRenderer) Handle(e Event) {
	e.Elapsed = time.Since(r.start)
	if e.Stage == StageComplete {
		e.Percent = 1
	}
	r.last = e

	if !r.isTTY {
		fmt.Fprintf(r.out, "[%s] %s\n", formatElapsed(e.Elapsed), statusLine(e))
		return
	}
	r.erase()
	label := statusLine(e)
	if e.Persona != "" {
		label = speakerStyle.Render(label)
	}
	fmt.Fprintf(r.out, "  %s\n  %s %s  %s",
		label,
		barStyle.Render(renderBar(e.Percent, r.barWidth())),
		fmt.Sprintf("%3d%%", int(e.Percent*100)),
		dimStyle.Render(formatElapsed(e.Elapsed)))
	r.drawn = 2
}

// Finish erases the live display and prints where the episode went, or the
// error that stopped it.
func (r *BarRenderer) Finish() {
	e := r.last
	if r.isTTY {
		r.erase()
	}
	if e.Error != nil {
		fmt.Fprintf(r.out, "\n  %s\n", failStyle.Render("Error: "+e.Error.Error()))
		return
	}
	if e.Stage != StageComplete {
		return
	}

	switch {
	case e.OutputFile != "" && e.Duration != "":
		fmt.Fprintf(r.out, "\n  Episode saved to %s (%s, %.1f MB)\n", e.OutputFile, e.Duration, e.SizeMB)
	case e.OutputFile != "":
		fmt.Fprintf(r.out, "\n  Episode saved to %s (%.1f MB)\n", e.OutputFile, e.SizeMB)
	default:
		fmt.Fprintf(r.out, "\n  %s\n", e.Message)
	}
	if e.TranscriptFile != "" {
		fmt.Fprintf(r.out, "  Transcript: %s  |  Total: %s\n", e.TranscriptFile, formatElapsed(e.Elapsed))
	}
}

// statusLine prefixes turn events with their position in the session.
func statusLine(e Event) string {
	if e.Stage == StageTurn && e.TurnTotal > 0 {
		return fmt.Sprintf("%d/%d %s", e.TurnNum, e.TurnTotal, e.Message)
	}
	return e.Message
}

func (r *BarRenderer) erase() {
	if r.drawn == 0 {
		return
	}
	fmt.Fprint(r.out, "\r\033[2K")
	for i := 1; i < r.drawn; i++ {
		fmt.Fprint(r.out, "\033[A\033[2K")
	}
	fmt.Fprint(r.out, "\r")
	r.drawn = 0
}

// barWidth leaves room for the indent, percent and elapsed columns.
func (r *BarRenderer) barWidth() int {
	return min(max(r.width-16, 20), 60)
}

func renderBar(pct float64, width int) string {
	pct = min(max(pct, 0), 1)
	filled := min(int(pct*float64(width)), width)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// formatElapsed formats a duration as M:SS.
func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
