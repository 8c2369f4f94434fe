package progress

import "time"

// Stage identifies which part of a session is active.
type Stage string

const (
	StageIngest   Stage = "ingest"
	StageTurn     Stage = "turn"
	StageMerge    Stage = "merge"
	StageComplete Stage = "complete"
	StageFailed   Stage = "failed"
)

// Event carries progress information from the orchestrator to renderers,
// job stores, and event streams.
type Event struct {
	Stage   Stage   `json:"stage"`
	Message string  `json:"message"`
	Percent float64 `json:"percent"` // 0.0–1.0

	// State and Persona name the turn being produced, set on StageTurn.
	State     string `json:"state,omitempty"`
	Persona   string `json:"persona,omitempty"`
	TurnNum   int    `json:"turn,omitempty"`
	TurnTotal int    `json:"turn_total,omitempty"`

	Elapsed time.Duration `json:"elapsed"`
	Error   error         `json:"-"`

	// Set on StageComplete.
	OutputFile     string  `json:"output_file,omitempty"`
	TranscriptFile string  `json:"transcript_file,omitempty"`
	Duration       string  `json:"duration,omitempty"` // M:SS
	SizeMB         float64 `json:"size_mb,omitempty"`
}

// Callback is the function signature for progress event handlers.
type Callback func(Event)

// NopCallback is a no-op progress callback for tests and silent mode.
func NopCallback(Event) {}

// Multi fans an event out to every non-nil callback.
func Multi(cbs ...Callback) Callback {
	return func(e Event) {
		for _, cb := range cbs {
			if cb != nil {
				cb(e)
			}
		}
	}
}

// NewEvent creates an Event with common fields populated.
func NewEvent(stage Stage, msg string, pct float64, start time.Time) Event {
	return Event{
		Stage:   stage,
		Message: msg,
		Percent: pct,
		Elapsed: time.Since(start),
	}
}

// TurnPercent maps a finished turn count to the share of the session it
// represents. The merge step takes the final 5%.
func TurnPercent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 0.95 * float64(done) / float64(total)
}

// FormatDuration renders seconds as M:SS.
func FormatDuration(seconds float64) string {
	return formatElapsed(time.Duration(seconds * float64(time.Second)))
}
