// Package polish turns raw model output into a persona's final spoken line.
//
// The pipeline varies the opening, adds at most one conversational
// embellishment, may insert an emotional reaction, collapses repetition,
// and completes the sentence. Randomized steps draw from an injected Rand so
// a seeded source reproduces the same output.
package polish

import (
	"math/rand/v2"
	"time"

	"github.com/apresai/panelcast/internal/persona"
	"github.com/apresai/panelcast/internal/sentence"
)

// Rand is the random source used by the randomized steps.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// NewRand returns a PCG source for seed. Seed 0 seeds from the clock.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Config holds the probabilities that gate each randomized step.
type Config struct {
	OpenerReplace    float64 // replace an acceptable opening anyway
	AddressGate      float64 // address the counterpart once a trigger fires
	AddressAfterTurn float64 // address trigger from the third pair onward
	AddressAgreement float64 // address trigger on agreement words
	Surprise         float64
	Interruption     float64 // acknowledgment or interruption prefix
	Acknowledge      float64 // acknowledgment share of the interruption step
	AgreeDisagree    float64
	AgreeRatio       float64 // agreement share of the agree/disagree step
	Reaction         float64 // per matching reaction category
}

// DefaultConfig returns the tuned production probabilities.
func DefaultConfig() Config {
	return Config{
		OpenerReplace:    0.4,
		AddressGate:      0.7,
		AddressAfterTurn: 0.3,
		AddressAgreement: 0.2,
		Surprise:         0.25,
		Interruption:     0.25,
		Acknowledge:      0.5,
		AgreeDisagree:    0.35,
		AgreeRatio:       0.6,
		Reaction:         0.4,
	}
}

// Turn describes where in the session a line is being polished.
type Turn struct {
	Speaker     persona.ID
	Pair        int        // 1-based round-robin pair, 0 outside the round-robin
	LastSpeaker persona.ID // empty before anyone has spoken
	HistoryLen  int
}

// Polisher applies the pipeline for one session. It keeps the last opener
// used per persona and is not safe for concurrent use.
type Polisher struct {
	cast    persona.Cast
	cfg     Config
	rng     Rand
	memory  map[persona.ID]string
	cleaner *cleaner
}

// New creates a Polisher for cast.
func New(cast persona.Cast, rng Rand, cfg Config) *Polisher {
	if rng == nil {
		rng = NewRand(0)
	}
	return &Polisher{
		cast:    cast,
		cfg:     cfg,
		rng:     rng,
		memory:  make(map[persona.ID]string),
		cleaner: newCleaner(cast),
	}
}

// Polish runs the full pipeline on text.
func (p *Polisher) Polish(text string, t Turn) string {
	text = sentence.CollapseSpace(text)
	text = p.VaryOpening(text, t.Speaker)
	text = p.AddDynamics(text, t)
	text = p.AddReaction(text)
	text = p.CleanRepetition(text)
	return sentence.Complete(text)
}

// LastOpener returns the opener most recently inserted for id.
func (p *Polisher) LastOpener(id persona.ID) string {
	return p.memory[id]
}

func (p *Polisher) pick(options []string) string {
	return options[p.rng.IntN(len(options))]
}
