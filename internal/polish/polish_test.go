package polish

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/panelcast/internal/persona"
	"github.com/apresai/panelcast/internal/sentence"
)

// scriptedRand replays fixed draws. Exhausted floats return 0.99 so no
// optional branch fires; exhausted ints return 0.
type scriptedRand struct {
	floats []float64
	ints   []int
}

func (r *scriptedRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 0.99
	}
	f := r.floats[0]
	r.floats = r.floats[1:]
	return f
}

func (r *scriptedRand) IntN(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	i := r.ints[0] % n
	r.ints = r.ints[1:]
	return i
}

// alwaysRand forces every probability gate open and picks the first option.
type alwaysRand struct{}

func (alwaysRand) Float64() float64 { return 0 }
func (alwaysRand) IntN(int) int     { return 0 }

func TestVaryOpeningStripsForbiddenFiller(t *testing.T) {
	tests := []struct {
		name string
		id   persona.ID
		in   string
		want string
	}{
		{name: "single word", id: persona.Advisor, in: "Absolutely, the backlog fell 12%.", want: "The backlog fell 12%."},
		{name: "longest phrase", id: persona.Advisor, in: "You know, volume is flat.", want: "Volume is flat."},
		{name: "stacked filler", id: persona.Analyst, in: "Well, actually the join is broken.", want: "The join is broken."},
		{name: "case insensitive", id: persona.Analyst, in: "HOLD ON - the timestamps drift.", want: "The timestamps drift."},
		{name: "word prefix untouched", id: persona.Advisor, in: "Solid data here.", want: "Solid data here."},
		{name: "contraction untouched", id: persona.Advisor, in: "Well's output doubled.", want: "Well's output doubled."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(persona.DefaultCast(), &scriptedRand{floats: []float64{0.9}}, DefaultConfig())
			assert.Equal(t, tt.want, p.VaryOpening(tt.in, tt.id))
			assert.Empty(t, p.LastOpener(tt.id))
		})
	}
}

func TestVaryOpeningReplacesEmptyRemainder(t *testing.T) {
	p := New(persona.DefaultCast(), &scriptedRand{ints: []int{2}}, DefaultConfig())
	got := p.VaryOpening("Well.", persona.Advisor)
	assert.Equal(t, "From that signal", got)
	assert.Equal(t, "From that signal", p.LastOpener(persona.Advisor))
}

func TestVaryOpeningForcedReplacementNeverRepeats(t *testing.T) {
	p := New(persona.DefaultCast(), &scriptedRand{
		floats: []float64{0, 0},
		ints:   []int{0, 0, 0},
	}, DefaultConfig())

	first := p.VaryOpening("The backlog fell.", persona.Advisor)
	second := p.VaryOpening("The backlog fell.", persona.Advisor)

	assert.Equal(t, "Given that, the backlog fell.", first)
	assert.Equal(t, "Looking at this, the backlog fell.", second)
}

func TestOpenerRotationProperty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OpenerReplace = 1
	p := New(persona.DefaultCast(), NewRand(42), cfg)

	for _, id := range []persona.ID{persona.Advisor, persona.Analyst} {
		prev := ""
		for i := 0; i < 200; i++ {
			out := p.VaryOpening("Volume rose 8% in March.", id)
			opener := p.LastOpener(id)
			require.True(t, strings.HasPrefix(out, opener+", "), out)
			require.NotEqual(t, prev, opener, "turn %d repeated %q", i, opener)
			prev = opener
		}
	}
}

func TestVaryOpeningSingleEntryPoolRepeats(t *testing.T) {
	cast := persona.DefaultCast()
	cast.Advisor.Openers = []string{"Given that"}
	p := New(cast, alwaysRand{}, DefaultConfig())

	assert.Equal(t, "Given that, volume rose.", p.VaryOpening("Volume rose.", persona.Advisor))
	assert.Equal(t, "Given that, volume rose.", p.VaryOpening("Volume rose.", persona.Advisor))
}

func TestVaryOpeningKeepsAcronymsAndNames(t *testing.T) {
	p := New(persona.DefaultCast(), alwaysRand{}, DefaultConfig())
	assert.Equal(t, "Given that, ASA fell 42%.", p.VaryOpening("ASA fell 42%.", persona.Advisor))
	assert.Equal(t, "Data suggests, Jordan's target is too tight.", p.VaryOpening("Jordan's target is too tight.", persona.Analyst))
	assert.Equal(t, "From the integrity check, I would check the joins.", p.VaryOpening("I would check the joins.", persona.Analyst))
}

func TestAddDynamicsAddressesCounterpart(t *testing.T) {
	tests := []struct {
		name   string
		floats []float64
		turn   Turn
		in     string
		want   string
	}{
		{
			name:   "challenge keyword",
			floats: []float64{0.1, 0.2},
			turn:   Turn{Speaker: persona.Analyst, Pair: 1},
			in:     "The trend holds, but the sample is thin.",
			want:   "Jordan, the trend holds, but the sample is thin.",
		},
		{
			name:   "you know form",
			floats: []float64{0.1, 0.7},
			turn:   Turn{Speaker: persona.Advisor, Pair: 1},
			in:     "This is a critical staffing gap.",
			want:   "You know, Sam, this is a critical staffing gap.",
		},
		{
			name:   "late pair draw",
			floats: []float64{0.1, 0.1, 0.2},
			turn:   Turn{Speaker: persona.Advisor, Pair: 3},
			in:     "Staffing follows volume.",
			want:   "Sam, staffing follows volume.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(persona.DefaultCast(), &scriptedRand{floats: tt.floats}, DefaultConfig())
			assert.Equal(t, tt.want, p.AddDynamics(tt.in, tt.turn))
		})
	}
}

func TestAddDynamicsGateClosedFallsThrough(t *testing.T) {
	// address trigger fires, gate rejects, then the surprise draw succeeds
	p := New(persona.DefaultCast(), &scriptedRand{floats: []float64{0.9, 0.1}, ints: []int{1}}, DefaultConfig())
	got := p.AddDynamics("The drop is dramatic.", Turn{Speaker: persona.Advisor, Pair: 1})
	assert.Equal(t, "Interestingly, the drop is dramatic.", got)
}

func TestAddDynamicsRoundRobinOnly(t *testing.T) {
	text := "Volume is flat."

	// pair 1: interruption and agreement are not applicable
	p := New(persona.DefaultCast(), alwaysRand{}, DefaultConfig())
	assert.Equal(t, text, p.AddDynamics(text, Turn{Speaker: persona.Host, Pair: 0, LastSpeaker: persona.Analyst}))

	p = New(persona.DefaultCast(), &scriptedRand{floats: []float64{0.99, 0.99, 0.99, 0.1, 0.2}}, DefaultConfig())
	assert.Equal(t, text, p.AddDynamics(text, Turn{Speaker: persona.Advisor, Pair: 1, LastSpeaker: persona.Analyst}))

	// draws: address on agreement, surprise, interruption, acknowledge
	p = New(persona.DefaultCast(), &scriptedRand{floats: []float64{0.99, 0.99, 0.1, 0.1}, ints: []int{1}}, DefaultConfig())
	assert.Equal(t, "That's a good point, volume is flat.",
		p.AddDynamics(text, Turn{Speaker: persona.Analyst, Pair: 2, LastSpeaker: persona.Advisor}))

	p = New(persona.DefaultCast(), &scriptedRand{floats: []float64{0.99, 0.99, 0.1, 0.9}, ints: []int{3}}, DefaultConfig())
	assert.Equal(t, "Another way to look at this is volume is flat.",
		p.AddDynamics(text, Turn{Speaker: persona.Analyst, Pair: 2, LastSpeaker: persona.Advisor}))

	// draws: address on agreement, surprise, interruption, agree/disagree, ratio
	p = New(persona.DefaultCast(), &scriptedRand{floats: []float64{0.99, 0.99, 0.99, 0.1, 0.7}, ints: []int{0}}, DefaultConfig())
	assert.Equal(t, "I have a slightly different view, volume is flat.",
		p.AddDynamics(text, Turn{Speaker: persona.Advisor, Pair: 2, LastSpeaker: persona.Analyst}))
}

func TestAddReaction(t *testing.T) {
	p := New(persona.DefaultCast(), &scriptedRand{floats: []float64{0.1}, ints: []int{0}}, DefaultConfig())
	assert.Equal(t, "Given that, That's quite a dramatic shift! the dramatic swing needs a control chart.",
		p.AddReaction("Given that, the dramatic swing needs a control chart."))

	p = New(persona.DefaultCast(), &scriptedRand{floats: []float64{0.9, 0.1}, ints: []int{1}}, DefaultConfig())
	assert.Equal(t, "That worries me slightly. A dramatic and concerning drop.",
		p.AddReaction("A dramatic and concerning drop."))

	p = New(persona.DefaultCast(), alwaysRand{}, DefaultConfig())
	assert.Equal(t, "Volume is flat.", p.AddReaction("Volume is flat."))
}

func TestCleanRepetition(t *testing.T) {
	p := New(persona.DefaultCast(), alwaysRand{}, DefaultConfig())
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "repeated word", in: "the the backlog", want: "the backlog"},
		{name: "word run", in: "check the the the joins", want: "check the joins"},
		{name: "case sensitive", in: "The the backlog", want: "The the backlog"},
		{name: "not a prefix", in: "the theory holds", want: "the theory holds"},
		{name: "doubled name", in: "Sam, Sam, the rate moved.", want: "Sam, the rate moved."},
		{name: "doubled opener", in: "Given that, Given that, volume rose.", want: "Given that, volume rose."},
		{name: "doubled analyst opener", in: "Data suggests, Data suggests drift.", want: "Data suggests drift."},
		{name: "untouched", in: "Volume rose 8% in March.", want: "Volume rose 8% in March."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.CleanRepetition(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, p.CleanRepetition(got))
		})
	}
}

func TestCleanRepetitionIdempotent(t *testing.T) {
	p := New(persona.DefaultCast(), alwaysRand{}, DefaultConfig())
	inputs := []string{
		"Sam, Sam, Sam, the the rate rate moved moved.",
		"Given that, Given that, Given that, Given that, volume rose.",
		"Jordan, Jordan Jordan, check it it it.",
		"a a. a a a, b b b b",
	}
	for _, in := range inputs {
		once := p.CleanRepetition(in)
		assert.Equal(t, once, p.CleanRepetition(once), in)
	}
}

func TestPolishCompletesSentence(t *testing.T) {
	rng := NewRand(7)
	p := New(persona.DefaultCast(), rng, DefaultConfig())
	history := 0
	for pair := 1; pair <= 12; pair++ {
		for _, id := range []persona.ID{persona.Advisor, persona.Analyst} {
			last := persona.Analyst
			if id == persona.Analyst {
				last = persona.Advisor
			}
			out := p.Polish("okay, the surprising dramatic drop in ASA is concerning but the the data looks valid",
				Turn{Speaker: id, Pair: pair, LastSpeaker: last, HistoryLen: history})
			assert.True(t, sentence.Terminated(out), out)
			assert.Equal(t, out, sentence.Complete(out))
			history++
		}
	}
}

func TestPolishSeededIsReproducible(t *testing.T) {
	turn := Turn{Speaker: persona.Analyst, Pair: 3, LastSpeaker: persona.Advisor, HistoryLen: 5}
	in := "Well, the dramatic swing is surprising, so check the alternative joins"

	a := New(persona.DefaultCast(), NewRand(99), DefaultConfig())
	b := New(persona.DefaultCast(), NewRand(99), DefaultConfig())
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Polish(in, turn), b.Polish(in, turn))
	}
}

func TestLowerFirst(t *testing.T) {
	names := []string{"Jordan", "Sam"}
	tests := []struct{ in, want string }{
		{"The ASA trend held in May.", "the ASA trend held in May."},
		{"ASA fell 42%.", "ASA fell 42%."},
		{"KPIs look stable.", "KPIs look stable."},
		{"I think so.", "I think so."},
		{"Jordan, that holds.", "Jordan, that holds."},
		{"already lower.", "already lower."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lowerFirst(tt.in, names), tt.in)
	}
}
