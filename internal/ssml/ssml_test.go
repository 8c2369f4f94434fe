package ssml

import (
	"encoding/xml"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/panelcast/internal/persona"
)

// fixedRand always returns the midpoint so jitter is zero.
type fixedRand struct{}

func (fixedRand) IntN(n int) int { return n / 2 }

type prosody struct {
	Rate  string
	Pitch string
}

// inspect parses markup and returns the voice names and prosody attributes.
func inspect(t *testing.T, markup string) ([]string, []prosody) {
	t.Helper()
	dec := xml.NewDecoder(strings.NewReader(markup))
	var voices []string
	var pros []prosody
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		require.NoError(t, err, markup)
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		attr := func(name string) string {
			for _, a := range start.Attr {
				if a.Name.Local == name {
					return a.Value
				}
			}
			return ""
		}
		switch start.Name.Local {
		case "voice":
			voices = append(voices, attr("name"))
		case "prosody":
			pros = append(pros, prosody{Rate: attr("rate"), Pitch: attr("pitch")})
		}
	}
	return voices, pros
}

func parsePercent(t *testing.T, s string) int {
	t.Helper()
	require.True(t, strings.HasSuffix(s, "%"), s)
	v, err := strconv.Atoi(strings.TrimSuffix(s, "%"))
	require.NoError(t, err, s)
	return v
}

func TestRenderAnnotations(t *testing.T) {
	r := NewRenderer(fixedRand{})
	m := r.Render("ASA fell from 7,406 to 697 seconds, a 90.6% drop; however staffing held.", persona.DefaultAnalyst)

	assert.Contains(t, m.SSML, `<emphasis level="moderate">7,406</emphasis>`)
	assert.Contains(t, m.SSML, `<emphasis level="moderate">697</emphasis>`)
	assert.Contains(t, m.SSML, `<emphasis level="moderate">90.6%</emphasis>`)
	assert.Contains(t, m.SSML, `seconds,<break time="220ms"/> a`)
	assert.Contains(t, m.SSML, `drop;<break time="260ms"/> however,<break time="220ms"/> staffing`)
	assert.Contains(t, m.SSML, `held.<break time="320ms"/></prosody>`)
	assert.Contains(t, m.SSML, `<mstts:express-as style="serious">`)
}

func TestRenderContrastWordKeepsSingleComma(t *testing.T) {
	m := NewRenderer(fixedRand{}).Render("But, the sample is thin.", persona.DefaultAdvisor)
	assert.Contains(t, m.SSML, `But,<break time="220ms"/> the sample`)
	assert.NotContains(t, m.SSML, `But,<break time="220ms"/> ,`)
}

func TestRenderEscapesText(t *testing.T) {
	m := NewRenderer(fixedRand{}).Render(`R&D said "x < y" & more`, persona.DefaultHost)
	voices, _ := inspect(t, m.SSML)
	assert.Len(t, voices, 1)
	assert.Contains(t, m.SSML, "R&amp;D")
	assert.Equal(t, `R&D said "x < y" & more`, Plain(m.SSML))
}

func TestRenderInflection(t *testing.T) {
	plan := persona.DefaultAdvisor.Plan
	tests := []struct {
		name  string
		text  string
		pitch int
	}{
		{name: "question", text: "Is the drop dramatic, however?", pitch: plan.BasePitch + 4},
		{name: "contrast", text: "The drop is dramatic, but expected.", pitch: plan.BasePitch - 2},
		{name: "surprise", text: "The drop is dramatic.", pitch: plan.BasePitch + 3},
		{name: "surprise substring", text: "An unexpectedly flat month.", pitch: plan.BasePitch + 3},
		{name: "neutral", text: "Volume is flat.", pitch: plan.BasePitch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewRenderer(fixedRand{}).Render(tt.text, persona.DefaultAdvisor)
			assert.Equal(t, tt.pitch, m.Pitch)
			assert.Equal(t, plan.BaseRate, m.Rate)
			_, pros := inspect(t, m.SSML)
			require.Len(t, pros, 1)
			assert.Equal(t, m.PitchString(), pros[0].Pitch)
			assert.Equal(t, m.RateString(), pros[0].Rate)
		})
	}
}

func TestRenderWellFormedWithinBounds(t *testing.T) {
	texts := []string{
		"Volume is flat.",
		"Is this a dramatic shift?",
		"However, the 12-month average is 375.4, and ASA dropped 84.7%.",
		"Claims fell 1,200; but the denominator changed & nobody noticed <again>.",
		"",
	}
	rng := rand.New(rand.NewPCG(1, 2))
	r := NewRenderer(rng)
	for _, p := range []persona.Persona{persona.DefaultHost, persona.DefaultAdvisor, persona.DefaultAnalyst} {
		for i := 0; i < 50; i++ {
			text := texts[i%len(texts)]
			m := r.Render(text, p)

			voices, pros := inspect(t, m.SSML)
			require.Equal(t, []string{p.Plan.Voice}, voices)
			require.Len(t, pros, 1)

			pitch := parsePercent(t, pros[0].Pitch)
			rate := parsePercent(t, pros[0].Rate)
			assert.GreaterOrEqual(t, pitch, p.Plan.BasePitch-PitchJitter-2)
			assert.LessOrEqual(t, pitch, p.Plan.BasePitch+PitchJitter+4)
			assert.GreaterOrEqual(t, rate, p.Plan.BaseRate-RateJitter)
			assert.LessOrEqual(t, rate, p.Plan.BaseRate+RateJitter)
		}
	}
}

func TestRenderWithoutStyle(t *testing.T) {
	p := persona.DefaultHost
	p.Plan.Style = ""
	m := NewRenderer(fixedRand{}).Render("Welcome back.", p)
	assert.NotContains(t, m.SSML, "mstts")
	voices, pros := inspect(t, m.SSML)
	assert.Len(t, voices, 1)
	assert.Len(t, pros, 1)
}

func TestPlain(t *testing.T) {
	m := NewRenderer(fixedRand{}).Render("Volume rose 1,200 units, however churn held at 4%.", persona.DefaultAdvisor)
	assert.Equal(t, "Volume rose 1,200 units, however, churn held at 4%.", Plain(m.SSML))
}

func TestWithoutExpressAs(t *testing.T) {
	m := NewRenderer(fixedRand{}).Render("Volume is flat.", persona.DefaultAnalyst)
	out := WithoutExpressAs(m.SSML)
	assert.NotContains(t, out, "mstts")
	voices, pros := inspect(t, out)
	assert.Len(t, voices, 1)
	assert.Len(t, pros, 1)
}
