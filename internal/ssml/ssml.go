// Package ssml renders persona lines as speech markup with pauses, number
// emphasis, and jittered prosody.
package ssml

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/apresai/panelcast/internal/persona"
	"github.com/apresai/panelcast/internal/sentence"
)

// Pause lengths inserted into the markup.
const (
	CommaPause     = "220ms"
	SemicolonPause = "260ms"
	EndPause       = "320ms"
)

// Jitter spreads applied around a persona's base prosody.
const (
	PitchJitter = 3
	RateJitter  = 2
)

// Rand is the random source for prosody jitter.
type Rand interface {
	IntN(n int) int
}

// Markup is a rendered speech document plus the values that shaped it.
type Markup struct {
	SSML  string
	Voice string
	Style string
	Rate  int // percentage points relative to the voice default
	Pitch int
	Text  string // the line before rendering
}

// RateString formats the rate as a signed percentage.
func (m Markup) RateString() string { return percent(m.Rate) }

// PitchString formats the pitch as a signed percentage.
func (m Markup) PitchString() string { return percent(m.Pitch) }

// Renderer converts text to markup. It is not safe for concurrent use when
// the underlying Rand is not.
type Renderer struct {
	rng Rand
}

// NewRenderer creates a Renderer drawing jitter from rng.
func NewRenderer(rng Rand) *Renderer {
	return &Renderer{rng: rng}
}

var (
	// comma-grouped numbers first so "7,406" is emphasized whole
	tokenRe = regexp.MustCompile(`(?i)-?\d+(?:\.\d+)?%|\b\d{1,3}(?:,\d{3})+(?:\.\d+)?\b|\b\d{3,}(?:\.\d+)?\b|\b(?:however|but)\b,?\s*|[,;]\s+`)

	contrastRe = regexp.MustCompile(`(?i)\b(?:however|but)\b`)
	tagRe      = regexp.MustCompile(`<[^>]+>`)
	spacePunct = regexp.MustCompile(`\s+([.,;:!?])`)
	expressRe  = regexp.MustCompile(`</?mstts:express-as[^>]*>`)
	mstsNSRe   = regexp.MustCompile(`\s+xmlns:mstts="[^"]*"`)

	surpriseWords = []string{"surprising", "shocking", "unexpected", "dramatic"}

	escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

// Render builds the markup for text spoken by p.
func (r *Renderer) Render(text string, p persona.Persona) Markup {
	text = strings.TrimSpace(text)
	pitch, rate := r.inflect(text, p.Plan)
	inner := strings.TrimRight(annotate(text), " ") + breakTag(EndPause)

	return Markup{
		SSML:  document(p.Plan.Voice, p.Plan.Style, rate, pitch, inner),
		Voice: p.Plan.Voice,
		Style: p.Plan.Style,
		Rate:  rate,
		Pitch: pitch,
		Text:  text,
	}
}

// annotate escapes text and adds emphasis and pause tags.
func annotate(text string) string {
	var b strings.Builder
	last := 0
	for _, loc := range tokenRe.FindAllStringIndex(text, -1) {
		b.WriteString(escaper.Replace(text[last:loc[0]]))
		b.WriteString(annotateToken(text[loc[0]:loc[1]]))
		last = loc[1]
	}
	b.WriteString(escaper.Replace(text[last:]))
	return b.String()
}

func annotateToken(tok string) string {
	switch c := tok[0]; {
	case c == ',':
		return "," + breakTag(CommaPause) + " "
	case c == ';':
		return ";" + breakTag(SemicolonPause) + " "
	case c == '-' || (c >= '0' && c <= '9'):
		return `<emphasis level="moderate">` + tok + `</emphasis>`
	default:
		word := strings.TrimRight(tok, ", \t\r\n")
		return word + "," + breakTag(CommaPause) + " "
	}
}

// inflect jitters the base prosody and applies at most one adjustment.
func (r *Renderer) inflect(text string, plan persona.VoicePlan) (pitch, rate int) {
	pitch = plan.BasePitch + r.rng.IntN(2*PitchJitter+1) - PitchJitter
	rate = plan.BaseRate + r.rng.IntN(2*RateJitter+1) - RateJitter

	lower := strings.ToLower(text)
	switch {
	case strings.HasSuffix(text, "?"):
		pitch += 4
	case contrastRe.MatchString(text):
		pitch -= 2
	case containsAny(lower, surpriseWords):
		pitch += 3
	}
	return pitch, rate
}

func document(voice, style string, rate, pitch int, inner string) string {
	prosody := fmt.Sprintf(`<prosody rate="%s" pitch="%s">%s</prosody>`, percent(rate), percent(pitch), inner)
	if style == "" {
		return `<speak version="1.0" xml:lang="en-US" xmlns="http://www.w3.org/2001/10/synthesis">` +
			`<voice name="` + escaper.Replace(voice) + `">` + prosody + `</voice></speak>`
	}
	return `<speak version="1.0" xml:lang="en-US" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="http://www.w3.org/2001/mstts">` +
		`<voice name="` + escaper.Replace(voice) + `">` +
		`<mstts:express-as style="` + escaper.Replace(style) + `">` + prosody + `</mstts:express-as>` +
		`</voice></speak>`
}

// Plain strips every tag from markup and returns the spoken text.
func Plain(markup string) string {
	text := html.UnescapeString(tagRe.ReplaceAllString(markup, " "))
	return sentence.CollapseSpace(spacePunct.ReplaceAllString(text, "$1"))
}

// WithoutExpressAs removes vendor style extensions for engines that only
// accept standard SSML.
func WithoutExpressAs(markup string) string {
	return mstsNSRe.ReplaceAllString(expressRe.ReplaceAllString(markup, ""), "")
}

func breakTag(d string) string {
	return `<break time="` + d + `"/>`
}

func percent(v int) string {
	return fmt.Sprintf("%+d%%", v)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
