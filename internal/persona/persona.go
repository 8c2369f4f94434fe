package persona

import (
	"fmt"
	"strings"
)

// ID names one of the three fixed speaking roles.
type ID string

const (
	Host    ID = "host"
	Advisor ID = "advisor"
	Analyst ID = "analyst"
)

// IDs lists every persona in speaking order of the introductions.
var IDs = []ID{Host, Advisor, Analyst}

// ParseID maps a case-insensitive role name to an ID.
func ParseID(s string) (ID, error) {
	switch ID(strings.ToLower(strings.TrimSpace(s))) {
	case Host:
		return Host, nil
	case Advisor:
		return Advisor, nil
	case Analyst:
		return Analyst, nil
	}
	return "", fmt.Errorf("unknown persona %q: choose host, advisor, or analyst", s)
}

// VoicePlan is the speech rendering profile for a persona.
type VoicePlan struct {
	Voice     string // provider voice identifier
	Style     string // speaking style for express-as markup
	BasePitch int    // percentage points
	BaseRate  int    // percentage points
}

// Persona defines a speaker's identity, fixed lines, and behavioral rules.
type Persona struct {
	ID            ID
	Name          string // short name used when personas address each other
	Label         string // transcript label
	FullName      string
	Role          string
	Background    string
	SpeakingStyle string
	Expertise     string
	Relationship  string
	Constraints   string // hard output rules for model calls

	Intro string // fixed introduction line
	Outro string // fixed closing line, host only

	Plan VoicePlan

	// Forbidden lists filler openers stripped from model output.
	Forbidden []string
	// Openers is the rotation pool used when an opening is replaced.
	Openers []string
}

// SystemInstruction builds the behavioral contract sent with every model call.
func (p Persona) SystemInstruction() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s\n\n", p.FullName, p.Role)
	if p.Background != "" {
		fmt.Fprintf(&b, "BACKGROUND: %s\n\n", p.Background)
	}
	if p.SpeakingStyle != "" {
		fmt.Fprintf(&b, "VOICE: %s\n\n", p.SpeakingStyle)
	}
	if p.Expertise != "" {
		fmt.Fprintf(&b, "EXPERTISE: %s\n\n", p.Expertise)
	}
	if p.Relationship != "" {
		fmt.Fprintf(&b, "RELATIONSHIP: %s\n\n", p.Relationship)
	}
	if len(p.Forbidden) > 0 {
		fmt.Fprintf(&b, "Never open with filler words (%s).\n", strings.Join(p.Forbidden, ", "))
	}
	if p.Constraints != "" {
		b.WriteString(p.Constraints)
	}
	return strings.TrimSpace(b.String())
}

// Cast holds the three personas for a session. It is built once and never mutated.
type Cast struct {
	Host    Persona
	Advisor Persona
	Analyst Persona
}

// Get returns the persona for id. Unknown ids return the host.
func (c Cast) Get(id ID) Persona {
	switch id {
	case Advisor:
		return c.Advisor
	case Analyst:
		return c.Analyst
	default:
		return c.Host
	}
}

// Counterpart returns the other round-robin persona for id.
func (c Cast) Counterpart(id ID) (Persona, bool) {
	switch id {
	case Advisor:
		return c.Analyst, true
	case Analyst:
		return c.Advisor, true
	}
	return Persona{}, false
}

// Voices overrides the voice identifier per persona. Empty fields keep the default.
type Voices struct {
	Host    string
	Advisor string
	Analyst string
}

// WithVoices returns a copy of the cast using the given voice identifiers.
func (c Cast) WithVoices(v Voices) Cast {
	if v.Host != "" {
		c.Host.Plan.Voice = v.Host
	}
	if v.Advisor != "" {
		c.Advisor.Plan.Voice = v.Advisor
	}
	if v.Analyst != "" {
		c.Analyst.Plan.Voice = v.Analyst
	}
	return c
}

// DefaultCast returns the built-in show lineup.
func DefaultCast() Cast {
	return Cast{
		Host:    DefaultHost,
		Advisor: DefaultAdvisor,
		Analyst: DefaultAnalyst,
	}
}
