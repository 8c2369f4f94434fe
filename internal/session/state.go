// Package session runs the turn-taking state machine that produces one
// episode: fixed introductions, a generated topic introduction, a bounded
// advisor/analyst exchange, and the fixed closing.
package session

import "github.com/apresai/panelcast/internal/persona"

// Turn budget bounds for the round-robin exchange.
const (
	MinTurns     = 1
	MaxTurns     = 12
	DefaultTurns = 6
)

// State is one step of a session.
type State int

const (
	HostIntro State = iota
	AdvisorIntro
	AnalystIntro
	HostTopicIntro
	AdvisorTurn
	AnalystTurn
	HostOutro
	Done
)

var stateNames = [...]string{
	HostIntro:      "host_intro",
	AdvisorIntro:   "advisor_intro",
	AnalystIntro:   "analyst_intro",
	HostTopicIntro: "host_topic_intro",
	AdvisorTurn:    "advisor_turn",
	AnalystTurn:    "analyst_turn",
	HostOutro:      "host_outro",
	Done:           "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Speaker is the persona who talks in s.
func (s State) Speaker() persona.ID {
	switch s {
	case AdvisorIntro, AdvisorTurn:
		return persona.Advisor
	case AnalystIntro, AnalystTurn:
		return persona.Analyst
	default:
		return persona.Host
	}
}

// Scripted reports whether s speaks a fixed line without a model call.
func (s State) Scripted() bool {
	switch s {
	case HostIntro, AdvisorIntro, AnalystIntro, HostOutro:
		return true
	}
	return false
}

// RoundRobin reports whether s is part of the advisor/analyst exchange.
func (s State) RoundRobin() bool {
	return s == AdvisorTurn || s == AnalystTurn
}

// Next returns the state after s. completed is the number of finished
// advisor/analyst pairs, counting a pair finished once its analyst turn is done.
func Next(s State, completed, pairs int) State {
	switch s {
	case HostIntro:
		return AdvisorIntro
	case AdvisorIntro:
		return AnalystIntro
	case AnalystIntro:
		return HostTopicIntro
	case HostTopicIntro:
		return AdvisorTurn
	case AdvisorTurn:
		return AnalystTurn
	case AnalystTurn:
		if completed < pairs {
			return AdvisorTurn
		}
		return HostOutro
	default:
		return Done
	}
}

// Plan lists every state a session with the given pair budget passes
// through, in order, excluding Done.
func Plan(pairs int) []State {
	pairs = ClampTurns(pairs)
	states := make([]State, 0, TurnCount(pairs))
	completed := 0
	for s := HostIntro; s != Done; s = Next(s, completed, pairs) {
		states = append(states, s)
		if s == AnalystTurn {
			completed++
		}
	}
	return states
}

// TurnCount is the number of turns in a session with the given pair budget.
func TurnCount(pairs int) int {
	return 5 + 2*ClampTurns(pairs)
}

// ClampTurns bounds the pair budget to MinTurns..MaxTurns. Zero selects
// DefaultTurns.
func ClampTurns(n int) int {
	switch {
	case n == 0:
		return DefaultTurns
	case n < MinTurns:
		return MinTurns
	case n > MaxTurns:
		return MaxTurns
	}
	return n
}
