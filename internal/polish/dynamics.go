package polish

import (
	"regexp"
	"strings"

	"github.com/apresai/panelcast/internal/persona"
)

func wordsRe(words ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(words, "|") + `)\b`)
}

var (
	importantRe = wordsRe("important", "crucial", "critical", "significant", "essential")
	challengeRe = wordsRe("but", "however", "although", "disagree", "challenge", "contrary")
	surpriseRe  = wordsRe("surprising", "shocking", "unexpected", "dramatic", "remarkable")
	emphasisRe  = wordsRe("surprising", "shocking", "unexpected", "dramatic", "remarkable", "concerning")
	agreementRe = wordsRe("agree", "right", "correct", "valid")
	pivotRe     = wordsRe("alternative")
)

var (
	emphatics = []string{"Surprisingly, ", "Interestingly, ", "Remarkably, ", "Unexpectedly, "}

	acknowledgments = []string{
		"I see what you're saying, ",
		"That's a good point, ",
		"I understand your perspective, ",
		"You make a valid observation, ",
	}
	interruptions = []string{
		"If I might add, ",
		"Building on that, ",
		"To expand on your point, ",
		"Another way to look at this is ",
	}
	agreements = []string{
		"I agree with that approach, ",
		"That makes sense, ",
		"You're right about that, ",
		"That's a solid recommendation, ",
	}
	disagreements = []string{
		"I have a slightly different view, ",
		"Another perspective to consider, ",
		"We might approach this differently, ",
		"Let me offer an alternative take, ",
	}
)

// AddDynamics applies at most one conversational embellishment, trying in
// order: addressing the counterpart by name, a surprise prefix, an
// acknowledgment or interruption, and an agreement or disagreement.
func (p *Polisher) AddDynamics(text string, t Turn) string {
	if out, ok := p.addressCounterpart(text, t); ok {
		return out
	}

	if p.rng.Float64() < p.cfg.Surprise && emphasisRe.MatchString(text) {
		return p.pick(emphatics) + lowerFirst(text, p.names())
	}

	roundRobin := t.Speaker != persona.Host && t.Pair >= 2
	if p.rng.Float64() < p.cfg.Interruption && roundRobin && t.LastSpeaker != "" {
		if p.rng.Float64() < p.cfg.Acknowledge {
			return p.pick(acknowledgments) + lowerFirst(text, p.names())
		}
		return p.pick(interruptions) + lowerFirst(text, p.names())
	}

	if p.rng.Float64() < p.cfg.AgreeDisagree && roundRobin {
		if p.rng.Float64() < p.cfg.AgreeRatio {
			return p.pick(agreements) + lowerFirst(text, p.names())
		}
		return p.pick(disagreements) + lowerFirst(text, p.names())
	}
	return text
}

func (p *Polisher) addressCounterpart(text string, t Turn) (string, bool) {
	other, ok := p.cast.Counterpart(t.Speaker)
	if !ok || other.Name == "" {
		return text, false
	}
	trigger := importantRe.MatchString(text) ||
		challengeRe.MatchString(text) ||
		(t.Pair > 2 && p.rng.Float64() < p.cfg.AddressAfterTurn) ||
		surpriseRe.MatchString(text) ||
		(t.HistoryLen > 2 && pivotRe.MatchString(text)) ||
		(p.rng.Float64() < p.cfg.AddressAgreement && agreementRe.MatchString(text))
	if !trigger || p.rng.Float64() >= p.cfg.AddressGate {
		return text, false
	}

	prefix := other.Name + ", "
	if p.rng.Float64() >= 0.5 {
		prefix = "You know, " + other.Name + ", "
	}
	return prefix + lowerFirst(text, p.names()), true
}

type reaction struct {
	trigger   string
	reactions []string
}

var reactionTable = []reaction{
	{"dramatic", []string{"That's quite a dramatic shift! ", "This is significant! ", "What a substantial change! "}},
	{"concerning", []string{"This is concerning. ", "That worries me slightly. ", "We should keep an eye on this. "}},
	{"positive", []string{"That's encouraging! ", "This is positive news. ", "I'm pleased to see this improvement. "}},
	{"surprising", []string{"That's surprising! ", "I didn't expect that result. ", "This is unexpected. "}},
}

// AddReaction inserts a short reaction after the first comma, or prepends
// it, for the first reaction category that both matches and wins its draw.
func (p *Polisher) AddReaction(text string) string {
	lower := strings.ToLower(text)
	for _, r := range reactionTable {
		if !strings.Contains(lower, r.trigger) || p.rng.Float64() >= p.cfg.Reaction {
			continue
		}
		clause := p.pick(r.reactions)
		if head, tail, ok := strings.Cut(text, ","); ok {
			return head + ", " + clause + strings.TrimLeft(tail, " \t")
		}
		return clause + text
	}
	return text
}
