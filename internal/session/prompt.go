package session

import (
	"fmt"
	"strings"

	"github.com/apresai/panelcast/internal/llm"
	"github.com/apresai/panelcast/internal/persona"
)

// Topic introduction parameters.
const (
	topicMaxTokens   = 120
	topicTemperature = 0.4
)

// Entry is one line of conversation history.
type Entry struct {
	Speaker persona.ID
	Name    string
	Text    string
}

// History is the append-only conversation log used to build prompts.
type History []Entry

// window renders the last n entries, or "None" when the history holds no
// more than floor entries.
func (h History) window(n, floor int) string {
	if len(h) <= floor {
		return "None"
	}
	start := max(len(h)-n, 0)
	lines := make([]string, 0, n)
	for _, e := range h[start:] {
		lines = append(lines, fmt.Sprintf("%s: %s", e.Name, e.Text))
	}
	return strings.Join(lines, "\n")
}

// lastFrom returns the most recent line spoken by id.
func (h History) lastFrom(id persona.ID) (string, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Speaker == id {
			return h[i].Text, true
		}
	}
	return "", false
}

func topicRequest(cast persona.Cast, context string) llm.Request {
	return llm.Request{
		System:      persona.TopicInstruction(cast),
		User:        "Context:\n" + context + "\n\nIntroduce today's topics for the discussion.",
		MaxTokens:   topicMaxTokens,
		Temperature: topicTemperature,
	}
}

func advisorRequest(cast persona.Cast, context, topic string, h History, maxTokens int, temperature float64) llm.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Context:\n%s\n\n", context)
	fmt.Fprintf(&b, "%s just introduced these topics: %s\n\n", cast.Host.Name, topic)
	if last, ok := h.lastFrom(persona.Analyst); ok {
		fmt.Fprintf(&b, "%s last said: %s\n\n", cast.Analyst.Name, last)
	}
	fmt.Fprintf(&b, "Previous conversation:\n%s\n\n", h.window(2, 1))
	b.WriteString("Provide your recommendation based on the data and topics introduced.")

	return llm.Request{
		System:      cast.Advisor.SystemInstruction(),
		User:        b.String(),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

func analystRequest(cast persona.Cast, context, topic, advisorLine string, h History, maxTokens int, temperature float64) llm.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Context:\n%s\n\n", context)
	fmt.Fprintf(&b, "%s introduced these topics: %s\n\n", cast.Host.Name, topic)
	fmt.Fprintf(&b, "%s just said: %s\n\n", cast.Advisor.Name, advisorLine)
	fmt.Fprintf(&b, "Previous conversation:\n%s\n\n", h.window(3, 2))
	fmt.Fprintf(&b, "Respond to %s's point focusing on data integrity aspects.", cast.Advisor.Name)

	return llm.Request{
		System:      cast.Analyst.SystemInstruction(),
		User:        b.String(),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}
