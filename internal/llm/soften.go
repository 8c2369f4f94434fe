package llm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const neutralToneClause = " Always keep a professional, neutral tone and comply with safety policies."

// Fixed prompts for the last-resort completion.
const (
	minimalSystem = "You are a professional analyst; produce one safe, neutral sentence grounded in the provided context."
	minimalUser   = "Summarize cross-metric trends and propose one action in a single safe sentence."
)

// NeutralFallback is returned when even the last-resort completion comes back empty.
const NeutralFallback = "Let's keep the discussion grounded in what the data can support."

type softRule struct {
	re   *regexp.Regexp
	repl string
}

// Applied in order, each exactly once over the whole text.
var softRules = []softRule{
	{regexp.MustCompile(`(?i)\bsole factual source\b`), "primary context"},
	{regexp.MustCompile(`(?i)\bdo not\b`), "please avoid"},
	{regexp.MustCompile(`(?i)\bdon['’]t\b`), "please avoid"},
	{regexp.MustCompile(`(?i)\bignore\b`), "do not rely on"},
	{regexp.MustCompile(`(?i)\bdebates?\b`), "discussion"},
}

// SoftenText rewrites absolute or negative imperative phrasing into softer
// synonyms, preserving the case shape of each match.
func SoftenText(s string) string {
	for _, r := range softRules {
		repl := r.repl
		s = r.re.ReplaceAllStringFunc(s, func(m string) string {
			out := matchCase(m, repl)
			if strings.HasSuffix(strings.ToLower(m), "debates") {
				out += matchCase(m[len(m)-1:], "s")
			}
			return out
		})
	}
	return s
}

// Soften returns the softened variant of req with the policy-tier parameters.
func Soften(req Request) Request {
	return Request{
		System:      SoftenText(req.System) + neutralToneClause,
		User:        SoftenText(req.User),
		MaxTokens:   max(80, req.MaxTokens-20),
		Temperature: max(0.1, req.Temperature-0.2),
	}
}

// Adjusted returns the parameters for the retry after an unacceptable output.
func Adjusted(req Request) Request {
	req.MaxTokens = max(80, req.MaxTokens/2)
	req.Temperature = min(0.8, req.Temperature+0.1)
	return req
}

// MinimalRequest is the fixed last-resort completion.
func MinimalRequest() Request {
	return Request{System: minimalSystem, User: minimalUser, MaxTokens: 100, Temperature: 0.2}
}

func matchCase(src, repl string) string {
	if isAllUpper(src) {
		return strings.ToUpper(repl)
	}
	first, _ := utf8.DecodeRuneInString(src)
	if unicode.IsUpper(first) {
		r, size := utf8.DecodeRuneInString(repl)
		return string(unicode.ToUpper(r)) + repl[size:]
	}
	return repl
}

// isAllUpper matches Python's str.isupper: at least one cased letter and no lower-case ones.
func isAllUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

// Acceptable is the heuristic gate applied to a first-pass completion.
func Acceptable(text string) bool {
	t := strings.TrimSpace(text)
	if utf8.RuneCountInString(t) < 8 {
		return false
	}
	if strings.Count(t, ".") > 3 {
		return false
	}
	if isAllUpper(t) {
		return false
	}
	lower := strings.ToLower(t)
	return !strings.Contains(lower, "http://") && !strings.Contains(lower, "https://")
}
