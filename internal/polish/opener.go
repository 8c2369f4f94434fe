package polish

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/apresai/panelcast/internal/persona"
)

// VaryOpening strips leading forbidden filler and may replace the opening
// with a phrase from the persona's opener pool. The same opener is never
// chosen twice in a row for a persona while the pool offers another.
func (p *Polisher) VaryOpening(text string, id persona.ID) string {
	per := p.cast.Get(id)
	text = strings.TrimSpace(text)

	rest, stripped := stripForbidden(text, per.Forbidden)
	for more := stripped; more; {
		rest, more = stripForbidden(rest, per.Forbidden)
	}
	first := strings.ToLower(strings.Trim(firstWord(rest), ",."))

	replace := first == "" || isForbidden(first, per.Forbidden) || p.rng.Float64() < p.cfg.OpenerReplace
	if !replace || len(per.Openers) == 0 {
		if stripped {
			return upperFirst(rest)
		}
		return rest
	}

	opener := p.nextOpener(id, per.Openers)
	if rest == "" {
		return opener
	}
	return opener + ", " + lowerFirst(rest, p.names())
}

func (p *Polisher) nextOpener(id persona.ID, pool []string) string {
	opener := p.pick(pool)
	if last := p.memory[id]; opener == last && len(pool) > 1 {
		others := make([]string, 0, len(pool)-1)
		for _, o := range pool {
			if o != last {
				others = append(others, o)
			}
		}
		opener = p.pick(others)
	}
	p.memory[id] = opener
	return opener
}

func (p *Polisher) names() []string {
	return []string{p.cast.Host.Name, p.cast.Advisor.Name, p.cast.Analyst.Name}
}

// stripForbidden removes one leading forbidden phrase, longest match first.
// A match must end at a non-letter so "so" does not strip "solid".
func stripForbidden(text string, forbidden []string) (string, bool) {
	sorted := append([]string(nil), forbidden...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	for _, f := range sorted {
		if f == "" || len(text) < len(f) || !strings.EqualFold(text[:len(f)], f) {
			continue
		}
		if next, _ := utf8.DecodeRuneInString(text[len(f):]); len(text) > len(f) && (unicode.IsLetter(next) || next == '\'') {
			continue
		}
		return strings.TrimLeft(text[len(f):], " ,.-–—"), true
	}
	return text, false
}

func isForbidden(word string, forbidden []string) bool {
	for _, f := range forbidden {
		if strings.EqualFold(word, f) {
			return true
		}
	}
	return false
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || !unicode.IsLower(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// lowerFirst lowercases the first letter unless the first word is an
// acronym, the pronoun I, or one of keep.
func lowerFirst(s string, keep []string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return s
	}
	word := strings.TrimRight(firstWord(s), ",.;:!?")
	if word == "I" || strings.HasPrefix(word, "I'") || strings.HasPrefix(word, "I’") {
		return s
	}
	word = strings.TrimSuffix(strings.TrimSuffix(word, "'s"), "’s")
	for _, k := range keep {
		if k != "" && word == k {
			return s
		}
	}
	if next, _ := utf8.DecodeRuneInString(s[size:]); unicode.IsUpper(next) || unicode.IsDigit(next) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
