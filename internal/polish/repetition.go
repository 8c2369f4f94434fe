package polish

import (
	"regexp"
	"strings"

	"github.com/apresai/panelcast/internal/persona"
)

var wordRe = regexp.MustCompile(`\w+`)

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

// cleaner holds the per-cast repetition patterns.
type cleaner struct {
	rewrites []rewrite
}

func newCleaner(cast persona.Cast) *cleaner {
	c := &cleaner{}
	for _, id := range persona.IDs {
		name := cast.Get(id).Name
		if name == "" {
			continue
		}
		q := regexp.QuoteMeta(name)
		c.rewrites = append(c.rewrites, rewrite{
			re:   regexp.MustCompile(`\b` + q + `,\s+` + q + `,?\s+`),
			repl: name + ", ",
		})
	}

	seen := make(map[string]bool)
	for _, id := range persona.IDs {
		for _, o := range cast.Get(id).Openers {
			if o == "" || seen[o] {
				continue
			}
			seen[o] = true
			q := regexp.QuoteMeta(o)
			c.rewrites = append(c.rewrites, rewrite{
				re:   regexp.MustCompile(`\b` + q + `,\s+` + q),
				repl: o,
			})
		}
	}
	return c
}

// CleanRepetition collapses a doubled persona name, immediately repeated
// words, and doubled opener phrases. It is idempotent.
func (p *Polisher) CleanRepetition(text string) string {
	return p.cleaner.clean(text)
}

func (c *cleaner) clean(text string) string {
	for {
		out := text
		for _, rw := range c.rewrites {
			out = rw.re.ReplaceAllLiteralString(out, rw.repl)
		}
		out = collapseRepeatedWords(out)
		if out == text {
			return out
		}
		text = out
	}
}

// collapseRepeatedWords drops a word that repeats the previous word with
// only whitespace between them. Comparison is case-sensitive.
func collapseRepeatedWords(text string) string {
	locs := wordRe.FindAllStringIndex(text, -1)
	if len(locs) < 2 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for i := 1; i < len(locs); i++ {
		a, c := locs[i-1], locs[i]
		gap := text[a[1]:c[0]]
		if gap == "" || strings.TrimSpace(gap) != "" || text[a[0]:a[1]] != text[c[0]:c[1]] {
			continue
		}
		b.WriteString(text[last:a[1]])
		last = c[1]
	}
	b.WriteString(text[last:])
	return b.String()
}
