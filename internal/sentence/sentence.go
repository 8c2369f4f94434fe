// Package sentence normalizes model output into complete spoken sentences.
package sentence

import (
	"regexp"
	"strings"
)

var (
	markdownRe   = regexp.MustCompile("[`*_#>]+")
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Terminated reports whether s ends with terminal punctuation.
func Terminated(s string) bool {
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}

// Complete trims s and appends a period if it has no terminal punctuation.
// Complete is idempotent.
func Complete(s string) string {
	s = strings.TrimSpace(s)
	if Terminated(s) {
		return s
	}
	return s + "."
}

// Strip removes markdown emphasis markers and collapses whitespace.
func Strip(s string) string {
	s = markdownRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Normalize strips markdown and completes the sentence.
func Normalize(s string) string {
	return Complete(Strip(s))
}

// HasContent reports whether s still has text after markdown is stripped.
func HasContent(s string) bool {
	return Strip(s) != ""
}

// CollapseSpace folds runs of whitespace into single spaces.
func CollapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
