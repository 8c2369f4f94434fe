package sentence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComplete(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "appends period", in: "the trend holds", want: "the trend holds."},
		{name: "keeps question", in: "is it seasonal?", want: "is it seasonal?"},
		{name: "keeps exclamation", in: "what a swing!", want: "what a swing!"},
		{name: "trims before checking", in: "  volume fell  ", want: "volume fell."},
		{name: "empty", in: "", want: "."},
		{name: "whitespace only", in: " \n\t", want: "."},
		{name: "trailing comma", in: "given that,", want: "given that,."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Complete(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, Terminated(got))
			assert.Equal(t, got, Complete(got), "idempotent")
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "strips emphasis", in: "**Key** point: _volume_ dropped", want: "Key point: volume dropped."},
		{name: "strips headings and quotes", in: "## Summary\n> ASA improved", want: "Summary ASA improved."},
		{name: "collapses whitespace", in: "a   b\n\nc!", want: "a b c!"},
		{name: "code ticks", in: "use `p-chart` here", want: "use p-chart here."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Normalize(got))
		})
	}
}

func TestHasContent(t *testing.T) {
	assert.False(t, HasContent(""))
	assert.False(t, HasContent(" ** __ ## "))
	assert.True(t, HasContent("**ok**"))
}
