package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoftenText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "do not", in: "do not speculate", want: "please avoid speculate"},
		{name: "capitalized do not", in: "Do not guess.", want: "Please avoid guess."},
		{name: "upper do not", in: "DO NOT GUESS", want: "PLEASE AVOID GUESS"},
		{name: "don't", in: "Don't invent values", want: "Please avoid invent values"},
		{name: "ignore", in: "ignore outliers", want: "do not rely on outliers"},
		{name: "capitalized ignore", in: "Ignore the noise", want: "Do not rely on the noise"},
		{name: "ignore inside word untouched", in: "ignored rows", want: "ignored rows"},
		{name: "debate", in: "a quick debate", want: "a quick discussion"},
		{name: "Debate plural", in: "Debates help", want: "Discussions help"},
		{name: "sole factual source", in: "the Sole factual source here", want: "the Primary context here"},
		{name: "untouched", in: "compare cohorts", want: "compare cohorts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SoftenText(tt.in))
		})
	}
}

func TestSoftenClampsParameters(t *testing.T) {
	got := Soften(Request{System: "s", User: "u", MaxTokens: 90, Temperature: 0.2})
	assert.Equal(t, 80, got.MaxTokens)
	assert.InDelta(t, 0.1, got.Temperature, 1e-9)
	assert.Equal(t, "s"+neutralToneClause, got.System)
}

func TestAdjustedClampsParameters(t *testing.T) {
	got := Adjusted(Request{MaxTokens: 400, Temperature: 0.75})
	assert.Equal(t, 200, got.MaxTokens)
	assert.InDelta(t, 0.8, got.Temperature, 1e-9)

	got = Adjusted(Request{MaxTokens: 100, Temperature: 0.1})
	assert.Equal(t, 80, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
}

func TestAcceptable(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{name: "eight lowercase", in: "abcdefgh", want: true},
		{name: "too short", in: "  abc  ", want: false},
		{name: "four periods", in: "a. b. c. d. end", want: false},
		{name: "three periods", in: "a. b. c. end", want: true},
		{name: "all upper", in: "STOP THE PRESSES", want: false},
		{name: "digits only", in: "12345678", want: true},
		{name: "url", in: "read http://example.com now", want: false},
		{name: "secure url", in: "read HTTPS://example.com now", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Acceptable(tt.in))
		})
	}
}
