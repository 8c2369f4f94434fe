package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/panelcast/internal/config"
)

func press(t *testing.T, m wizardModel, keys ...tea.KeyMsg) wizardModel {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(wizardModel)
	}
	return m
}

var (
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyRight = tea.KeyMsg{Type: tea.KeyRight}
	keyLeft  = tea.KeyMsg{Type: tea.KeyLeft}
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keySpace = tea.KeyMsg{Type: tea.KeySpace}
)

func TestWizardSelectsFilesAndTurns(t *testing.T) {
	m := newWizardModel("data", []string{"kpis.json", "notes.md"}, 6, "polly")

	// open the picker, select the second file, close it
	m = press(t, m, keyEnter, keyDown, keySpace, keyEnter)
	assert.False(t, m.picking)
	assert.Equal(t, []string{"notes.md"}, m.selectedFiles())

	// turns: 6 -> 8, provider: polly -> elevenlabs
	m = press(t, m, keyDown, keyRight, keyRight, keyDown, keyRight)
	assert.Equal(t, 8, m.turns)

	m = press(t, m, keyDown, keyEnter)
	require.True(t, m.confirmed)
	choice := m.choice()
	assert.Equal(t, []string{filepath.Join("data", "notes.md")}, choice.Sources)
	assert.Equal(t, 8, choice.Turns)
	assert.Equal(t, "elevenlabs", choice.TTSProvider)
}

func TestWizardRequiresSelection(t *testing.T) {
	m := newWizardModel(".", []string{"kpis.json"}, 0, "unknown")
	assert.Equal(t, 6, m.turns)
	assert.Equal(t, "azure", m.choice().TTSProvider)

	m = press(t, m, keyDown, keyDown, keyDown, keyEnter)
	assert.False(t, m.confirmed)
	assert.Error(t, m.err)
	assert.Contains(t, m.View(), "select at least one context file")
}

func TestWizardClampsTurns(t *testing.T) {
	m := newWizardModel(".", []string{"a.json"}, 12, "azure")
	m = press(t, m, keyDown, keyRight)
	assert.Equal(t, 12, m.turns)

	m = newWizardModel(".", []string{"a.json"}, 1, "azure")
	m = press(t, m, keyDown, keyLeft)
	assert.Equal(t, 1, m.turns)

	m = press(t, m, keyDown, keyLeft)
	assert.Equal(t, "elevenlabs", m.choice().TTSProvider)
}

func TestWizardCancel(t *testing.T) {
	m := newWizardModel(".", []string{"a.json"}, 6, "azure")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	assert.True(t, m.cancelled)
}

func TestApplyProviderFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().StringVar(&flagModel, "model", "", "")
	cmd.Flags().StringVar(&flagTTS, "tts", "", "")
	cmd.Flags().StringVar(&flagModelID, "model-id", "", "")
	cmd.Flags().StringVar(&flagVoiceHost, "voice-host", "", "")
	cmd.Flags().StringVar(&flagVoiceAdvisor, "voice-advisor", "", "")
	cmd.Flags().StringVar(&flagVoiceAnalyst, "voice-analyst", "", "")
	require.NoError(t, cmd.ParseFlags([]string{"--tts", "polly", "--voice-host", " Joanna "}))

	cfg := config.Config{ModelProvider: "claude", TTSProvider: "azure", VoiceHost: "x"}
	applyProviderFlags(cmd, &cfg)
	assert.Equal(t, "claude", cfg.ModelProvider)
	assert.Equal(t, "polly", cfg.TTSProvider)
	assert.Equal(t, "Joanna", cfg.VoiceHost)
}

func TestVersionAndListVoices(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer rootCmd.SetOut(nil)

	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "panelcast dev\n", out.String())

	out.Reset()
	rootCmd.SetArgs([]string{"list-voices"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "AZURE")
	assert.Contains(t, out.String(), "POLLY")
	assert.Contains(t, out.String(), "(default Host)")
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "flag", firstNonEmpty(" flag "))
	assert.Equal(t, "arg", firstNonEmpty("", " arg"))
	assert.Empty(t, firstNonEmpty(""))
}
