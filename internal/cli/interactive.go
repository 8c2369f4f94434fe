package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/apresai/panelcast/internal/ingest"
	"github.com/apresai/panelcast/internal/session"
	"github.com/apresai/panelcast/internal/tts"
)

// wizardChoice is what the setup wizard hands back to generate.
type wizardChoice struct {
	Sources     []string
	Turns       int
	TTSProvider string
}

type wizardField int

const (
	fieldSources wizardField = iota
	fieldTurns
	fieldTTS
	fieldGenerate
)

// wizardModel is the Bubble Tea model for the setup wizard.
type wizardModel struct {
	dir        string
	files      []string
	selected   map[string]bool
	turns      int
	providers  []string
	provider   int
	cursor     wizardField
	picking    bool
	fileCursor int
	err        error
	confirmed  bool
	cancelled  bool
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	headerBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Width(16).
			Align(lipgloss.Right).
			MarginRight(2)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Italic(true)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	buttonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 3)

	buttonDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Padding(0, 3)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)
)

func newWizardModel(dir string, files []string, turns int, provider string) wizardModel {
	idx := slices.Index(tts.Providers, provider)
	if idx < 0 {
		idx = 0
	}
	return wizardModel{
		dir:       dir,
		files:     files,
		selected:  map[string]bool{},
		turns:     session.ClampTurns(turns),
		providers: tts.Providers,
		provider:  idx,
	}
}

func (m wizardModel) Init() tea.Cmd { return nil }

func (m wizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if key.String() == "ctrl+c" {
		m.cancelled = true
		return m, tea.Quit
	}
	if m.picking {
		return m.updatePicker(key)
	}

	switch key.String() {
	case "q":
		m.cancelled = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > fieldSources {
			m.cursor--
		}
	case "down", "j", "tab":
		if m.cursor < fieldGenerate {
			m.cursor++
		}
	case "left", "h":
		m.adjust(-1)
	case "right", "l":
		m.adjust(1)
	case "enter", " ":
		switch m.cursor {
		case fieldSources:
			m.picking = true
			m.err = nil
		case fieldGenerate:
			if len(m.selectedFiles()) == 0 {
				m.err = errors.New("select at least one context file")
				return m, nil
			}
			m.confirmed = true
			return m, tea.Quit
		default:
			m.adjust(1)
		}
	}
	return m, nil
}

func (m wizardModel) updatePicker(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "up", "k":
		if m.fileCursor > 0 {
			m.fileCursor--
		}
	case "down", "j":
		if m.fileCursor < len(m.files)-1 {
			m.fileCursor++
		}
	case " ":
		if len(m.files) > 0 {
			name := m.files[m.fileCursor]
			m.selected[name] = !m.selected[name]
		}
	case "a":
		all := len(m.selectedFiles()) < len(m.files)
		for _, f := range m.files {
			m.selected[f] = all
		}
	case "enter", "esc":
		m.picking = false
	}
	return m, nil
}

// adjust steps the turn count or provider on the focused row.
func (m *wizardModel) adjust(delta int) {
	switch m.cursor {
	case fieldTurns:
		m.turns = min(max(m.turns+delta, session.MinTurns), session.MaxTurns)
	case fieldTTS:
		n := len(m.providers)
		m.provider = ((m.provider+delta)%n + n) % n
	}
}

func (m wizardModel) selectedFiles() []string {
	var out []string
	for _, f := range m.files {
		if m.selected[f] {
			out = append(out, f)
		}
	}
	return out
}

func (m wizardModel) choice() wizardChoice {
	sel := m.selectedFiles()
	sources := make([]string, len(sel))
	for i, f := range sel {
		sources[i] = filepath.Join(m.dir, f)
	}
	return wizardChoice{Sources: sources, Turns: m.turns, TTSProvider: m.providers[m.provider]}
}

func (m wizardModel) View() string {
	var b strings.Builder
	b.WriteString(headerBorder.Render(titleStyle.Render("Panelcast")))
	b.WriteString("\n")

	row := func(field wizardField, label, value string) {
		cursor := "  "
		if m.cursor == field {
			cursor = cursorStyle.Render("> ")
		}
		b.WriteString(cursor + labelStyle.Render(label) + " " + value + "\n")
	}

	sel := m.selectedFiles()
	sources := dimStyle.Render("(none selected)")
	if len(sel) > 0 {
		sources = valueStyle.Render(strings.Join(sel, ", "))
	}
	row(fieldSources, "Context files", sources)
	if m.picking {
		for i, f := range m.files {
			check := " "
			if m.selected[f] {
				check = "x"
			}
			prefix := "  "
			if i == m.fileCursor {
				prefix = cursorStyle.Render("> ")
			}
			fmt.Fprintf(&b, "      %s[%s] %s\n", prefix, check, f)
		}
	}
	row(fieldTurns, "Exchanges", valueStyle.Render(fmt.Sprintf("%d", m.turns)))
	row(fieldTTS, "Voices", valueStyle.Render(m.providers[m.provider]))

	b.WriteString("\n")
	if m.cursor == fieldGenerate {
		b.WriteString("  " + buttonStyle.Render(" Generate "))
	} else {
		b.WriteString("  " + buttonDimStyle.Render(" Generate "))
	}
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.err.Error()) + "\n")
	}
	if m.picking {
		b.WriteString(helpStyle.Render("  j/k to move | space to toggle | a for all | enter to close"))
	} else {
		b.WriteString(helpStyle.Render("  j/k to navigate | h/l to change | enter to select | q to quit"))
	}
	b.WriteString("\n")
	return b.String()
}

func runWizard(dir string, turns int, provider string) (wizardChoice, error) {
	files, err := ingest.ListContextFiles(dir)
	if err != nil {
		return wizardChoice{}, fmt.Errorf("list context files: %w", err)
	}
	if len(files) == 0 {
		return wizardChoice{}, fmt.Errorf("no context files (.json, .txt, .md, .csv, .pdf) in %s", dir)
	}

	p := tea.NewProgram(newWizardModel(dir, files, turns, provider), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return wizardChoice{}, fmt.Errorf("TUI error: %w", err)
	}
	final := result.(wizardModel)
	if final.cancelled || !final.confirmed {
		return wizardChoice{}, errors.New("generation cancelled")
	}
	return final.choice(), nil
}
