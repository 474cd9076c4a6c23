// Package picker is an interactive whitelist browser: type to filter, pick a
// host with Enter.
package picker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/timvw/jump-ssh/internal/model"
)

// ErrCanceled is returned when the picker is closed without a choice.
var ErrCanceled = errors.New("no host selected")

// Picker shows the allowed hosts and returns the chosen one.
type Picker struct {
	Hosts []model.Host
	Theme Theme
	// Command, when set, is shown in the title as the command about to run.
	Command string
}

type pickerModel struct {
	hosts   []model.Host
	visible []int // indices into hosts matching the filter
	cursor  int
	filter  textinput.Model
	command string
	st      styles

	chosen   *model.Host
	canceled bool

	width  int
	height int
}

// Run shows the picker on stderr and blocks until a host is chosen or the
// picker is dismissed.
func (p *Picker) Run(ctx context.Context) (model.Host, error) {
	if len(p.Hosts) == 0 {
		return model.Host{}, errors.New("allowed_hosts is empty")
	}
	m := newModel(p.Hosts, p.Theme, p.Command)

	prog := tea.NewProgram(m, tea.WithContext(ctx), tea.WithOutput(os.Stderr), tea.WithAltScreen())
	final, err := prog.Run()
	if err != nil {
		return model.Host{}, fmt.Errorf("picker: %w", err)
	}
	fm := final.(*pickerModel)
	if fm.chosen == nil {
		return model.Host{}, ErrCanceled
	}
	return *fm.chosen, nil
}

func newModel(hosts []model.Host, theme Theme, command string) *pickerModel {
	if theme == (Theme{}) {
		theme = DarkTheme()
	}
	ti := textinput.New()
	ti.Placeholder = "filter by name, keyword or ip"
	ti.CharLimit = 128
	ti.Width = 40
	ti.Prompt = "/ "
	ti.Focus()

	m := &pickerModel{
		hosts:   hosts,
		filter:  ti,
		command: command,
		st:      newStyles(theme),
		width:   80,
		height:  20,
	}
	m.applyFilter()
	return m
}

func (m *pickerModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *pickerModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.canceled = true
		return m, tea.Quit
	case tea.KeyEnter:
		if len(m.visible) == 0 {
			return m, nil
		}
		h := m.hosts[m.visible[m.cursor]]
		m.chosen = &h
		return m, tea.Quit
	case tea.KeyUp, tea.KeyCtrlP:
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case tea.KeyDown, tea.KeyCtrlN, tea.KeyTab:
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}
		return m, nil
	}

	var cmd tea.Cmd
	before := m.filter.Value()
	m.filter, cmd = m.filter.Update(msg)
	if m.filter.Value() != before {
		m.applyFilter()
	}
	return m, cmd
}

// applyFilter rebuilds the visible rows and keeps the cursor in range.
func (m *pickerModel) applyFilter() {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	m.visible = m.visible[:0]
	for i, h := range m.hosts {
		if q == "" || matches(h, q) {
			m.visible = append(m.visible, i)
		}
	}
	if m.cursor >= len(m.visible) {
		m.cursor = max(len(m.visible)-1, 0)
	}
}

func matches(h model.Host, q string) bool {
	for _, field := range []string{h.Name, h.Match, h.IP, h.DefaultWorkdir} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func (m *pickerModel) View() string {
	var b strings.Builder

	title := "jump-ssh: pick a host"
	if m.command != "" {
		title += " to run " + m.command
	}
	b.WriteString(m.st.title.Render(title))
	b.WriteString("\n")
	b.WriteString(m.filter.View())
	b.WriteString("\n")
	b.WriteString(m.st.header.Render(strings.Repeat("─", max(m.width-2, 10))))
	b.WriteString("\n")

	if len(m.visible) == 0 {
		b.WriteString(m.st.err.Render("  no host matches the filter"))
		b.WriteString("\n")
	}

	nameWidth := 8
	for _, idx := range m.visible {
		nameWidth = max(nameWidth, lipgloss.Width(m.hosts[idx].Name))
	}

	// Rows that fit below the header and above the hints.
	rows := max(m.height-6, 3)
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	for i := start; i < len(m.visible) && i < start+rows; i++ {
		b.WriteString(m.renderRow(m.hosts[m.visible[i]], i == m.cursor, nameWidth))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.hint("enter", "select") + "  " + m.hint("↑/↓", "move") + "  " + m.hint("esc", "cancel"))
	return b.String()
}

func (m *pickerModel) renderRow(h model.Host, selected bool, nameWidth int) string {
	target := m.st.dim.Render("search " + h.Keyword())
	if h.Direct() {
		target = m.st.direct.Render("direct " + h.LoginUser + "@" + h.IP)
	}
	name := padRight(h.Name, nameWidth)
	workdir := ""
	if h.DefaultWorkdir != "" {
		workdir = "  " + m.st.dim.Render(h.DefaultWorkdir)
	}

	if selected {
		return m.st.selected.Render("> "+name) + "  " + target + workdir
	}
	return "  " + m.st.text.Render(name) + "  " + target + workdir
}

func (m *pickerModel) hint(key, desc string) string {
	return m.st.hintKey.Render(key) + " " + m.st.hintDesc.Render(desc)
}

func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}
