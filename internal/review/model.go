// Package review is the terminal checklist for working through the review
// schedule one date at a time.
package review

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kalambet/cramplan/internal/schedule"
)

// ToggleFunc flips one item and returns the persisted state.
// Implemented by session.Manager.Toggle.
type ToggleFunc func(date, id string) (schedule.State, error)

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Toggle: key.NewBinding(key.WithKeys(" ", "x", "enter"), key.WithHelp("space", "toggle")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:   key.NewBinding(key.WithKeys("ctrl+c", "q", "esc"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Toggle, k.Help, k.Quit},
	}
}

// row addresses one item copy in the schedule.
type row struct {
	date  string
	index int
}

// Model is the Bubble Tea model for the checklist.
type Model struct {
	state  schedule.State
	today  string
	rows   []row
	cursor int
	toggle ToggleFunc

	keys keyMap
	help help.Model
	err  error
}

// New builds a checklist over st. today (YYYY-MM-DD) is highlighted and the
// cursor starts on its first item when present.
func New(st schedule.State, today string, toggle ToggleFunc) Model {
	m := Model{
		today:  today,
		toggle: toggle,
		keys:   defaultKeys(),
		help:   help.New(),
	}
	m.setState(st)
	for i, r := range m.rows {
		if r.date >= today {
			m.cursor = i
			break
		}
	}
	return m
}

// State returns the latest state seen by the checklist.
func (m Model) State() schedule.State { return m.state }

// Err returns the last toggle failure, if any.
func (m Model) Err() error { return m.err }

func (m *Model) setState(st schedule.State) {
	m.state = st
	m.rows = nil
	for _, d := range st.Dates() {
		for i := range st.Schedule[d] {
			m.rows = append(m.rows, row{date: d, index: i})
		}
	}
	if m.cursor >= len(m.rows) {
		m.cursor = max(len(m.rows)-1, 0)
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Toggle):
			if len(m.rows) == 0 {
				break
			}
			r := m.rows[m.cursor]
			id := m.state.Schedule[r.date][r.index].ID
			st, err := m.toggle(r.date, id)
			if err != nil {
				m.err = err
				break
			}
			m.err = nil
			m.setState(st)
		}
	}
	return m, nil
}

func (m Model) View() string {
	var sb strings.Builder

	done, total := m.state.Progress()
	fmt.Fprintf(&sb, "%s  %s  %s\n\n",
		titleStyle.Render("Review checklist"),
		mutedStyle.Render("test "+m.state.TestDate),
		successStyle.Render(fmt.Sprintf("%s %d/%d", boxChecked, done, total)),
	)

	if len(m.rows) == 0 {
		sb.WriteString(mutedStyle.Render("Nothing scheduled. Run `cramplan cards generate` first."))
		sb.WriteString("\n\n")
	}

	lastDate := ""
	for i, r := range m.rows {
		if r.date != lastDate {
			if lastDate != "" {
				sb.WriteString("\n")
			}
			header := dateStyle.Render(r.date)
			if r.date == m.today {
				header = todayStyle.Render(r.date + "  today")
			}
			sb.WriteString(header + "\n")
			lastDate = r.date
		}

		it := m.state.Schedule[r.date][r.index]
		box, text := mutedStyle.Render(boxUnchecked), it.Prompt
		if it.Done {
			box, text = successStyle.Render(boxChecked), doneStyle.Render(it.Prompt)
		}
		prefix := "  "
		if i == m.cursor {
			prefix = selectedStyle.Render("> ")
		}
		fmt.Fprintf(&sb, "%s%s %s\n", prefix, box, text)
	}

	if m.err != nil {
		sb.WriteString("\n" + errorStyle.Render("✖ "+m.err.Error()) + "\n")
	}
	sb.WriteString("\n" + m.help.View(m.keys))
	return sb.String()
}

// Run starts the checklist on the alternate screen and blocks until quit.
func Run(st schedule.State, today string, toggle ToggleFunc) (schedule.State, error) {
	p := tea.NewProgram(New(st, today, toggle), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return st, err
	}
	if fm, ok := final.(Model); ok {
		return fm.State(), nil
	}
	return st, nil
}
