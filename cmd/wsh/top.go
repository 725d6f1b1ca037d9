// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const topRefreshInterval = 2 * time.Second

var (
	topHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	topDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	topSelectStyle = lipgloss.NewStyle().Background(lipgloss.Color("6")).Foreground(lipgloss.Color("0"))
	topErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// topKeyMap defines the key bindings for the dashboard. Grounded on
// lib/ticketui/keys.go's KeyMap: named bindings built with
// key.NewBinding/key.WithKeys/key.WithHelp rather than a raw string
// switch on msg.String(), so a binding's help text and its matching
// logic can never drift apart.
type topKeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Refresh   key.Binding
	Filter    key.Binding
	FilterOff key.Binding
	Quit      key.Binding
}

var defaultTopKeyMap = topKeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	FilterOff: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "clear filter"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// helpLine renders the static key-binding help row shown at the
// bottom of the dashboard when not in filter-entry mode.
func (k topKeyMap) helpLine() string {
	bindings := []key.Binding{k.Up, k.Down, k.Filter, k.Refresh, k.Quit}
	parts := make([]string, len(bindings))
	for i, b := range bindings {
		h := b.Help()
		parts[i] = h.Key + " " + h.Desc
	}
	return strings.Join(parts, "  ")
}

type topFetchMsg struct {
	sessions []sessionListEntry
	err      error
}

type topTickMsg time.Time

// topModel is a bubbletea Elm-architecture model: it holds all state,
// Update is a pure state transition, View renders to a string. The
// daemon fetch happens in a tea.Cmd, kept off the update path.
type topModel struct {
	daemon string
	token  string

	sessions []sessionListEntry
	err      error

	cursor     int
	filterText string
	filtering  bool
}

func runTop(args []string) error {
	fs := flag.NewFlagSet("top", flag.ExitOnError)
	daemon := fs.String("daemon", daemonURL(), "daemon base URL")
	token := fs.String("token", daemonToken(), "bearer token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m := topModel{daemon: *daemon, token: *token}
	program := tea.NewProgram(m, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func (m topModel) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), tickCmd())
}

func (m topModel) fetchCmd() tea.Cmd {
	daemon, token := m.daemon, m.token
	return func() tea.Msg {
		var entries []sessionListEntry
		err := apiRequest(context.Background(), "GET", daemon, token, "/sessions", nil, &entries)
		return topFetchMsg{sessions: entries, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(topRefreshInterval, func(t time.Time) tea.Msg {
		return topTickMsg(t)
	})
}

func (m topModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filtering {
			return m.handleFilterKey(msg)
		}
		return m.handleKey(msg)
	case topFetchMsg:
		m.sessions = msg.sessions
		m.err = msg.err
		maxIdx := max(0, len(m.visibleSessions())-1)
		m.cursor = min(m.cursor, maxIdx)
		return m, nil
	case topTickMsg:
		return m, tea.Batch(m.fetchCmd(), tickCmd())
	}
	return m, nil
}

func (m topModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, defaultTopKeyMap.Quit):
		return m, tea.Quit
	case key.Matches(msg, defaultTopKeyMap.Refresh):
		return m, m.fetchCmd()
	case key.Matches(msg, defaultTopKeyMap.Filter):
		m.filtering = true
		m.filterText = ""
	case key.Matches(msg, defaultTopKeyMap.Down):
		m.cursor = min(m.cursor+1, max(0, len(m.visibleSessions())-1))
	case key.Matches(msg, defaultTopKeyMap.Up):
		m.cursor = max(m.cursor-1, 0)
	}
	return m, nil
}

func (m topModel) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, defaultTopKeyMap.FilterOff):
		m.filterText = ""
		m.filtering = false
	case msg.String() == "enter":
		m.filtering = false
	case msg.String() == "backspace":
		if len(m.filterText) > 0 {
			m.filterText = m.filterText[:len(m.filterText)-1]
		}
	default:
		if len(msg.String()) == 1 {
			ch := msg.String()[0]
			if ch >= 32 && ch < 127 {
				m.filterText += string(ch)
			}
		}
	}
	m.cursor = 0
	return m, nil
}

func (m topModel) visibleSessions() []sessionListEntry {
	sessions := append([]sessionListEntry(nil), m.sessions...)
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Name < sessions[j].Name })
	if m.filterText == "" {
		return sessions
	}
	needle := strings.ToLower(m.filterText)
	filtered := sessions[:0]
	for _, s := range sessions {
		if strings.Contains(strings.ToLower(s.Name), needle) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

func (m topModel) View() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n\n",
		topHeaderStyle.Render("wsh top"),
		topDimStyle.Render(m.daemon))

	if m.err != nil {
		fmt.Fprintf(&b, "%s\n\n", topErrorStyle.Render(m.err.Error()))
	}

	visible := m.visibleSessions()
	fmt.Fprintf(&b, "%-30s %6s %6s\n", "NAME", "COLS", "ROWS")
	if len(visible) == 0 {
		b.WriteString(topDimStyle.Render("  no sessions") + "\n")
	}
	for i, s := range visible {
		line := fmt.Sprintf("%-30s %6d %6d", s.Name, s.Cols, s.Rows)
		if i == m.cursor {
			line = topSelectStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	if m.filtering {
		fmt.Fprintf(&b, "filter: %s\n", m.filterText)
	} else {
		b.WriteString(topDimStyle.Render(defaultTopKeyMap.helpLine()) + "\n")
	}

	return b.String()
}
