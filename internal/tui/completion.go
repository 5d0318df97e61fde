package tui

import (
	"strings"

	"figdesk/internal/snippets"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxCompletionRows = 8

type completionState struct {
	prefix string
	items  []snippets.Snippet
	index  int
}

func (m *appModel) openCompletion() {
	prefix, items := m.code.completions()
	if len(items) == 0 {
		m.completion = nil
		if prefix == "" {
			m.scr.notice = "no word to complete"
		} else {
			m.scr.notice = "no completions for " + prefix
		}
		return
	}
	m.completion = &completionState{prefix: prefix, items: items}
}

// handleCompletionKey reports whether the key was consumed by the popup.
// Keys it does not use close the popup and fall through to the editor.
func (m *appModel) handleCompletionKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	c := m.completion
	switch msg.String() {
	case "up", "ctrl+p":
		if c.index > 0 {
			c.index--
		}
		return nil, true
	case "down", "ctrl+n":
		if c.index < len(c.items)-1 {
			c.index++
		}
		return nil, true
	case "enter", "tab":
		m.code.insertCompletion(c.prefix, c.items[c.index])
		m.completion = nil
		return nil, true
	case "esc":
		m.completion = nil
		return nil, true
	}
	m.completion = nil
	return nil, false
}

func (c *completionState) view(width int) string {
	start := 0
	if c.index >= maxCompletionRows {
		start = c.index - maxCompletionRows + 1
	}
	end := min(start+maxCompletionRows, len(c.items))

	normal := lipgloss.NewStyle().Foreground(colorSurfaceFg).Background(colorControlBg)
	selected := lipgloss.NewStyle().Foreground(colorSelectedFg).Background(colorSelectedBg).Bold(true)
	w := min(width, 48)

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		it := c.items[i]
		row := it.Caption
		if it.Meta != "" {
			row += "  " + styleMuted().Render(it.Meta)
		}
		st := normal
		if i == c.index {
			st = selected
		}
		lines = append(lines, st.Width(w).Render(normalizePane(row, w-1, 1)))
	}
	return strings.Join(lines, "\n")
}
