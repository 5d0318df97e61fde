package tui

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"figdesk/internal/session"

	tea "github.com/charmbracelet/bubbletea"
)

type externalEditorDoneMsg struct {
	err error
}

func externalEditorName() string {
	if v := strings.TrimSpace(os.Getenv("VISUAL")); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv("EDITOR")); v != "" {
		return v
	}
	return "vi"
}

// sourceExt picks a temp file extension so editors pick the right syntax.
func sourceExt(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "r":
		return ".R"
	case "python":
		return ".py"
	default:
		return ".txt"
	}
}

func (m *appModel) openExternalEditorForCode() (tea.Cmd, error) {
	args := splitShellWords(externalEditorName())
	if len(args) == 0 {
		args = []string{"vi"}
	}

	f, err := os.CreateTemp("", "figdesk-code-*"+sourceExt(m.code.mode))
	if err != nil {
		return nil, err
	}
	path := f.Name()

	if _, err := f.WriteString(m.code.Value()); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	_ = f.Close()

	m.externalEditorPath = path
	m.externalEditorBefore = m.code.Value()

	cmd := exec.Command(args[0], append(args[1:], path)...)
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return externalEditorDoneMsg{err: err}
	}), nil
}

func (m *appModel) applyExternalEditorResult(msg externalEditorDoneMsg) {
	path := m.externalEditorPath
	before := m.externalEditorBefore

	m.externalEditorPath = ""
	m.externalEditorBefore = ""
	if strings.TrimSpace(path) == "" {
		return
	}
	defer func() { _ = os.Remove(path) }()

	if msg.err != nil {
		m.scr.notice = "editor failed: " + msg.err.Error()
		return
	}

	b, err := os.ReadFile(path)
	if err != nil {
		m.scr.notice = "editor read failed: " + err.Error()
		return
	}

	after := string(b)
	// A closed session drops the edit like any other unsaved change.
	if !m.scr.overlay {
		return
	}
	m.code.SetValue(after, session.CursorEnd)

	if strings.TrimSpace(after) == strings.TrimSpace(before) {
		m.scr.notice = fmt.Sprintf("no changes from %s", externalEditorName())
		return
	}
	m.scr.notice = fmt.Sprintf("updated from %s (ctrl+s to submit)", externalEditorName())
}
