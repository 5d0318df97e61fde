package tui

import (
	"strings"

	"figdesk/internal/session"
	"figdesk/internal/snippets"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// codeEditor adapts a textarea to session.Editor.
type codeEditor struct {
	ta         textarea.Model
	readOnly   bool
	theme      string
	mode       string
	completers []session.Completer
}

func newCodeEditor() *codeEditor {
	ta := textarea.New()
	ta.ShowLineNumbers = true
	ta.CharLimit = 0
	ta.MaxHeight = 0
	ta.Placeholder = "plot code"
	ta.Prompt = ""
	return &codeEditor{ta: ta}
}

func (e *codeEditor) SetValue(text string, cursor session.Cursor) {
	e.ta.SetValue(text)
	if cursor == session.CursorStart {
		for i := e.ta.LineCount(); i > 0 && e.ta.Line() > 0; i-- {
			e.ta.CursorUp()
		}
		e.ta.CursorStart()
	}
}

func (e *codeEditor) Value() string { return e.ta.Value() }

func (e *codeEditor) SetReadOnly(readOnly bool) { e.readOnly = readOnly }

func (e *codeEditor) SetTheme(theme string) {
	e.theme = theme
	focused, blurred := textarea.DefaultStyles()
	if strings.EqualFold(theme, "light") {
		focused.CursorLine = lipgloss.NewStyle().Background(lipgloss.Color("254"))
	}
	e.ta.FocusedStyle = focused
	e.ta.BlurredStyle = blurred
}

func (e *codeEditor) SetMode(mode string) { e.mode = mode }

func (e *codeEditor) AddCompleter(c session.Completer) {
	e.completers = append(e.completers, c)
}

func (e *codeEditor) SetSize(w, h int) {
	e.ta.SetWidth(max(w, 10))
	e.ta.SetHeight(max(h, 3))
}

func (e *codeEditor) Focus() tea.Cmd { return e.ta.Focus() }

func (e *codeEditor) Blur() { e.ta.Blur() }

func (e *codeEditor) Update(msg tea.Msg) tea.Cmd {
	if _, ok := msg.(tea.KeyMsg); ok && e.readOnly {
		return nil
	}
	var cmd tea.Cmd
	e.ta, cmd = e.ta.Update(msg)
	return cmd
}

func (e *codeEditor) View() string { return e.ta.View() }

// currentLinePrefix returns the current line up to the cursor.
func (e *codeEditor) currentLinePrefix() string {
	lines := strings.Split(e.ta.Value(), "\n")
	row := e.ta.Line()
	if row < 0 || row >= len(lines) {
		return ""
	}
	line := []rune(lines[row])
	li := e.ta.LineInfo()
	col := min(max(li.StartColumn+li.ColumnOffset, 0), len(line))
	return string(line[:col])
}

// completions gathers candidates for the word before the cursor.
func (e *codeEditor) completions() (prefix string, out []snippets.Snippet) {
	prefix = snippets.WordPrefix(e.currentLinePrefix())
	if prefix == "" {
		return "", nil
	}
	for _, c := range e.completers {
		out = append(out, c.Complete(prefix)...)
	}
	return prefix, out
}

// insertCompletion inserts s's text in place of the typed prefix.
func (e *codeEditor) insertCompletion(prefix string, s snippets.Snippet) {
	text := s.Text()
	if strings.HasPrefix(text, prefix) {
		e.ta.InsertString(text[len(prefix):])
		return
	}
	for range []rune(prefix) {
		e.ta, _ = e.ta.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	}
	e.ta.InsertString(text)
}

// dataViewer adapts a viewport to session.Editor. It is always read-only.
type dataViewer struct {
	vp    viewport.Model
	raw   string
	theme string
	mode  string
	width int
}

func newDataViewer() *dataViewer {
	return &dataViewer{vp: viewport.New(40, 10)}
}

func (d *dataViewer) SetValue(text string, cursor session.Cursor) {
	d.raw = text
	d.render()
	if cursor == session.CursorEnd {
		d.vp.GotoBottom()
		return
	}
	d.vp.GotoTop()
}

func (d *dataViewer) Value() string { return d.raw }

func (d *dataViewer) SetReadOnly(bool) {}

func (d *dataViewer) SetTheme(theme string) { d.theme = theme }

func (d *dataViewer) SetMode(mode string) { d.mode = mode }

func (d *dataViewer) AddCompleter(session.Completer) {}

func (d *dataViewer) SetSize(w, h int) {
	d.vp.Width = max(w, 10)
	d.vp.Height = max(h, 3)
	if d.width != d.vp.Width {
		d.width = d.vp.Width
		d.render()
	}
}

func (d *dataViewer) render() {
	if d.raw == "" {
		d.vp.SetContent("")
		return
	}
	d.vp.SetContent(renderDataBlock(d.raw, d.vp.Width))
}

func (d *dataViewer) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	d.vp, cmd = d.vp.Update(msg)
	return cmd
}

func (d *dataViewer) View() string { return d.vp.View() }
