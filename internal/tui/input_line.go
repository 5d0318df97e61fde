package tui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

// nameCharLimit caps figure names typed in the rename modal.
const nameCharLimit = 256

func newNameInput() textinput.Model {
	in := textinput.New()
	in.Prompt = ""
	in.CharLimit = nameCharLimit
	return in
}

// renderInputLine draws a single-line input exactly bodyW cells wide.
func renderInputLine(bodyW int, inputView string) string {
	bodyW = max(bodyW, 4)
	// Pasted newlines would wrap the field.
	inputView = strings.NewReplacer("\n", " ", "\r", " ").Replace(inputView)
	line := lipgloss.PlaceHorizontal(
		bodyW,
		lipgloss.Left,
		" "+inputView+" ",
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceBackground(colorInputBg),
	)
	if xansi.StringWidth(line) > bodyW {
		line = xansi.Cut(line, 0, bodyW) + "\x1b[0m"
	}
	return line
}

// renderNameInput draws the rename field followed by a used/limit counter,
// together exactly bodyW cells wide.
func renderNameInput(bodyW int, in textinput.Model) string {
	bodyW = max(bodyW, 20)
	counter := fmt.Sprintf(" %d/%d", utf8.RuneCountInString(in.Value()), in.CharLimit)
	fieldW := bodyW - xansi.StringWidth(counter)
	// Scroll the field rather than overflow it.
	in.Width = max(fieldW-3, 1)
	in.SetCursor(in.Position())
	return renderInputLine(fieldW, in.View()) + styleMuted().Render(counter)
}
