package tui

import (
	"fmt"
	"strconv"
	"strings"

	"figdesk/internal/model"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type canvasField int

const (
	fieldHeight canvasField = iota
	fieldWidth
	fieldDPI
	fieldUnits
	canvasFieldCount
)

var canvasFieldLabels = [...]string{"height", "width", "dpi", "units"}

type canvasForm struct {
	inputs [fieldUnits]textinput.Model
	units  model.Units
	focus  canvasField
}

func newCanvasForm() canvasForm {
	var f canvasForm
	for i := range f.inputs {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 12
		in.Width = 12
		f.inputs[i] = in
	}
	f.units = model.UnitsInch
	return f
}

func (f *canvasForm) load(cv model.Canvas) {
	f.inputs[fieldHeight].SetValue(formatFloat(cv.Height))
	f.inputs[fieldWidth].SetValue(formatFloat(cv.Width))
	f.inputs[fieldDPI].SetValue(strconv.Itoa(cv.DPI))
	f.units = cv.Units
	if !f.units.Valid() {
		f.units = model.UnitsInch
	}
}

// canvas parses the form. Range checks are left to model.Canvas.Validate.
func (f *canvasForm) canvas() (model.Canvas, error) {
	h, err := strconv.ParseFloat(strings.TrimSpace(f.inputs[fieldHeight].Value()), 64)
	if err != nil {
		return model.Canvas{}, fmt.Errorf("%w: height must be a number", model.ErrInvalidCanvas)
	}
	w, err := strconv.ParseFloat(strings.TrimSpace(f.inputs[fieldWidth].Value()), 64)
	if err != nil {
		return model.Canvas{}, fmt.Errorf("%w: width must be a number", model.ErrInvalidCanvas)
	}
	dpi, err := strconv.Atoi(strings.TrimSpace(f.inputs[fieldDPI].Value()))
	if err != nil {
		return model.Canvas{}, fmt.Errorf("%w: dpi must be a whole number", model.ErrInvalidCanvas)
	}
	return model.Canvas{Height: h, Width: w, DPI: dpi, Units: f.units}, nil
}

func (f *canvasForm) setFocus(c canvasField) tea.Cmd {
	f.focus = (c + canvasFieldCount) % canvasFieldCount
	var cmd tea.Cmd
	for i := range f.inputs {
		if canvasField(i) == f.focus {
			cmd = f.inputs[i].Focus()
		} else {
			f.inputs[i].Blur()
		}
	}
	return cmd
}

func (f *canvasForm) blur() {
	for i := range f.inputs {
		f.inputs[i].Blur()
	}
}

func (f *canvasForm) update(msg tea.Msg) tea.Cmd {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "up":
			return f.setFocus(f.focus - 1)
		case "down":
			return f.setFocus(f.focus + 1)
		}
		if f.focus == fieldUnits {
			switch k.String() {
			case "right", "l", " ":
				f.units = f.units.Next()
			case "left", "h":
				f.units = prevUnits(f.units)
			}
			return nil
		}
	}
	if f.focus == fieldUnits {
		return nil
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f canvasForm) view(width int) string {
	label := lipgloss.NewStyle().Width(8)
	active := lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	lines := make([]string, 0, canvasFieldCount+2)
	for i := canvasField(0); i < canvasFieldCount; i++ {
		name := label.Render(canvasFieldLabels[i])
		if i == f.focus {
			name = active.Width(8).Render(canvasFieldLabels[i])
		}
		var val string
		if i == fieldUnits {
			var opts []string
			for _, u := range model.AllUnits {
				s := string(u)
				if u == f.units {
					s = lipgloss.NewStyle().Foreground(colorAccentFg).Background(colorAccent).Render(" " + s + " ")
				} else {
					s = " " + s + " "
				}
				opts = append(opts, s)
			}
			val = strings.Join(opts, " ")
		} else {
			val = renderInputLine(min(width-10, 16), f.inputs[i].View())
		}
		lines = append(lines, name+" "+val)
	}
	lines = append(lines, "", styleMuted().Render("up/down: field   left/right: units   enter: apply"))
	return strings.Join(lines, "\n")
}

func prevUnits(u model.Units) model.Units {
	for i, x := range model.AllUnits {
		if x == u {
			return model.AllUnits[(i+len(model.AllUnits)-1)%len(model.AllUnits)]
		}
	}
	return model.AllUnits[0]
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
