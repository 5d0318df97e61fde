package tui

import (
	"figdesk/internal/grid"
	"figdesk/internal/model"
	"figdesk/internal/session"
)

// screen is the session.Surface the controller drives. The app model reads
// it back when rendering.
type screen struct {
	overlay bool
	fields  session.Fields
	// fieldsChanged is set by ShowFigure and consumed by the app model to
	// reload the canvas form.
	fieldsChanged bool
	errText       string
	alerts        []string
	tiles         []grid.Tile
	notice        string
}

var _ session.Surface = (*screen)(nil)

func (s *screen) SetOverlay(visible bool) { s.overlay = visible }

func (s *screen) ShowFigure(f session.Fields) {
	s.fields = f
	s.fieldsChanged = true
}

func (s *screen) ShowError(text string) { s.errText = text }

func (s *screen) ClearError() { s.errText = "" }

func (s *screen) Alert(msg string) { s.alerts = append(s.alerts, msg) }

func (s *screen) RenderGrid(tiles []grid.Tile) { s.tiles = tiles }

func (s *screen) RemoveTile(id model.FigureID) {
	out := s.tiles[:0:0]
	for _, t := range s.tiles {
		if t.ID != id {
			out = append(out, t)
		}
	}
	s.tiles = out
}

func (s *screen) Notify(msg string) { s.notice = msg }

func (s *screen) alert() (string, bool) {
	if len(s.alerts) == 0 {
		return "", false
	}
	return s.alerts[0], true
}

func (s *screen) dismissAlert() {
	if len(s.alerts) > 0 {
		s.alerts = s.alerts[1:]
	}
}
