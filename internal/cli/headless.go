package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"figdesk/internal/figclient"
	"figdesk/internal/grid"
	"figdesk/internal/model"
	"figdesk/internal/session"
)

// headlessSurface prints what the TUI would show in banners and alerts.
type headlessSurface struct {
	mu      sync.Mutex
	w       io.Writer
	fields  session.Fields
	errText string
	alerts  []string
	notices []string
}

func newHeadlessSurface(w io.Writer) *headlessSurface {
	return &headlessSurface{w: w}
}

func (s *headlessSurface) SetOverlay(bool) {}

func (s *headlessSurface) ShowFigure(f session.Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = f
}

func (s *headlessSurface) ShowError(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errText = text
	fmt.Fprintf(s.w, "server rejected the update:\n%s\n", strings.TrimRight(text, "\n"))
}

func (s *headlessSurface) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errText = ""
}

func (s *headlessSurface) Alert(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, msg)
	fmt.Fprintln(s.w, msg)
}

func (s *headlessSurface) RenderGrid([]grid.Tile) {}

func (s *headlessSurface) RemoveTile(model.FigureID) {}

func (s *headlessSurface) Notify(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, msg)
	fmt.Fprintln(s.w, msg)
}

// textBuffer is a plain session.Editor for non-interactive commands.
type textBuffer struct {
	text     string
	readOnly bool
	theme    string
	mode     string
}

func (b *textBuffer) SetValue(text string, _ session.Cursor) { b.text = text }
func (b *textBuffer) Value() string                          { return b.text }
func (b *textBuffer) SetReadOnly(v bool)                     { b.readOnly = v }
func (b *textBuffer) SetTheme(theme string)                  { b.theme = theme }
func (b *textBuffer) SetMode(mode string)                    { b.mode = mode }
func (b *textBuffer) AddCompleter(session.Completer)         {}

type headless struct {
	client  *figclient.Client
	ctl     *session.Controller
	surface *headlessSurface
	code    *textBuffer
	data    *textBuffer
}

func (h *headless) view(f model.Figure, withCode bool) figureView {
	return newFigureView(f, h.client.ImageURL(f), withCode)
}

// current is the open figure as the store now has it.
func (h *headless) current() (model.Figure, error) {
	id, ok := h.ctl.Current()
	if !ok {
		return model.Figure{}, session.ErrNotOpen
	}
	f, ok := h.ctl.Store().FindByID(id)
	if !ok {
		return model.Figure{}, errNotFound("figure", id.String())
	}
	return f, nil
}

// refresh loads the figure list; commands always start from server state.
func (h *headless) refresh(ctx context.Context) error {
	return h.ctl.Do(ctx, h.ctl.BeginRefresh())
}

// open refreshes and starts a session on id.
func (h *headless) open(ctx context.Context, id string) error {
	if err := h.refresh(ctx); err != nil {
		return err
	}
	fid := model.FigureID(strings.TrimSpace(id))
	if err := h.ctl.Open(fid); err != nil {
		if session.IsNotFound(err) {
			return errNotFound("figure", fid.String())
		}
		return err
	}
	return nil
}

// do runs op; rejections and alerts already shown on stderr come back
// as reportedError.
func (h *headless) do(ctx context.Context, op session.Op) error {
	err := h.ctl.Do(ctx, op)
	if err == nil {
		return nil
	}
	if figclient.IsBadRequest(err) && (op.Kind == session.OpCode || op.Kind == session.OpCanvas) {
		return reportedError{err: err}
	}
	return err
}

// begun turns validation failures the surface already alerted into
// reportedError.
func begun(op session.Op, err error) (session.Op, error) {
	if errors.Is(err, session.ErrEmptyName) || errors.Is(err, model.ErrInvalidCanvas) {
		return op, reportedError{err: err}
	}
	return op, err
}
