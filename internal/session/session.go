// Package session holds the edit-session controller: at most one figure is
// open for editing, and every mutation of it goes through the controller.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"figdesk/internal/figclient"
	"figdesk/internal/grid"
	"figdesk/internal/model"
	"figdesk/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

type Options struct {
	Journal Journal
	Logger  logrus.FieldLogger
	Sort    model.SortKey
	// Server is recorded on journal entries.
	Server string
}

// Controller is not safe for concurrent use except for Run, which only
// touches the backend.
type Controller struct {
	backend Backend
	figures *store.FigureStore
	surface Surface
	code    Editor
	data    Editor
	journal Journal
	log     logrus.FieldLogger
	server  string

	sort   model.SortKey
	state  State
	ticket Ticket
	fields Fields
	tiles  []grid.Tile
}

func New(b Backend, figs *store.FigureStore, s Surface, code, data Editor, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	if figs == nil {
		figs = store.NewFigureStore()
	}
	key := opts.Sort
	if key == "" {
		key = model.SortByName
	}
	return &Controller{
		backend: b,
		figures: figs,
		surface: s,
		code:    code,
		data:    data,
		journal: opts.Journal,
		log:     log,
		server:  opts.Server,
		sort:    key,
	}
}

func (c *Controller) State() State { return c.state }

// Current returns the open figure id; ok is false when closed.
func (c *Controller) Current() (model.FigureID, bool) {
	if c.state != Open {
		return "", false
	}
	return c.ticket.FigureID, true
}

// Fields returns what is shown for the open figure.
func (c *Controller) Fields() Fields { return c.fields }

func (c *Controller) Ticket() Ticket { return c.ticket }

func (c *Controller) Store() *store.FigureStore { return c.figures }

func (c *Controller) Sort() model.SortKey { return c.sort }

// Tiles returns the last rendered grid.
func (c *Controller) Tiles() []grid.Tile { return c.tiles }

// SetSort changes the grid order and re-renders.
func (c *Controller) SetSort(key model.SortKey) {
	c.sort = key
	c.RenderGrid()
}

// RenderGrid rebuilds every tile from the store.
func (c *Controller) RenderGrid() {
	c.tiles = grid.Build(c.figures.All(), c.sort, c.backend)
	if c.surface != nil {
		c.surface.RenderGrid(c.tiles)
	}
}

// Open starts an edit session for id. Results of requests issued by a
// previous session are stale from here on.
func (c *Controller) Open(id model.FigureID) error {
	f, ok := c.figures.FindByID(id)
	if !ok {
		return notFoundError{id: id}
	}
	c.state = Open
	c.ticket = Ticket{Session: uuid.New(), FigureID: id}
	c.logger(OpNone).Debug("session opened")

	c.surface.ClearError()
	c.surface.SetOverlay(true)
	c.load(f)
	return nil
}

// Close ends the session from any state and discards unsaved edits. The
// returned op refetches the list and re-renders the grid.
func (c *Controller) Close() Op {
	if c.state == Open {
		c.logger(OpNone).Debug("session closed")
	}
	c.state = Closed
	c.ticket = Ticket{}
	c.fields = Fields{}

	c.surface.SetOverlay(false)
	c.surface.ClearError()
	if c.code != nil {
		c.code.SetValue("", CursorStart)
	}
	if c.data != nil {
		c.data.SetValue("", CursorStart)
	}
	return Op{Kind: OpRefresh}
}

func (c *Controller) BeginRefresh() Op { return Op{Kind: OpRefresh} }

// BeginRename validates a new name. ok=false means the prompt was cancelled.
// The name is sent as typed; only the emptiness check trims it.
func (c *Controller) BeginRename(input string, ok bool) (Op, error) {
	if c.state != Open {
		return Op{}, ErrNotOpen
	}
	if !ok {
		return Op{}, nil
	}
	if strings.TrimSpace(input) == "" {
		c.surface.Alert(ErrEmptyName.Error())
		return Op{}, ErrEmptyName
	}
	if input == c.fields.Name {
		return Op{}, nil
	}
	return Op{Kind: OpRename, Ticket: c.ticket, Name: input}, nil
}

func (c *Controller) BeginCanvas(cv model.Canvas) (Op, error) {
	if c.state != Open {
		return Op{}, ErrNotOpen
	}
	if err := cv.Validate(); err != nil {
		c.surface.Alert(err.Error())
		return Op{}, err
	}
	c.surface.ClearError()
	return Op{Kind: OpCanvas, Ticket: c.ticket, Canvas: cv}, nil
}

// BeginCodeUpdate submits the code editor's text. Empty text is not sent.
func (c *Controller) BeginCodeUpdate() (Op, error) {
	if c.state != Open {
		return Op{}, ErrNotOpen
	}
	if c.code == nil {
		return Op{}, nil
	}
	code := c.code.Value()
	if code == "" {
		return Op{}, nil
	}
	c.surface.ClearError()
	return Op{Kind: OpCode, Ticket: c.ticket, Code: code}, nil
}

func (c *Controller) BeginDelete(confirmed bool) (Op, error) {
	if c.state != Open {
		return Op{}, ErrNotOpen
	}
	if !confirmed {
		return Op{}, nil
	}
	return Op{Kind: OpDelete, Ticket: c.ticket}, nil
}

func (c *Controller) BeginData() (Op, error) {
	if c.state != Open {
		return Op{}, ErrNotOpen
	}
	return Op{Kind: OpData, Ticket: c.ticket}, nil
}

// BeginDownload fetches the figure's data (csv) or pdf asset into dir.
// xlsx additionally converts a data download to a workbook.
func (c *Controller) BeginDownload(kind DownloadKind, dir string, xlsx bool) (Op, error) {
	if c.state != Open {
		return Op{}, ErrNotOpen
	}
	switch kind {
	case DownloadData, DownloadPDF:
	default:
		return Op{}, fmt.Errorf("unknown download kind %q", kind)
	}
	return Op{
		Kind:       OpDownload,
		Ticket:     c.ticket,
		Download:   kind,
		Dir:        dir,
		FigureName: c.fields.Name,
		XLSX:       xlsx,
	}, nil
}

// Apply folds a finished op into the controller. It returns ErrStale for
// results from a session that is no longer current, and may return a
// follow-up op.
func (c *Controller) Apply(ctx context.Context, r Result) (Op, error) {
	op := r.Op
	if op.Kind == OpNone {
		return Op{}, nil
	}
	if op.Kind == OpRefresh {
		return Op{}, c.applyRefresh(r)
	}
	if op.Ticket.Zero() || c.state != Open || c.ticket != op.Ticket {
		c.log.WithFields(logrus.Fields{
			"op":        op.Kind.String(),
			"figure_id": op.Ticket.FigureID.String(),
			"session":   op.Ticket.Session.String(),
		}).Debug("discarding stale result")
		return Op{}, ErrStale
	}

	log := c.logger(op.Kind)
	if r.Err != nil {
		return Op{}, c.applyFailure(log, op, r.Err)
	}

	switch op.Kind {
	case OpRename:
		if !c.figures.Rename(op.Ticket.FigureID, op.Name) {
			log.Warn("renamed figure is missing from the local list")
		}
		c.fields.Name = op.Name
		c.surface.ShowFigure(c.fields)
		c.record(ctx, op, store.EntryRename, op.Name)
	case OpCanvas, OpCode:
		kind, detail := store.EntryCode, fmt.Sprintf("%d bytes", len(op.Code))
		if op.Kind == OpCanvas {
			kind, detail = store.EntryCanvas, canvasDetail(op.Canvas)
		}
		c.record(ctx, op, kind, detail)
		if r.RefreshErr != nil {
			log.WithError(r.RefreshErr).Warn("refresh after update failed")
			return Op{}, nil
		}
		c.figures.Replace(r.Figures)
		if f, ok := c.figures.FindByID(op.Ticket.FigureID); ok {
			c.load(f)
		} else {
			log.Warn("updated figure is missing from the refreshed list")
		}
	case OpDelete:
		c.figures.Remove(op.Ticket.FigureID)
		c.tiles = removeTile(c.tiles, op.Ticket.FigureID)
		c.surface.RemoveTile(op.Ticket.FigureID)
		c.record(ctx, op, store.EntryDelete, c.fields.Name)
		return c.Close(), nil
	case OpData:
		if c.data != nil {
			c.data.SetValue(r.Data, CursorStart)
		}
	case OpDownload:
		for _, p := range r.Paths {
			c.surface.Notify("saved " + p)
		}
	}
	return Op{}, nil
}

func (c *Controller) applyFailure(log logrus.FieldLogger, op Op, err error) error {
	if (op.Kind == OpCanvas || op.Kind == OpCode) && figclient.IsBadRequest(err) {
		c.surface.ShowError(figclient.ServerMessage(err))
		return err
	}
	log.WithError(err).Error("request failed")
	c.surface.Notify(op.Kind.String() + " failed")
	return err
}

func (c *Controller) applyRefresh(r Result) error {
	if r.Err != nil {
		c.log.WithError(r.Err).Warn("figure list refresh failed")
		return r.Err
	}
	c.figures.Replace(r.Figures)
	c.RenderGrid()
	return nil
}

// Do runs op and everything it leads to on the calling goroutine.
func (c *Controller) Do(ctx context.Context, op Op) error {
	var errs []error
	for !op.None() {
		next, err := c.Apply(ctx, c.Run(ctx, op))
		if err != nil {
			errs = append(errs, err)
		}
		op = next
	}
	return errors.Join(errs...)
}

func (c *Controller) load(f model.Figure) {
	c.fields = Fields{
		ID:       f.ID,
		Name:     f.Name,
		Created:  f.CreatedDate,
		Updated:  f.UpdatedDate,
		ImageURL: c.backend.ImageURL(f),
		Canvas:   f.Canvas(),
	}
	c.surface.ShowFigure(c.fields)
	if c.code != nil {
		c.code.SetValue(f.Code, CursorEnd)
	}
}

func (c *Controller) record(ctx context.Context, op Op, kind store.EntryKind, detail string) {
	if c.journal == nil {
		return
	}
	_, err := c.journal.Append(ctx, store.Entry{
		FigureID: op.Ticket.FigureID,
		Kind:     kind,
		Detail:   detail,
		Server:   c.server,
		At:       time.Now(),
	})
	if err != nil {
		c.logger(op.Kind).WithError(err).Warn("journal append failed")
	}
}

func (c *Controller) logger(kind OpKind) logrus.FieldLogger {
	fields := logrus.Fields{
		"figure_id": c.ticket.FigureID.String(),
		"session":   c.ticket.Session.String(),
	}
	if kind != OpNone {
		fields["op"] = kind.String()
	}
	return c.log.WithFields(fields)
}

func canvasDetail(cv model.Canvas) string {
	return fmt.Sprintf("%gx%g%s@%d", cv.Width, cv.Height, cv.Units, cv.DPI)
}

func removeTile(tiles []grid.Tile, id model.FigureID) []grid.Tile {
	out := make([]grid.Tile, 0, len(tiles))
	for _, t := range tiles {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}
