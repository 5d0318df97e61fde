package session

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"figdesk/internal/figclient"
	"figdesk/internal/figtest"
	"figdesk/internal/grid"
	"figdesk/internal/model"
	"figdesk/internal/snippets"
	"figdesk/internal/store"

	"github.com/sirupsen/logrus"
)

type fakeSurface struct {
	overlay  bool
	shown    Fields
	errText  string
	alerts   []string
	tiles    []grid.Tile
	removed  []model.FigureID
	notices  []string
	clearErr int
}

func (s *fakeSurface) SetOverlay(v bool)            { s.overlay = v }
func (s *fakeSurface) ShowFigure(f Fields)          { s.shown = f }
func (s *fakeSurface) ShowError(text string)        { s.errText = text }
func (s *fakeSurface) ClearError()                  { s.errText = ""; s.clearErr++ }
func (s *fakeSurface) Alert(msg string)             { s.alerts = append(s.alerts, msg) }
func (s *fakeSurface) RenderGrid(tiles []grid.Tile) { s.tiles = tiles }
func (s *fakeSurface) RemoveTile(id model.FigureID) { s.removed = append(s.removed, id) }
func (s *fakeSurface) Notify(msg string)            { s.notices = append(s.notices, msg) }

type fakeEditor struct {
	value    string
	cursor   Cursor
	readOnly bool
	theme    string
	mode     string
	comp     []Completer
}

func (e *fakeEditor) SetValue(text string, c Cursor) { e.value, e.cursor = text, c }
func (e *fakeEditor) Value() string                  { return e.value }
func (e *fakeEditor) SetReadOnly(v bool)             { e.readOnly = v }
func (e *fakeEditor) SetTheme(t string)              { e.theme = t }
func (e *fakeEditor) SetMode(m string)               { e.mode = m }
func (e *fakeEditor) AddCompleter(c Completer)       { e.comp = append(e.comp, c) }

type memJournal struct {
	entries []store.Entry
	err     error
}

func (j *memJournal) Append(_ context.Context, e store.Entry) (store.Entry, error) {
	if j.err != nil {
		return store.Entry{}, j.err
	}
	j.entries = append(j.entries, e)
	return e, nil
}

type harness struct {
	ctl     *Controller
	srv     *figtest.Server
	surface *fakeSurface
	code    *fakeEditor
	data    *fakeEditor
	journal *memJournal
}

func seedFigures() []model.Figure {
	return []model.Figure{
		{ID: "1", Name: "Alpha", FileName: "alpha.png", Code: "ggplot(a)", Height: 4, Width: 6, DPI: 300, Units: model.UnitsInch, UpdatedDate: "2024-01-01"},
		{ID: "2", Name: "beta", FileName: "beta.png", Code: "ggplot(b)", Height: 5, Width: 5, DPI: 72, Units: model.UnitsCentimeter, UpdatedDate: "2024-02-01"},
		{ID: "5", Name: "Scatter", FileName: "scatter.png", Code: "ggplot(mtcars)", Height: 7, Width: 7, DPI: 150, Units: model.UnitsInch, UpdatedDate: "2024-03-01"},
	}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := figtest.New(seedFigures()...)
	t.Cleanup(srv.Close)
	client, err := figclient.New(srv.URL, figclient.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	h := &harness{
		srv:     srv,
		surface: &fakeSurface{},
		code:    &fakeEditor{},
		data:    &fakeEditor{},
		journal: &memJournal{},
	}
	h.ctl = New(client, store.NewFigureStore(), h.surface, h.code, h.data, Options{
		Journal: h.journal,
		Logger:  quietLogger(),
		Server:  srv.URL,
	})
	if err := h.ctl.Do(context.Background(), h.ctl.BeginRefresh()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	srv.ResetCalls()
	return h
}

func (h *harness) open(t *testing.T, id model.FigureID) {
	t.Helper()
	if err := h.ctl.Open(id); err != nil {
		t.Fatalf("Open(%s): %v", id, err)
	}
}

func TestOpen_LoadsFieldsAndShowsOverlay(t *testing.T) {
	h := newHarness(t)
	h.open(t, "5")

	if h.ctl.State() != Open {
		t.Fatalf("expected open, got %s", h.ctl.State())
	}
	if id, ok := h.ctl.Current(); !ok || id != "5" {
		t.Fatalf("Current() = %q, %v", id, ok)
	}
	if !h.surface.overlay {
		t.Fatalf("expected overlay visible")
	}
	if h.surface.shown.Name != "Scatter" || h.surface.shown.Canvas.DPI != 150 {
		t.Fatalf("unexpected fields: %+v", h.surface.shown)
	}
	if !strings.HasSuffix(h.surface.shown.ImageURL, "/figure/scatter.png?2024-03-01") {
		t.Fatalf("unexpected image url: %q", h.surface.shown.ImageURL)
	}
	if h.code.value != "ggplot(mtcars)" || h.code.cursor != CursorEnd {
		t.Fatalf("code editor not loaded: %+v", h.code)
	}
	if len(h.srv.Calls()) != 0 {
		t.Fatalf("open must not hit the server, got %+v", h.srv.Calls())
	}
}

func TestOpen_UnknownFigure(t *testing.T) {
	h := newHarness(t)
	err := h.ctl.Open("404")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if h.ctl.State() != Closed || h.surface.overlay {
		t.Fatalf("session must stay closed")
	}
}

func TestRename_EmptyOrBlankNeverCallsServer(t *testing.T) {
	for _, name := range []string{"", " ", "\t\n  "} {
		h := newHarness(t)
		h.open(t, "1")
		op, err := h.ctl.BeginRename(name, true)
		if !errors.Is(err, ErrEmptyName) {
			t.Fatalf("BeginRename(%q) err = %v", name, err)
		}
		if !op.None() {
			t.Fatalf("expected no op for %q", name)
		}
		if len(h.surface.alerts) != 1 {
			t.Fatalf("expected one alert, got %v", h.surface.alerts)
		}
		if n := h.srv.CallsTo("/fd_change_name"); n != 0 {
			t.Fatalf("expected no rename request, got %d", n)
		}
	}
}

func TestRename_CancelledAndUnchangedAreNoops(t *testing.T) {
	h := newHarness(t)
	h.open(t, "1")
	if op, err := h.ctl.BeginRename("whatever", false); err != nil || !op.None() {
		t.Fatalf("cancelled rename: op=%v err=%v", op.Kind, err)
	}
	if op, err := h.ctl.BeginRename("Alpha", true); err != nil || !op.None() {
		t.Fatalf("unchanged rename: op=%v err=%v", op.Kind, err)
	}
	if len(h.surface.alerts) != 0 {
		t.Fatalf("unexpected alerts: %v", h.surface.alerts)
	}
}

func TestRename_UpdatesStoreAndFieldsWithoutRefresh(t *testing.T) {
	h := newHarness(t)
	h.open(t, "1")
	ctx := context.Background()

	op, err := h.ctl.BeginRename(" Gamma ", true)
	if err != nil {
		t.Fatalf("BeginRename: %v", err)
	}
	if err := h.ctl.Do(ctx, op); err != nil {
		t.Fatalf("Do: %v", err)
	}
	f, _ := h.ctl.Store().FindByID("1")
	if f.Name != " Gamma " || f.UpdatedDate != "2024-01-01" {
		t.Fatalf("unexpected stored record: %+v", f)
	}
	if h.surface.shown.Name != " Gamma " {
		t.Fatalf("displayed name not updated: %+v", h.surface.shown)
	}
	if n := h.srv.CallsTo("/fd_ls"); n != 0 {
		t.Fatalf("rename must not refetch, got %d list calls", n)
	}
	if len(h.journal.entries) != 1 || h.journal.entries[0].Kind != store.EntryRename {
		t.Fatalf("unexpected journal: %+v", h.journal.entries)
	}
}

func TestRename_StoreMissStillSends(t *testing.T) {
	h := newHarness(t)
	h.open(t, "2")
	h.ctl.Store().Remove("2")

	op, err := h.ctl.BeginRename("renamed", true)
	if err != nil {
		t.Fatalf("BeginRename: %v", err)
	}
	if err := h.ctl.Do(context.Background(), op); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if n := h.srv.CallsTo("/fd_change_name"); n != 1 {
		t.Fatalf("expected the request to be sent, got %d", n)
	}
	if h.ctl.State() != Open {
		t.Fatalf("session should stay open")
	}
}

func TestCodeUpdate_BadRequestShowsRawServerText(t *testing.T) {
	h := newHarness(t)
	h.srv.RejectCode("5", "syntax error on line 3")
	h.open(t, "5")
	h.code.SetValue("ggplot(mtcars) +", CursorEnd)

	op, err := h.ctl.BeginCodeUpdate()
	if err != nil {
		t.Fatalf("BeginCodeUpdate: %v", err)
	}
	err = h.ctl.Do(context.Background(), op)
	if !figclient.IsBadRequest(err) {
		t.Fatalf("expected bad request, got %v", err)
	}
	if h.surface.errText != "syntax error on line 3" {
		t.Fatalf("banner = %q", h.surface.errText)
	}
	if id, ok := h.ctl.Current(); !ok || id != "5" {
		t.Fatalf("session must stay open on 5, got %q %v", id, ok)
	}
	if !h.surface.overlay {
		t.Fatalf("overlay must stay visible")
	}
	if len(h.journal.entries) != 0 {
		t.Fatalf("rejected update must not be journaled")
	}
}

func TestCodeUpdate_SuccessReloadsFigure(t *testing.T) {
	h := newHarness(t)
	h.open(t, "5")
	before := h.surface.shown.ImageURL
	h.code.SetValue("ggplot(iris)", CursorEnd)

	op, err := h.ctl.BeginCodeUpdate()
	if err != nil {
		t.Fatalf("BeginCodeUpdate: %v", err)
	}
	if err := h.ctl.Do(context.Background(), op); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if h.surface.shown.ImageURL == before {
		t.Fatalf("image url should change after update")
	}
	f, _ := h.ctl.Store().FindByID("5")
	if f.Code != "ggplot(iris)" {
		t.Fatalf("store not refreshed: %+v", f)
	}
	if h.code.value != "ggplot(iris)" {
		t.Fatalf("code editor not reloaded: %q", h.code.value)
	}
	if h.srv.CallsTo("/fd_ls") != 1 {
		t.Fatalf("expected one refetch")
	}
}

func TestCodeUpdate_EmptyCodeIsNotSent(t *testing.T) {
	h := newHarness(t)
	h.open(t, "5")
	h.code.SetValue("", CursorStart)
	op, err := h.ctl.BeginCodeUpdate()
	if err != nil || !op.None() {
		t.Fatalf("expected no op, got %v %v", op.Kind, err)
	}
}

func TestCanvas_SuccessAndRejection(t *testing.T) {
	h := newHarness(t)
	h.open(t, "1")
	ctx := context.Background()

	op, err := h.ctl.BeginCanvas(model.Canvas{Height: 3, Width: 8, DPI: 96, Units: model.UnitsCentimeter})
	if err != nil {
		t.Fatalf("BeginCanvas: %v", err)
	}
	if err := h.ctl.Do(ctx, op); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := h.surface.shown.Canvas; got.Width != 8 || got.Units != model.UnitsCentimeter {
		t.Fatalf("canvas not reloaded: %+v", got)
	}

	h.srv.RejectCanvas("width too large")
	op, _ = h.ctl.BeginCanvas(model.Canvas{Height: 3, Width: 800, DPI: 96, Units: model.UnitsCentimeter})
	if err := h.ctl.Do(ctx, op); err == nil {
		t.Fatalf("expected rejection")
	}
	if h.surface.errText != "width too large" || h.ctl.State() != Open {
		t.Fatalf("banner=%q state=%s", h.surface.errText, h.ctl.State())
	}
}

func TestCanvas_InvalidIsAlerted(t *testing.T) {
	h := newHarness(t)
	h.open(t, "1")
	_, err := h.ctl.BeginCanvas(model.Canvas{Height: 0, Width: 1, DPI: 1, Units: model.UnitsInch})
	if !errors.Is(err, model.ErrInvalidCanvas) {
		t.Fatalf("expected invalid canvas, got %v", err)
	}
	if len(h.surface.alerts) != 1 || h.srv.CallsTo("/fd_canvas") != 0 {
		t.Fatalf("alerts=%v calls=%d", h.surface.alerts, h.srv.CallsTo("/fd_canvas"))
	}
}

func TestDelete_RemovesRecordAndTileAndCloses(t *testing.T) {
	h := newHarness(t)
	h.open(t, "2")
	ctx := context.Background()

	if op, err := h.ctl.BeginDelete(false); err != nil || !op.None() {
		t.Fatalf("unconfirmed delete must be a no-op")
	}
	op, err := h.ctl.BeginDelete(true)
	if err != nil {
		t.Fatalf("BeginDelete: %v", err)
	}
	if err := h.ctl.Do(ctx, op); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if h.ctl.State() != Closed {
		t.Fatalf("expected closed after delete")
	}
	if _, ok := h.ctl.Store().FindByID("2"); ok {
		t.Fatalf("record still in store")
	}
	if grid.IndexOf(h.ctl.Tiles(), "2") >= 0 || grid.IndexOf(h.surface.tiles, "2") >= 0 {
		t.Fatalf("tile still rendered")
	}
	if len(h.surface.removed) != 1 || h.surface.removed[0] != "2" {
		t.Fatalf("RemoveTile not called: %v", h.surface.removed)
	}
	if len(h.surface.tiles) != 2 {
		t.Fatalf("expected grid rebuilt with 2 tiles, got %d", len(h.surface.tiles))
	}
}

func TestClose_AlwaysClearsEditorAndOverlay(t *testing.T) {
	h := newHarness(t)

	// Closed to closed.
	h.code.SetValue("leftover", CursorEnd)
	h.surface.overlay = true
	h.ctl.Close()
	if h.code.value != "" || h.surface.overlay {
		t.Fatalf("close from closed: code=%q overlay=%v", h.code.value, h.surface.overlay)
	}

	h.open(t, "1")
	h.code.SetValue("unsaved edits", CursorEnd)
	h.surface.errText = "old error"
	op := h.ctl.Close()
	if op.Kind != OpRefresh {
		t.Fatalf("close should return a refresh, got %s", op.Kind)
	}
	if h.code.value != "" || h.data.value != "" || h.surface.overlay || h.surface.errText != "" {
		t.Fatalf("close left state behind: code=%q data=%q overlay=%v err=%q",
			h.code.value, h.data.value, h.surface.overlay, h.surface.errText)
	}
	if err := h.ctl.Do(context.Background(), op); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if h.srv.CallsTo("/fd_ls") != 1 || len(h.surface.tiles) != 3 {
		t.Fatalf("expected list refetch and grid rebuild")
	}
}

func TestApply_DiscardsStaleResults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.open(t, "1")

	op, err := h.ctl.BeginRename("late", true)
	if err != nil {
		t.Fatalf("BeginRename: %v", err)
	}
	res := h.ctl.Run(ctx, op)
	h.ctl.Close()
	h.open(t, "1")

	if _, err := h.ctl.Apply(ctx, res); !errors.Is(err, ErrStale) {
		t.Fatalf("expected stale, got %v", err)
	}
	f, _ := h.ctl.Store().FindByID("1")
	if f.Name != "Alpha" || h.surface.shown.Name != "Alpha" {
		t.Fatalf("stale result leaked into state: %+v / %+v", f, h.surface.shown)
	}
}

func TestRefresh_FailureKeepsStaleList(t *testing.T) {
	h := newHarness(t)
	h.srv.Remove("1")
	h.srv.FailList(true)
	if err := h.ctl.Do(context.Background(), h.ctl.BeginRefresh()); err == nil {
		t.Fatalf("expected refresh error")
	}
	if h.ctl.Store().Len() != 3 {
		t.Fatalf("failed refresh must keep the prior list")
	}
}

func TestSetSort_ReordersGrid(t *testing.T) {
	h := newHarness(t)
	h.ctl.SetSort(model.SortByUpdatedDate)
	if got := h.surface.tiles[2].ID; got != "5" {
		t.Fatalf("expected newest last, got %s", got)
	}
	h.ctl.SetSort(model.SortByName)
	// Byte-wise: "Alpha" < "Scatter" < "beta".
	want := []model.FigureID{"1", "5", "2"}
	for i, id := range want {
		if h.surface.tiles[i].ID != id {
			t.Fatalf("tile %d = %s, want %s", i, h.surface.tiles[i].ID, id)
		}
	}
}

func TestData_LoadsReadOnlyViewerAtStart(t *testing.T) {
	h := newHarness(t)
	h.srv.SetData("5", "mpg cyl\n21 6\n")
	h.open(t, "5")
	op, err := h.ctl.BeginData()
	if err != nil {
		t.Fatalf("BeginData: %v", err)
	}
	if err := h.ctl.Do(context.Background(), op); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if h.data.value != "mpg cyl\n21 6\n" || h.data.cursor != CursorStart {
		t.Fatalf("data viewer: %+v", h.data)
	}
}

func TestDownload_WritesAssets(t *testing.T) {
	h := newHarness(t)
	h.open(t, "1")
	dir := t.TempDir()
	ctx := context.Background()

	op, err := h.ctl.BeginDownload(DownloadData, dir, true)
	if err != nil {
		t.Fatalf("BeginDownload: %v", err)
	}
	if err := h.ctl.Do(ctx, op); err != nil {
		t.Fatalf("Do: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "Alpha.csv"))
	if err != nil || string(b) != "x,y\n1,2\n3,4\n" {
		t.Fatalf("csv: %q %v", b, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Alpha.xlsx")); err != nil {
		t.Fatalf("xlsx: %v", err)
	}

	op, _ = h.ctl.BeginDownload(DownloadPDF, dir, false)
	if err := h.ctl.Do(ctx, op); err != nil {
		t.Fatalf("Do pdf: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Alpha.pdf")); err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if len(h.surface.notices) != 3 {
		t.Fatalf("expected three saved notices, got %v", h.surface.notices)
	}
}

func TestLocalFileName(t *testing.T) {
	cases := map[string]string{
		"plot":     "plot",
		"a/b":      "a_b",
		"  ":       "figure",
		"..":       "figure",
		"x:y?.tmp": "x_y_.tmp",
	}
	for in, want := range cases {
		if got := localFileName(in); got != want {
			t.Fatalf("localFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNotOpen(t *testing.T) {
	h := newHarness(t)
	if _, err := h.ctl.BeginRename("x", true); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if _, err := h.ctl.BeginDelete(true); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

func TestConfigureEditors(t *testing.T) {
	code, data := &fakeEditor{readOnly: true}, &fakeEditor{}
	cfg := store.EditorConfig{Theme: "dark", Mode: "r"}
	ConfigureEditors(code, data, cfg, stubCompleter{})
	if code.readOnly || !data.readOnly {
		t.Fatalf("readOnly: code=%v data=%v", code.readOnly, data.readOnly)
	}
	if code.mode != "r" || code.theme != "dark" || len(code.comp) != 1 || len(data.comp) != 0 {
		t.Fatalf("unexpected editor config: %+v %+v", code, data)
	}
}

type stubCompleter struct{}

func (stubCompleter) Complete(string) []snippets.Snippet { return nil }

func TestResubmit_ClearsPreviousBanner(t *testing.T) {
	h := newHarness(t)
	h.open(t, "1")
	ctx := context.Background()

	h.srv.RejectCanvas("width too large")
	op, _ := h.ctl.BeginCanvas(model.Canvas{Height: 3, Width: 800, DPI: 96, Units: model.UnitsInch})
	_ = h.ctl.Do(ctx, op)
	if h.surface.errText != "width too large" {
		t.Fatalf("expected banner, got %q", h.surface.errText)
	}

	h.srv.RejectCanvas("")
	op, err := h.ctl.BeginCanvas(model.Canvas{Height: 3, Width: 8, DPI: 96, Units: model.UnitsInch})
	if err != nil {
		t.Fatalf("BeginCanvas: %v", err)
	}
	if h.surface.errText != "" {
		t.Fatalf("submit must clear the banner, got %q", h.surface.errText)
	}
	if err := h.ctl.Do(ctx, op); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if h.surface.shown.Canvas.Width != 8 || h.surface.errText != "" {
		t.Fatalf("width=%v banner=%q", h.surface.shown.Canvas.Width, h.surface.errText)
	}

	h.surface.ShowError("old code error")
	h.code.value = "ggplot(a) + geom_line()"
	op, _ = h.ctl.BeginCodeUpdate()
	if op.None() || h.surface.errText != "" {
		t.Fatalf("code submit must clear the banner, got %q", h.surface.errText)
	}

	// A local validation failure keeps the server's last word on screen.
	h.surface.ShowError("kept")
	_, _ = h.ctl.BeginCanvas(model.Canvas{Height: 0, Width: 8, DPI: 96, Units: model.UnitsInch})
	if h.surface.errText != "kept" {
		t.Fatalf("invalid canvas must not clear the banner, got %q", h.surface.errText)
	}
}

func TestApply_ZeroTicketIsStale(t *testing.T) {
	h := newHarness(t)
	h.open(t, "1")
	res := Result{Op: Op{Kind: OpData}, Data: "x"}
	if !res.Op.Ticket.Zero() {
		t.Fatalf("expected zero ticket")
	}
	if _, err := h.ctl.Apply(context.Background(), res); !errors.Is(err, ErrStale) {
		t.Fatalf("expected stale, got %v", err)
	}
	if h.ctl.Ticket().Zero() {
		t.Fatalf("open session must carry a ticket")
	}
}
