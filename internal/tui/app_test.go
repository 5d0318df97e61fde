package tui

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"figdesk/internal/figclient"
	"figdesk/internal/figtest"
	"figdesk/internal/model"
	"figdesk/internal/session"
	"figdesk/internal/store"

	tea "github.com/charmbracelet/bubbletea"
	xansi "github.com/charmbracelet/x/ansi"
	"github.com/sirupsen/logrus"
)

func testFigures() []model.Figure {
	return []model.Figure{
		{ID: "1", Name: "Alpha", FileName: "alpha.png", Code: "ggplot(a)", Height: 4, Width: 6, DPI: 300, Units: model.UnitsInch, UpdatedDate: "2024-01-01"},
		{ID: "2", Name: "beta", FileName: "beta.png", Code: "ggplot(b)", Height: 5, Width: 5, DPI: 72, Units: model.UnitsCentimeter, UpdatedDate: "2024-02-01"},
		{ID: "5", Name: strings.Repeat("x", 40), FileName: "long.png", Code: "ggplot(mtcars)", Height: 7, Width: 7, DPI: 150, Units: model.UnitsInch, UpdatedDate: "2024-03-01"},
	}
}

func newTestModel(t *testing.T) (appModel, *figtest.Server) {
	t.Helper()
	srv := figtest.New(testFigures()...)
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)
	client, err := figclient.New(srv.URL, figclient.WithLogger(log))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	m := newAppModel(context.Background(), Options{
		Backend:     client,
		Logger:      log,
		Editor:      store.EditorConfig{Theme: "dark", Mode: "r"},
		Server:      srv.URL,
		DownloadDir: t.TempDir(),
	})
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m = drain(t, m, m.Init())
	if len(m.scr.tiles) != 3 {
		t.Fatalf("expected 3 tiles after init, got %d", len(m.scr.tiles))
	}
	srv.ResetCalls()
	return m, srv
}

func update(t *testing.T, m appModel, msg tea.Msg) appModel {
	t.Helper()
	mm, _ := m.Update(msg)
	out, ok := mm.(appModel)
	if !ok {
		t.Fatalf("unexpected model type %T", mm)
	}
	return out
}

// drain runs cmd and every op it leads to. Other messages (cursor blink,
// quit) are not executed.
func drain(t *testing.T, m appModel, cmd tea.Cmd) appModel {
	t.Helper()
	for i := 0; cmd != nil; i++ {
		if i > 20 {
			t.Fatalf("op chain did not settle")
		}
		msg := cmd()
		if _, ok := msg.(opDoneMsg); !ok {
			return m
		}
		var mm tea.Model
		mm, cmd = m.Update(msg)
		m = mm.(appModel)
	}
	return m
}

func press(t *testing.T, m appModel, msg tea.Msg) appModel {
	t.Helper()
	before := m.pending
	mm, cmd := m.Update(msg)
	m = mm.(appModel)
	// Only round trips are followed; focus and blink commands wait on timers.
	if m.pending > before {
		return drain(t, m, cmd)
	}
	return m
}

func keyRunes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func typeText(t *testing.T, m appModel, s string) appModel {
	t.Helper()
	for _, r := range s {
		m = press(t, m, keyRunes(string(r)))
	}
	return m
}

func TestGrid_SortKeysReorderTiles(t *testing.T) {
	m, _ := newTestModel(t)
	// Byte-wise name order: "Alpha" < "beta" < "xxx…".
	if got := m.scr.tiles[0].ID; got != "1" {
		t.Fatalf("expected Alpha first, got %s", got)
	}
	m = press(t, m, keyRunes("u"))
	if m.ctl.Sort() != model.SortByUpdatedDate || m.scr.tiles[2].ID != "5" {
		t.Fatalf("sort by date: %s %+v", m.ctl.Sort(), m.scr.tiles)
	}
	if !strings.HasSuffix(m.scr.tiles[2].Label, "...") || len([]rune(m.scr.tiles[2].Label)) != 38 {
		t.Fatalf("expected truncated label, got %q", m.scr.tiles[2].Label)
	}
	m = press(t, m, keyRunes("n"))
	if m.ctl.Sort() != model.SortByName {
		t.Fatalf("expected name sort")
	}
}

func TestGrid_CursorMovesAndOpens(t *testing.T) {
	m, srv := newTestModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	m = press(t, m, keyRunes("l"))
	m = press(t, m, keyRunes("l"))
	if m.cursor != 2 {
		t.Fatalf("cursor should stop at last tile, got %d", m.cursor)
	}
	m = press(t, m, keyRunes("h"))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if !m.scr.overlay {
		t.Fatalf("expected overlay after enter")
	}
	if id, _ := m.ctl.Current(); id != "2" {
		t.Fatalf("expected figure 2 open, got %q", id)
	}
	if m.tab != tabCanvas || m.canvas.inputs[fieldDPI].Value() != "72" || m.canvas.units != model.UnitsCentimeter {
		t.Fatalf("canvas form not loaded: tab=%d dpi=%q units=%s", m.tab, m.canvas.inputs[fieldDPI].Value(), m.canvas.units)
	}
	if m.code.Value() != "ggplot(b)" {
		t.Fatalf("code editor not loaded: %q", m.code.Value())
	}
	if len(srv.Calls()) != 0 {
		t.Fatalf("opening must not hit the server")
	}
}

func TestOverlay_EscClosesAndRefreshes(t *testing.T) {
	m, srv := newTestModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	if m.scr.overlay || m.ctl.State() != session.Closed {
		t.Fatalf("expected closed session")
	}
	if m.code.Value() != "" {
		t.Fatalf("close must clear the code editor, got %q", m.code.Value())
	}
	if srv.CallsTo("/fd_ls") != 1 {
		t.Fatalf("expected one list refetch, got %d", srv.CallsTo("/fd_ls"))
	}
}

func TestOverlay_ClickOutsideCloses(t *testing.T) {
	m, _ := newTestModel(t)
	// First tile sits just under the header.
	m = press(t, m, tea.MouseMsg{X: 2, Y: headerLines + 1, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	if !m.scr.overlay {
		t.Fatalf("expected click on tile to open it")
	}

	inside := overlayRect(m.width, m.height)
	m = press(t, m, tea.MouseMsg{X: inside.x + 2, Y: inside.y + 2, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	if !m.scr.overlay {
		t.Fatalf("click inside the overlay must not close it")
	}

	m = press(t, m, tea.MouseMsg{X: 0, Y: 0, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	if m.scr.overlay {
		t.Fatalf("click outside must close the overlay")
	}
}

func TestRename_BlankShowsAlertWithoutRequest(t *testing.T) {
	m, srv := newTestModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	if m.modal != modalRename || m.renameInput.Value() != "Alpha" {
		t.Fatalf("rename modal not prefilled: modal=%d value=%q", m.modal, m.renameInput.Value())
	}
	m.renameInput.SetValue("   ")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if msg, ok := m.scr.alert(); !ok || msg != session.ErrEmptyName.Error() {
		t.Fatalf("expected empty-name alert, got %q %v", msg, ok)
	}
	if srv.CallsTo("/fd_change_name") != 0 {
		t.Fatalf("blank rename must not call the server")
	}
	if !strings.Contains(xansi.Strip(m.View()), session.ErrEmptyName.Error()) {
		t.Fatalf("alert not rendered")
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if _, ok := m.scr.alert(); ok {
		t.Fatalf("enter should dismiss the alert")
	}
	if !m.scr.overlay {
		t.Fatalf("session must stay open")
	}
}

func TestRename_Success(t *testing.T) {
	m, srv := newTestModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	m.renameInput.SetValue("")
	m = typeText(t, m, "Gamma")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.scr.fields.Name != "Gamma" {
		t.Fatalf("displayed name = %q", m.scr.fields.Name)
	}
	if f, _ := srv.Figure("1"); f.Name != "Gamma" {
		t.Fatalf("server name = %q", f.Name)
	}
}

func TestCodeTab_BadRequestBanner(t *testing.T) {
	m, srv := newTestModel(t)
	srv.RejectCode("1", "syntax error on line 3")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.tab != tabCode {
		t.Fatalf("expected code tab, got %d", m.tab)
	}
	m = typeText(t, m, " +")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})

	if m.scr.errText != "syntax error on line 3" {
		t.Fatalf("banner = %q", m.scr.errText)
	}
	if !m.scr.overlay || m.ctl.State() != session.Open {
		t.Fatalf("session must stay open")
	}
	if !strings.Contains(xansi.Strip(m.View()), "syntax error on line 3") {
		t.Fatalf("banner not rendered")
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlX})
	if m.scr.errText != "" {
		t.Fatalf("ctrl+x should dismiss the banner")
	}
}

func TestCodeTab_CompletionInsertsSnippet(t *testing.T) {
	m, _ := newTestModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m.code.SetValue("p + geom_poi", session.CursorEnd)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlAt})
	if m.completion == nil || m.completion.prefix != "geom_poi" {
		t.Fatalf("expected completion for geom_poi, got %+v", m.completion)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if got := m.code.Value(); got != "p + geom_point()" {
		t.Fatalf("unexpected code after completion: %q", got)
	}
	if m.completion != nil {
		t.Fatalf("completion should close after insert")
	}
}

func TestCanvasTab_SubmitAndInvalidInput(t *testing.T) {
	m, srv := newTestModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	before := m.scr.fields.ImageURL

	m.canvas.inputs[fieldWidth].SetValue("9")
	m.canvas.focus = fieldUnits
	m = press(t, m, keyRunes("l"))
	if m.canvas.units != model.UnitsCentimeter {
		t.Fatalf("units should cycle to cm, got %s", m.canvas.units)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	f, _ := srv.Figure("1")
	if f.Width != 9 || f.Units != model.UnitsCentimeter {
		t.Fatalf("server canvas not updated: %+v", f)
	}
	if m.scr.fields.ImageURL == before {
		t.Fatalf("image url should change after canvas update")
	}

	m.canvas.inputs[fieldHeight].SetValue("tall")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if msg, ok := m.scr.alert(); !ok || !strings.Contains(msg, "height") {
		t.Fatalf("expected height alert, got %q", msg)
	}
}

func TestDelete_ConfirmRemovesTileAndCloses(t *testing.T) {
	m, srv := newTestModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlD})
	if m.modal != modalConfirmDelete || m.confirmFocus != confirmFocusCancel {
		t.Fatalf("expected confirm modal focused on cancel")
	}
	// Enter on cancel keeps the figure.
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.scr.overlay || srv.CallsTo("/fd_rm") != 0 {
		t.Fatalf("cancelled delete must be a no-op")
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlD})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.scr.overlay || m.ctl.State() != session.Closed {
		t.Fatalf("expected closed after delete")
	}
	for _, tile := range m.scr.tiles {
		if tile.ID == "2" {
			t.Fatalf("deleted tile still rendered")
		}
	}
	if len(m.scr.tiles) != 2 || m.cursor > 1 {
		t.Fatalf("tiles=%d cursor=%d", len(m.scr.tiles), m.cursor)
	}
}

func TestDataTab_LoadsOnSelection(t *testing.T) {
	m, srv := newTestModel(t)
	srv.SetData("1", "mpg cyl\n21 6\n")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})

	if m.tab != tabData {
		t.Fatalf("expected data tab, got %d", m.tab)
	}
	if m.data.Value() != "mpg cyl\n21 6\n" {
		t.Fatalf("data viewer = %q", m.data.Value())
	}
	if srv.CallsTo("/fd_str_data") != 1 {
		t.Fatalf("expected one data request")
	}
}

func TestCopyImageURL(t *testing.T) {
	m, _ := newTestModel(t)
	var copied string
	orig := copyToClipboard
	copyToClipboard = func(s string) error { copied = s; return nil }
	t.Cleanup(func() { copyToClipboard = orig })

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	if !strings.HasSuffix(copied, "/figure/alpha.png?2024-01-01") {
		t.Fatalf("copied %q", copied)
	}

	copyToClipboard = func(string) error { return errors.New("no clipboard") }
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	if !strings.Contains(m.scr.notice, "no clipboard") {
		t.Fatalf("expected failure notice, got %q", m.scr.notice)
	}
}

func TestView_GridShowsTilesAndHelp(t *testing.T) {
	m, _ := newTestModel(t)
	out := xansi.Strip(m.View())
	for _, want := range []string{"figdesk", "Alpha", "beta", "#5", "q: quit"} {
		if !strings.Contains(out, want) {
			t.Fatalf("view missing %q:\n%s", want, out)
		}
	}
	for i, ln := range strings.Split(m.View(), "\n") {
		if w := xansi.StringWidth(ln); w != m.width {
			t.Fatalf("line %d width %d, want %d", i, w, m.width)
		}
	}
}

func TestTileAt(t *testing.T) {
	m, _ := newTestModel(t)
	cases := []struct {
		x, y int
		want int
	}{
		{0, 0, -1},
		{1, headerLines, 0},
		{tileWidth + 1, headerLines + 2, 1},
		{2*tileWidth + 1, headerLines, -1},
		{1, headerLines + tileHeight, 2},
		{tileWidth + 1, headerLines + tileHeight, -1},
	}
	for _, tc := range cases {
		if got := m.tileAt(tc.x, tc.y); got != tc.want {
			t.Fatalf("tileAt(%d,%d)=%d, want %d", tc.x, tc.y, got, tc.want)
		}
	}
}

func TestGrid_SortChangeIsReported(t *testing.T) {
	m, _ := newTestModel(t)
	var got []model.SortKey
	m.onSort = func(k model.SortKey) { got = append(got, k) }

	m = press(t, m, keyRunes("n")) // already by name
	m = press(t, m, keyRunes("u"))
	m = press(t, m, keyRunes("u"))
	_ = press(t, m, keyRunes("n"))

	if len(got) != 2 || got[0] != model.SortByUpdatedDate || got[1] != model.SortByName {
		t.Fatalf("unexpected sort reports: %v", got)
	}
}

func TestGrid_EscRefreshesWithoutOpenFigure(t *testing.T) {
	m, srv := newTestModel(t)
	srv.Remove("2")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	if m.scr.overlay || m.ctl.State() != session.Closed {
		t.Fatalf("expected closed state")
	}
	if srv.CallsTo("/fd_ls") != 1 || len(m.scr.tiles) != 2 {
		t.Fatalf("expected one refetch and two tiles, calls=%d tiles=%d", srv.CallsTo("/fd_ls"), len(m.scr.tiles))
	}
}
