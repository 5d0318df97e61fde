package tui

import (
	"context"
	"errors"

	"figdesk/internal/model"
	"figdesk/internal/session"
	"figdesk/internal/snippets"
	"figdesk/internal/store"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
)

type tab int

const (
	tabCanvas tab = iota
	tabCode
	tabData
	tabCount
)

var tabLabels = [...]string{"canvas", "code", "data"}

type modalKind int

const (
	modalNone modalKind = iota
	modalRename
	modalConfirmDelete
)

// opDoneMsg carries a finished round trip back to Update.
type opDoneMsg struct {
	res session.Result
}

type Options struct {
	Backend  session.Backend
	Journal  session.Journal
	Logger   logrus.FieldLogger
	Snippets *snippets.Set
	Editor   store.EditorConfig
	Sort     model.SortKey
	// Server is shown in the header and recorded in the journal.
	Server      string
	DownloadDir string
	// OnSort runs after the user picks a new grid order.
	OnSort func(model.SortKey)
}

type appModel struct {
	ctx  context.Context
	ctl  *session.Controller
	scr  *screen
	code *codeEditor
	data *dataViewer
	log  logrus.FieldLogger

	server      string
	downloadDir string
	editorCfg   store.EditorConfig
	onSort      func(model.SortKey)

	width  int
	height int

	cursor  int
	gridTop int

	tab    tab
	canvas canvasForm

	modal        modalKind
	renameInput  textinput.Model
	confirmFocus confirmModalFocus

	completion *completionState
	pending    int

	externalEditorPath   string
	externalEditorBefore string
}

func newAppModel(ctx context.Context, opts Options) appModel {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	set := opts.Snippets
	if set == nil {
		set = snippets.Default()
	}

	scr := &screen{}
	code := newCodeEditor()
	data := newDataViewer()
	session.ConfigureEditors(code, data, opts.Editor, set)

	ctl := session.New(opts.Backend, store.NewFigureStore(), scr, code, data, session.Options{
		Journal: opts.Journal,
		Logger:  log,
		Sort:    opts.Sort,
		Server:  opts.Server,
	})

	ri := newNameInput()

	return appModel{
		ctx:         ctx,
		ctl:         ctl,
		scr:         scr,
		code:        code,
		data:        data,
		log:         log,
		server:      opts.Server,
		downloadDir: opts.DownloadDir,
		editorCfg:   opts.Editor,
		onSort:      opts.OnSort,
		canvas:      newCanvasForm(),
		renameInput: ri,
	}
}

func (m appModel) Init() tea.Cmd {
	return m.runOp(m.ctl.BeginRefresh())
}

func (m *appModel) setSort(key model.SortKey) {
	changed := key != m.ctl.Sort()
	m.ctl.SetSort(key)
	m.sync()
	if changed && m.onSort != nil {
		m.onSort(key)
	}
}

// runOp starts op's network phase off the update loop.
func (m *appModel) runOp(op session.Op) tea.Cmd {
	if op.None() {
		return nil
	}
	m.pending++
	ctl, ctx := m.ctl, m.ctx
	return func() tea.Msg {
		return opDoneMsg{res: ctl.Run(ctx, op)}
	}
}

// begin runs a Begin* result: validation errors were already surfaced by the
// controller, so only the op matters here.
func (m *appModel) begin(op session.Op, err error) tea.Cmd {
	if err != nil {
		m.log.WithError(err).Debug("op not started")
	}
	m.sync()
	return m.runOp(op)
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case opDoneMsg:
		m.pending = max(m.pending-1, 0)
		next, err := m.ctl.Apply(m.ctx, msg.res)
		if err != nil && !errors.Is(err, session.ErrStale) {
			m.log.WithError(err).WithField("op", msg.res.Op.Kind.String()).Debug("op finished with error")
		}
		m.sync()
		return m, m.runOp(next)

	case externalEditorDoneMsg:
		m.applyExternalEditorResult(msg)
		if m.scr.overlay && m.tab == tabCode {
			return m, m.code.Focus()
		}
		return m, nil

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	// Cursor blink and similar housekeeping.
	var cmds []tea.Cmd
	if m.modal == modalRename {
		var cmd tea.Cmd
		m.renameInput, cmd = m.renameInput.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.scr.overlay {
		switch m.tab {
		case tabCode:
			cmds = append(cmds, m.code.Update(msg))
		case tabCanvas:
			cmds = append(cmds, m.canvas.update(msg))
		}
	}
	return m, tea.Batch(cmds...)
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if _, ok := m.scr.alert(); ok {
		switch msg.String() {
		case "enter", "esc":
			m.scr.dismissAlert()
		}
		return m, nil
	}

	switch m.modal {
	case modalRename:
		return m.handleRenameKey(msg)
	case modalConfirmDelete:
		return m.handleConfirmKey(msg)
	}

	if m.completion != nil {
		if cmd, handled := m.handleCompletionKey(msg); handled {
			return m, cmd
		}
	}

	if m.scr.overlay {
		return m.handleOverlayKey(msg)
	}
	return m.handleGridKey(msg)
}

func (m appModel) handleGridKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := len(m.scr.tiles)
	cols := gridColumns(m.width)
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "esc":
		// Closing is idempotent and always refetches the list.
		return m, m.closeSession()
	case "left", "h":
		if m.cursor > 0 {
			m.cursor--
		}
	case "right", "l":
		if m.cursor < n-1 {
			m.cursor++
		}
	case "up", "k":
		if m.cursor-cols >= 0 {
			m.cursor -= cols
		}
	case "down", "j":
		if m.cursor+cols < n {
			m.cursor += cols
		}
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = max(n-1, 0)
	case "enter", " ":
		return m, m.openAt(m.cursor)
	case "n":
		m.setSort(model.SortByName)
	case "u":
		m.setSort(model.SortByUpdatedDate)
	case "r":
		m.scr.notice = "refreshing"
		return m, m.runOp(m.ctl.BeginRefresh())
	}
	m.ensureCursorVisible()
	return m, nil
}

func (m *appModel) openAt(i int) tea.Cmd {
	if i < 0 || i >= len(m.scr.tiles) {
		return nil
	}
	m.cursor = i
	if err := m.ctl.Open(m.scr.tiles[i].ID); err != nil {
		m.scr.notice = err.Error()
		return nil
	}
	m.completion = nil
	m.sync()
	return m.setTab(tabCanvas)
}

func (m *appModel) closeSession() tea.Cmd {
	m.completion = nil
	m.modal = modalNone
	op := m.ctl.Close()
	m.sync()
	return m.runOp(op)
}

func (m appModel) handleOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, m.closeSession()
	case "tab":
		return m, m.setTab((m.tab + 1) % tabCount)
	case "shift+tab":
		return m, m.setTab((m.tab + tabCount - 1) % tabCount)
	case "ctrl+r":
		m.modal = modalRename
		m.renameInput.SetValue(m.scr.fields.Name)
		m.renameInput.CursorEnd()
		return m, m.renameInput.Focus()
	case "ctrl+d":
		m.modal = modalConfirmDelete
		m.confirmFocus = confirmFocusCancel
		return m, nil
	case "ctrl+l":
		return m, m.begin(m.ctl.BeginDownload(session.DownloadData, m.downloadDir, false))
	case "ctrl+p":
		return m, m.begin(m.ctl.BeginDownload(session.DownloadPDF, m.downloadDir, false))
	case "ctrl+y":
		if err := copyToClipboard(m.scr.fields.ImageURL); err != nil {
			m.scr.notice = "copy failed: " + err.Error()
		} else {
			m.scr.notice = "image url copied"
		}
		return m, nil
	case "ctrl+x":
		m.scr.ClearError()
		return m, nil
	}

	switch m.tab {
	case tabCanvas:
		if msg.String() == "enter" {
			cv, err := m.canvas.canvas()
			if err != nil {
				m.scr.Alert(err.Error())
				return m, nil
			}
			return m, m.begin(m.ctl.BeginCanvas(cv))
		}
		return m, m.canvas.update(msg)
	case tabCode:
		switch msg.String() {
		case "ctrl+s":
			return m, m.begin(m.ctl.BeginCodeUpdate())
		case "ctrl+e":
			cmd, err := m.openExternalEditorForCode()
			if err != nil {
				m.scr.notice = "editor failed: " + err.Error()
				return m, nil
			}
			return m, cmd
		case "ctrl+@", "ctrl+ ":
			m.openCompletion()
			return m, nil
		}
		return m, m.code.Update(msg)
	case tabData:
		return m, m.data.Update(msg)
	}
	return m, nil
}

// setTab switches overlay tabs. Selecting the data tab fetches the data.
func (m *appModel) setTab(t tab) tea.Cmd {
	m.tab = t
	m.completion = nil
	m.code.Blur()
	m.canvas.blur()
	switch t {
	case tabCode:
		return m.code.Focus()
	case tabCanvas:
		return m.canvas.setFocus(m.canvas.focus)
	case tabData:
		return m.begin(m.ctl.BeginData())
	}
	return nil
}

func (m appModel) handleRenameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.modal = modalNone
		m.renameInput.Blur()
		return m, m.begin(m.ctl.BeginRename(m.renameInput.Value(), true))
	case "esc":
		m.modal = modalNone
		m.renameInput.Blur()
		return m, m.begin(m.ctl.BeginRename("", false))
	}
	var cmd tea.Cmd
	m.renameInput, cmd = m.renameInput.Update(msg)
	return m, cmd
}

func (m appModel) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab", "left", "right", "h", "l":
		m.confirmFocus = m.confirmFocus.toggle()
		return m, nil
	case "y":
		m.modal = modalNone
		return m, m.begin(m.ctl.BeginDelete(true))
	case "n", "esc":
		m.modal = modalNone
		return m, m.begin(m.ctl.BeginDelete(false))
	case "enter":
		m.modal = modalNone
		return m, m.begin(m.ctl.BeginDelete(m.confirmFocus == confirmFocusConfirm))
	}
	return m, nil
}

func (m appModel) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
		if m.scr.overlay && m.tab == tabData {
			return m, m.data.Update(msg)
		}
		return m, nil
	}
	if _, ok := m.scr.alert(); ok || m.modal != modalNone {
		return m, nil
	}
	if m.scr.overlay {
		if !overlayRect(m.width, m.height).contains(msg.X, msg.Y) {
			return m, m.closeSession()
		}
		return m, nil
	}
	if i := m.tileAt(msg.X, msg.Y); i >= 0 {
		return m, m.openAt(i)
	}
	return m, nil
}

// tileAt maps a screen cell to a tile index, or -1.
func (m appModel) tileAt(x, y int) int {
	if y < headerLines || x < 0 {
		return -1
	}
	cols := gridColumns(m.width)
	col := x / tileWidth
	if col >= cols {
		return -1
	}
	row := (y-headerLines)/tileHeight + m.gridTop
	if row-m.gridTop >= gridRows(m.height) {
		return -1
	}
	i := row*cols + col
	if i >= len(m.scr.tiles) {
		return -1
	}
	return i
}

// sync pulls controller-side changes into the model.
func (m *appModel) sync() {
	if m.scr.fieldsChanged {
		m.canvas.load(m.scr.fields.Canvas)
		m.scr.fieldsChanged = false
	}
	if !m.scr.overlay {
		m.code.Blur()
		m.canvas.blur()
		m.completion = nil
	}
	if m.cursor >= len(m.scr.tiles) {
		m.cursor = max(len(m.scr.tiles)-1, 0)
	}
	m.ensureCursorVisible()
}

func (m *appModel) ensureCursorVisible() {
	cols := gridColumns(m.width)
	rows := gridRows(m.height)
	row := m.cursor / cols
	if row < m.gridTop {
		m.gridTop = row
	}
	if row >= m.gridTop+rows {
		m.gridTop = row - rows + 1
	}
}

func (m *appModel) resize() {
	r := overlayRect(m.width, m.height)
	// Border, padding, header block and help line.
	inner := r.w - 4
	h := r.h - 12
	m.code.SetSize(inner, h)
	m.data.SetSize(inner, h)
	m.ensureCursorVisible()
}
