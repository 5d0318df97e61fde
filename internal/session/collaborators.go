package session

import (
	"context"
	"io"

	"figdesk/internal/grid"
	"figdesk/internal/model"
	"figdesk/internal/snippets"
	"figdesk/internal/store"
)

// Backend is the figure server. *figclient.Client implements it.
type Backend interface {
	store.Lister
	grid.ImageURLer
	StrData(ctx context.Context, id model.FigureID) (string, error)
	ChangeName(ctx context.Context, id model.FigureID, name string) error
	Remove(ctx context.Context, id model.FigureID) error
	UpdateCode(ctx context.Context, id model.FigureID, code string) error
	SetCanvas(ctx context.Context, id model.FigureID, cv model.Canvas) error
	PrepareDataDownload(ctx context.Context, id model.FigureID) error
	PreparePDFDownload(ctx context.Context, id model.FigureID) error
	AssetURL(name, ext string) string
	FetchAsset(ctx context.Context, rawURL string, w io.Writer) (int64, error)
}

// Fields is what the edit overlay shows for the open figure.
type Fields struct {
	ID       model.FigureID
	Name     string
	Created  string
	Updated  string
	ImageURL string
	Canvas   model.Canvas
}

// Surface is the screen the controller drives.
type Surface interface {
	SetOverlay(visible bool)
	ShowFigure(f Fields)
	// ShowError shows a server rejection verbatim in the error banner.
	ShowError(text string)
	ClearError()
	// Alert is a blocking notice for local validation failures.
	Alert(msg string)
	RenderGrid(tiles []grid.Tile)
	RemoveTile(id model.FigureID)
	// Notify is a transient status line message.
	Notify(msg string)
}

type Cursor int

const (
	CursorStart Cursor = -1
	CursorEnd   Cursor = 1
)

type Completer interface {
	Complete(prefix string) []snippets.Snippet
}

// Editor is a pre-built code/text editor component.
type Editor interface {
	SetValue(text string, cursor Cursor)
	Value() string
	SetReadOnly(readOnly bool)
	SetTheme(theme string)
	SetMode(mode string)
	AddCompleter(c Completer)
}

// Journal records confirmed mutations. *store.Journal implements it.
type Journal interface {
	Append(ctx context.Context, e store.Entry) (store.Entry, error)
}

// ConfigureEditors applies editor settings: the code editor gets completion,
// the data editor is read-only.
func ConfigureEditors(code, data Editor, cfg store.EditorConfig, c Completer) {
	if code != nil {
		code.SetMode(cfg.Mode)
		code.SetTheme(cfg.Theme)
		code.SetReadOnly(false)
		if c != nil {
			code.AddCompleter(c)
		}
	}
	if data != nil {
		data.SetReadOnly(true)
		data.SetMode(cfg.Mode)
		data.SetTheme(cfg.Theme)
	}
}
