package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"figdesk/internal/export"
	"figdesk/internal/model"

	"github.com/google/uuid"
)

type OpKind int

const (
	OpNone OpKind = iota
	OpRefresh
	OpRename
	OpCanvas
	OpCode
	OpDelete
	OpData
	OpDownload
)

func (k OpKind) String() string {
	switch k {
	case OpNone:
		return "none"
	case OpRefresh:
		return "refresh"
	case OpRename:
		return "rename"
	case OpCanvas:
		return "canvas"
	case OpCode:
		return "code"
	case OpDelete:
		return "delete"
	case OpData:
		return "data"
	case OpDownload:
		return "download"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Ticket ties an outstanding request to the session that issued it.
type Ticket struct {
	Session  uuid.UUID
	FigureID model.FigureID
}

func (t Ticket) Zero() bool { return t.Session == uuid.Nil }

type DownloadKind string

const (
	DownloadData DownloadKind = "data"
	DownloadPDF  DownloadKind = "pdf"
)

func (k DownloadKind) ext() string {
	if k == DownloadPDF {
		return "pdf"
	}
	return "csv"
}

// Op is one server round trip, captured at issue time.
type Op struct {
	Kind   OpKind
	Ticket Ticket

	Name   string
	Canvas model.Canvas
	Code   string

	Download   DownloadKind
	Dir        string
	FigureName string
	XLSX       bool
}

func (o Op) None() bool { return o.Kind == OpNone }

type Result struct {
	Op Op
	// Figures is the refetched list (refresh, and canvas/code after success).
	Figures []model.Figure
	Data    string
	Paths   []string
	Err     error
	// RefreshErr is a failed refetch after a successful mutation.
	RefreshErr error
}

// Run performs the network part of op. It only reads the backend, so it may
// run on any goroutine; hand the result to Apply on the owning goroutine.
func (c *Controller) Run(ctx context.Context, op Op) Result {
	r := Result{Op: op}
	b := c.backend
	id := op.Ticket.FigureID

	switch op.Kind {
	case OpNone:
	case OpRefresh:
		r.Figures, r.Err = b.List(ctx)
	case OpRename:
		r.Err = b.ChangeName(ctx, id, op.Name)
	case OpCanvas:
		if r.Err = b.SetCanvas(ctx, id, op.Canvas); r.Err == nil {
			r.Figures, r.RefreshErr = b.List(ctx)
		}
	case OpCode:
		if r.Err = b.UpdateCode(ctx, id, op.Code); r.Err == nil {
			r.Figures, r.RefreshErr = b.List(ctx)
		}
	case OpDelete:
		r.Err = b.Remove(ctx, id)
	case OpData:
		r.Data, r.Err = b.StrData(ctx, id)
	case OpDownload:
		r.Paths, r.Err = c.download(ctx, op)
	default:
		r.Err = fmt.Errorf("unknown op %s", op.Kind)
	}
	return r
}

func (c *Controller) download(ctx context.Context, op Op) ([]string, error) {
	b := c.backend
	id := op.Ticket.FigureID

	var err error
	switch op.Download {
	case DownloadPDF:
		err = b.PreparePDFDownload(ctx, id)
	case DownloadData:
		err = b.PrepareDataDownload(ctx, id)
	default:
		return nil, fmt.Errorf("unknown download kind %q", op.Download)
	}
	if err != nil {
		return nil, err
	}

	dir := op.Dir
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	ext := op.Download.ext()
	path := filepath.Join(dir, localFileName(op.FigureName)+"."+ext)

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	_, ferr := b.FetchAsset(ctx, b.AssetURL(op.FigureName, ext), f)
	cerr := f.Close()
	if err := errors.Join(ferr, cerr); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	paths := []string{path}

	if op.XLSX && op.Download == DownloadData {
		xlsx := strings.TrimSuffix(path, ".csv") + ".xlsx"
		if err := export.CSVToXLSX(path, xlsx); err != nil {
			return paths, fmt.Errorf("convert %s: %w", path, err)
		}
		paths = append(paths, xlsx)
	}
	return paths, nil
}

// localFileName keeps a figure name usable as a file name on this machine.
func localFileName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "figure"
	}
	return name
}
