package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"figdesk/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

type EntryKind string

const (
	EntryRename EntryKind = "rename"
	EntryCanvas EntryKind = "canvas"
	EntryCode   EntryKind = "code"
	EntryDelete EntryKind = "delete"
)

// Entry is one confirmed mutation. The journal is local history only; figure
// state always comes from the server.
type Entry struct {
	ID       string         `db:"entry_id" json:"id"`
	FigureID model.FigureID `db:"figure_id" json:"figureId"`
	Kind     EntryKind      `db:"kind" json:"kind"`
	Detail   string         `db:"detail" json:"detail,omitempty"`
	Server   string         `db:"server" json:"server,omitempty"`
	AtUnixMs int64          `db:"at_unixms" json:"-"`
	At       time.Time      `db:"-" json:"at"`
}

type Journal struct {
	db *sqlx.DB
}

// OpenJournal opens (creating if needed) the journal database at path.
func OpenJournal(ctx context.Context, path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	j := &Journal{db: db}
	if err := j.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS journal (
			entry_id TEXT PRIMARY KEY,
			figure_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			server TEXT NOT NULL DEFAULT '',
			at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_figure ON journal(figure_id, at_unixms);`,
	}
	for _, st := range stmts {
		if _, err := j.db.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("journal migrate: %w", err)
		}
	}
	return nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append stores e, filling in ID and At when unset.
func (j *Journal) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if e.ID == "" {
		e.ID = ulid.MustNew(ulid.Timestamp(e.At), ulid.DefaultEntropy()).String()
	}
	e.AtUnixMs = e.At.UnixMilli()
	_, err := j.db.NamedExecContext(ctx, `
		INSERT INTO journal (entry_id, figure_id, kind, detail, server, at_unixms)
		VALUES (:entry_id, :figure_id, :kind, :detail, :server, :at_unixms)`, e)
	if err != nil {
		return Entry{}, fmt.Errorf("journal append: %w", err)
	}
	return e, nil
}

// Recent returns the newest entries first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Entry
	err := j.db.SelectContext(ctx, &out, `
		SELECT entry_id, figure_id, kind, detail, server, at_unixms
		FROM journal ORDER BY at_unixms DESC, entry_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal recent: %w", err)
	}
	return fillTimes(out), nil
}

// ForFigure returns the newest entries for one figure first.
func (j *Journal) ForFigure(ctx context.Context, id model.FigureID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Entry
	err := j.db.SelectContext(ctx, &out, `
		SELECT entry_id, figure_id, kind, detail, server, at_unixms
		FROM journal WHERE figure_id = ? ORDER BY at_unixms DESC, entry_id DESC LIMIT ?`, id.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("journal for figure %s: %w", id, err)
	}
	return fillTimes(out), nil
}

func fillTimes(es []Entry) []Entry {
	if es == nil {
		return []Entry{}
	}
	for i := range es {
		es[i].At = time.UnixMilli(es[i].AtUnixMs).UTC()
	}
	return es
}
