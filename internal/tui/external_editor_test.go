package tui

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"figdesk/internal/session"
)

func TestApplyExternalEditorResult_UpdatesCodeAndCleansUp(t *testing.T) {
	t.Parallel()

	m := appModel{scr: &screen{overlay: true}, code: newCodeEditor()}
	m.code.SetValue("before", session.CursorEnd)

	path := filepath.Join(t.TempDir(), "edited.R")
	if err := os.WriteFile(path, []byte("after\n"), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	m.externalEditorPath = path
	m.externalEditorBefore = "before"
	m.applyExternalEditorResult(externalEditorDoneMsg{})

	if got := m.code.Value(); got != "after\n" {
		t.Fatalf("expected code editor to be updated, got %q", got)
	}
	if !strings.Contains(m.scr.notice, "ctrl+s") {
		t.Fatalf("expected submit hint, got %q", m.scr.notice)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be removed, stat err=%v", err)
	}
}

func TestApplyExternalEditorResult_ReportsEditorFailure(t *testing.T) {
	t.Parallel()

	m := appModel{scr: &screen{overlay: true}, code: newCodeEditor()}
	m.code.SetValue("kept", session.CursorEnd)
	path := filepath.Join(t.TempDir(), "edited.R")
	if err := os.WriteFile(path, []byte("ignored"), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	m.externalEditorPath = path
	m.applyExternalEditorResult(externalEditorDoneMsg{err: errors.New("exit status 1")})

	if m.code.Value() != "kept" {
		t.Fatalf("failed edit must not change the code, got %q", m.code.Value())
	}
	if !strings.HasPrefix(m.scr.notice, "editor failed") {
		t.Fatalf("unexpected notice %q", m.scr.notice)
	}
}

func TestSourceExt(t *testing.T) {
	t.Parallel()
	cases := map[string]string{"": ".R", "r": ".R", "R": ".R", "python": ".py", "sql": ".txt"}
	for in, want := range cases {
		if got := sourceExt(in); got != want {
			t.Fatalf("sourceExt(%q)=%q, want %q", in, got, want)
		}
	}
}
