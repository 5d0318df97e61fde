// Package snippets is the completion source for the code editor.
package snippets

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

//go:embed ggplot2.json
var defaultJSON []byte

type Snippet struct {
	Caption string `json:"caption"`
	// Snippet is the inserted text; ${n:placeholder} markers are expanded to the placeholder.
	Snippet string `json:"snippet,omitempty"`
	// Value is accepted as an alias of Snippet (plain completion lists use it).
	Value string `json:"value,omitempty"`
	Meta  string `json:"meta,omitempty"`
	Score int    `json:"score,omitempty"`
}

// Text is what gets inserted for s.
func (s Snippet) Text() string {
	t := s.Snippet
	if t == "" {
		t = s.Value
	}
	if t == "" {
		t = s.Caption
	}
	return expandPlaceholders(t)
}

var placeholderRe = regexp.MustCompile(`\$\{\d+(?::([^}]*))?\}`)

func expandPlaceholders(s string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		if len(sub) > 1 {
			return sub[1]
		}
		return ""
	})
}

// Set is a completion list, safe for concurrent use.
type Set struct {
	mu    sync.RWMutex
	items []Snippet
}

func Parse(b []byte) (*Set, error) {
	var items []Snippet
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("parse snippets: %w", err)
	}
	s := &Set{}
	s.replace(items)
	return s, nil
}

// Default is the built-in plotting-language list.
func Default() *Set {
	s, err := Parse(defaultJSON)
	if err != nil {
		panic(err)
	}
	return s
}

// Load reads a snippet file; an empty path returns Default.
func Load(path string) (*Set, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func (s *Set) replace(items []Snippet) {
	cp := make([]Snippet, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Caption) == "" {
			continue
		}
		cp = append(cp, it)
	}
	slices.SortStableFunc(cp, func(a, b Snippet) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return strings.Compare(a.Caption, b.Caption)
	})
	s.mu.Lock()
	s.items = cp
	s.mu.Unlock()
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Complete returns snippets whose caption starts with prefix, best score first.
// An empty prefix matches nothing.
func (s *Set) Complete(prefix string) []Snippet {
	if prefix == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Snippet
	for _, it := range s.items {
		if strings.HasPrefix(it.Caption, prefix) {
			out = append(out, it)
		}
	}
	return out
}

// Reload re-reads path into s.
func (s *Set) Reload(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var items []Snippet
	if err := json.Unmarshal(b, &items); err != nil {
		return fmt.Errorf("parse snippets: %w", err)
	}
	s.replace(items)
	return nil
}

// Watch reloads s whenever path is written, until ctx is done. onChange (optional)
// runs after every reload attempt. Parse errors keep the previous list.
func (s *Set) Watch(ctx context.Context, path string, onChange func(error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors often replace the file by rename.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}
	target := filepath.Clean(path)

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				err := s.Reload(path)
				if err != nil {
					logrus.WithField("path", path).WithError(err).Warn("snippet reload failed")
				}
				if onChange != nil {
					onChange(err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logrus.WithError(err).Warn("snippet watcher error")
			}
		}
	}()
	return nil
}

// WordPrefix returns the identifier fragment ending at the end of line.
func WordPrefix(line string) string {
	i := len(line)
	for i > 0 {
		c := line[i-1]
		if c == '_' || c == '.' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			i--
			continue
		}
		break
	}
	return line[i:]
}
