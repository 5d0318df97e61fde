package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"figdesk/internal/model"
)

// Lister fetches the server's full figure list.
type Lister interface {
	List(ctx context.Context) ([]model.Figure, error)
}

// FigureStore is the client-side copy of the server's figure list.
//
// The list mirrors the server exactly after every successful Refresh/Replace.
// Between a mutation and the next refresh it may be stale; the only in-place
// edits are Rename and Remove, each applied after the server confirmed it.
type FigureStore struct {
	mu      sync.RWMutex
	figures []model.Figure
}

func NewFigureStore(figs ...model.Figure) *FigureStore {
	s := &FigureStore{}
	s.Replace(figs)
	return s
}

// Refresh refetches the whole list. On error the previous list is kept.
func (s *FigureStore) Refresh(ctx context.Context, l Lister) error {
	figs, err := l.List(ctx)
	if err != nil {
		return err
	}
	s.Replace(figs)
	return nil
}

func (s *FigureStore) Replace(figs []model.Figure) {
	cp := make([]model.Figure, len(figs))
	copy(cp, figs)
	s.mu.Lock()
	s.figures = cp
	s.mu.Unlock()
}

func (s *FigureStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.figures)
}

// All returns a copy of the list in server order.
func (s *FigureStore) All() []model.Figure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.figures)
}

// FindByID returns the first record with id.
func (s *FigureStore) FindByID(id model.FigureID) (model.Figure, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.figures[i], true
	}
	return model.Figure{}, false
}

// Rename sets the name of the first record with id. It reports false when no record matches.
func (s *FigureStore) Rename(id model.FigureID, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.figures[i].Name = name
	return true
}

// Remove drops the first record with id. It reports false when no record matches.
func (s *FigureStore) Remove(id model.FigureID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.figures = slices.Delete(s.figures, i, i+1)
	return true
}

// Sorted returns a copy of the list ordered by key.
func (s *FigureStore) Sorted(key model.SortKey) []model.Figure {
	out := s.All()
	SortFigures(out, key)
	return out
}

func (s *FigureStore) indexLocked(id model.FigureID) int {
	for i := range s.figures {
		if s.figures[i].ID == id {
			return i
		}
	}
	return -1
}

// SortFigures stable-sorts figs in place. Names compare byte-wise with ties
// broken by updated date; dates compare as strings. Unknown keys keep the order.
func SortFigures(figs []model.Figure, key model.SortKey) {
	switch key {
	case model.SortByName:
		slices.SortStableFunc(figs, func(a, b model.Figure) int {
			if c := strings.Compare(a.Name, b.Name); c != 0 {
				return c
			}
			return strings.Compare(a.UpdatedDate, b.UpdatedDate)
		})
	case model.SortByUpdatedDate:
		slices.SortStableFunc(figs, func(a, b model.Figure) int {
			return strings.Compare(a.UpdatedDate, b.UpdatedDate)
		})
	}
}
