package session

import (
	"errors"
	"fmt"

	"figdesk/internal/model"
)

var (
	ErrEmptyName = errors.New("the name cannot be empty")
	ErrNotOpen   = errors.New("no figure is open")
	// ErrStale means a result arrived for a session that has since closed or moved on.
	ErrStale = errors.New("result belongs to a closed session")
)

type notFoundError struct {
	id model.FigureID
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("figure not found: %s", e.id)
}

// IsNotFound reports whether err is a figure missing from the store.
func IsNotFound(err error) bool {
	var nf notFoundError
	return errors.As(err, &nf)
}
