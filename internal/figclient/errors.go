package figclient

import (
	"errors"
	"fmt"
)

// StatusError is a non-2xx response. Body is the raw response text.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Code)
}

// IsBadRequest reports whether err is a 4xx rejection from the server.
func IsBadRequest(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code <= 499
}

// ServerMessage returns the raw body of a rejection, or "" when err is not a StatusError.
func ServerMessage(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Body
	}
	return ""
}
