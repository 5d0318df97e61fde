package model

import (
	"errors"
	"fmt"
	"strings"
)

// FigureID identifies a figure on the server. The server emits ids as JSON
// strings or numbers; both decode to the same string form.
type FigureID string

func (id FigureID) String() string { return string(id) }

func (id FigureID) Empty() bool { return strings.TrimSpace(string(id)) == "" }

type Units string

const (
	UnitsInch       Units = "in"
	UnitsCentimeter Units = "cm"
	UnitsMillimeter Units = "mm"
	UnitsPixel      Units = "px"
)

// AllUnits is the order the canvas editor cycles through.
var AllUnits = []Units{UnitsInch, UnitsCentimeter, UnitsMillimeter, UnitsPixel}

func (u Units) Valid() bool {
	for _, v := range AllUnits {
		if u == v {
			return true
		}
	}
	return false
}

// Next returns the unit after u in AllUnits, wrapping around.
func (u Units) Next() Units {
	for i, v := range AllUnits {
		if v == u {
			return AllUnits[(i+1)%len(AllUnits)]
		}
	}
	return AllUnits[0]
}

var ErrInvalidCanvas = errors.New("invalid canvas")

type Canvas struct {
	Height float64 `json:"height"`
	Width  float64 `json:"width"`
	DPI    int     `json:"dpi"`
	Units  Units   `json:"units"`
}

func (c Canvas) Validate() error {
	switch {
	case c.Height <= 0:
		return fmt.Errorf("%w: height must be positive, got %v", ErrInvalidCanvas, c.Height)
	case c.Width <= 0:
		return fmt.Errorf("%w: width must be positive, got %v", ErrInvalidCanvas, c.Width)
	case c.DPI <= 0:
		return fmt.Errorf("%w: dpi must be positive, got %d", ErrInvalidCanvas, c.DPI)
	case !c.Units.Valid():
		return fmt.Errorf("%w: unknown units %q", ErrInvalidCanvas, string(c.Units))
	}
	return nil
}

// Figure is one record of the server's figure list.
//
// Dates are kept as the server's strings. They are only ever compared
// lexicographically, so the server must use a sortable encoding (ISO-8601).
type Figure struct {
	ID          FigureID `json:"id"`
	Name        string   `json:"name"`
	FileName    string   `json:"file_name"`
	Code        string   `json:"code_updated"`
	Height      float64  `json:"height"`
	Width       float64  `json:"width"`
	DPI         int      `json:"dpi"`
	Units       Units    `json:"units"`
	CreatedDate string   `json:"created_date"`
	UpdatedDate string   `json:"updated_date"`
}

func (f Figure) Canvas() Canvas {
	return Canvas{Height: f.Height, Width: f.Width, DPI: f.DPI, Units: f.Units}
}

type SortKey string

const (
	SortByName        SortKey = "name"
	SortByUpdatedDate SortKey = "updated_date"
)

func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "name":
		return SortByName, nil
	case "updated_date", "updated", "date":
		return SortByUpdatedDate, nil
	default:
		return "", fmt.Errorf("unknown sort key: %s (want name|updated_date)", s)
	}
}
