// Package grid projects a figure list into display tiles.
package grid

import (
	"figdesk/internal/model"
	"figdesk/internal/store"
)

// MaxLabelRunes caps tile labels; longer names get Ellipsis appended.
const MaxLabelRunes = 35

const Ellipsis = "..."

type Tile struct {
	ID       model.FigureID
	Label    string
	ImageURL string
}

// ImageURLer resolves a figure's rendered image.
type ImageURLer interface {
	ImageURL(f model.Figure) string
}

// Build returns one tile per figure in key order. It never reuses previous
// output; callers replace whatever they rendered before.
func Build(figs []model.Figure, key model.SortKey, urls ImageURLer) []Tile {
	sorted := make([]model.Figure, len(figs))
	copy(sorted, figs)
	store.SortFigures(sorted, key)

	tiles := make([]Tile, 0, len(sorted))
	for _, f := range sorted {
		t := Tile{ID: f.ID, Label: Truncate(f.Name)}
		if urls != nil {
			t.ImageURL = urls.ImageURL(f)
		}
		tiles = append(tiles, t)
	}
	return tiles
}

func Truncate(name string) string {
	r := []rune(name)
	if len(r) <= MaxLabelRunes {
		return name
	}
	return string(r[:MaxLabelRunes]) + Ellipsis
}

// Layout splits tiles into rows of at most cols tiles.
func Layout(tiles []Tile, cols int) [][]Tile {
	if cols < 1 {
		cols = 1
	}
	var rows [][]Tile
	for i := 0; i < len(tiles); i += cols {
		end := min(i+cols, len(tiles))
		rows = append(rows, tiles[i:end])
	}
	return rows
}

// IndexOf returns the position of id in tiles, or -1.
func IndexOf(tiles []Tile, id model.FigureID) int {
	for i, t := range tiles {
		if t.ID == id {
			return i
		}
	}
	return -1
}
