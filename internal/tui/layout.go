package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

// Grid tile geometry, borders included.
const (
	tileWidth  = 41
	tileHeight = 5

	headerLines = 2
	footerLines = 2
)

// rect is a screen region in cells.
type rect struct {
	x, y, w, h int
}

func (r rect) contains(x, y int) bool {
	return x >= r.x && x < r.x+r.w && y >= r.y && y < r.y+r.h
}

// normalizePane forces s to be exactly width columns wide (ANSI-aware) and
// height lines tall.
func normalizePane(s string, width, height int) string {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}

	lines := strings.Split(s, "\n")
	if height > 0 {
		if len(lines) > height {
			lines = lines[:height]
		}
		for len(lines) < height {
			lines = append(lines, "")
		}
	}

	for i, ln := range lines {
		// Bound the width computation on huge lines.
		if width > 0 && len(ln) > 8192 {
			ln = xansi.Cut(ln, 0, width)
		}
		w := xansi.StringWidth(ln)
		if w > width {
			ln = cutWithEllipsis(ln, width)
			w = xansi.StringWidth(ln)
		}
		if w < width {
			ln += strings.Repeat(" ", width-w)
		}
		lines[i] = ln
	}
	return strings.Join(lines, "\n")
}

func cutWithEllipsis(s string, width int) string {
	switch {
	case width <= 0:
		return ""
	case width == 1:
		return xansi.Cut(s, 0, 1)
	default:
		return xansi.Cut(s, 0, width-1) + "…"
	}
}

// gridColumns is how many tiles fit side by side.
func gridColumns(width int) int {
	return max(1, width/tileWidth)
}

// gridRows is how many tile rows fit between header and footer.
func gridRows(height int) int {
	return max(1, (height-headerLines-footerLines)/tileHeight)
}

// overlayRect is the edit overlay's box, centered on screen.
func overlayRect(width, height int) rect {
	w := min(max(width-6, 40), 110)
	h := max(height-4, 12)
	if w > width {
		w = width
	}
	if h > height {
		h = height
	}
	return rect{x: (width - w) / 2, y: (height - h) / 2, w: w, h: h}
}

// modalBodyWidth is the usable text width inside a modal of the given outer width.
func modalBodyWidth(width int) int {
	w := min(width-8, 64)
	return max(w, 20)
}

// renderModalBox draws a titled box sized for modal content.
func renderModalBox(width int, title, content string) string {
	bodyW := modalBodyWidth(width)
	header := lipgloss.NewStyle().
		Width(bodyW).
		Bold(true).
		Foreground(colorSurfaceFg).
		Background(colorModalHeader).
		Padding(0, 1).
		Render(title)
	body := lipgloss.NewStyle().
		Width(bodyW).
		Padding(1, 1).
		Render(content)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAccent).
		Render(lipgloss.JoinVertical(lipgloss.Left, header, body))
}

// placeCenter centers box on a width x height canvas.
func placeCenter(width, height int, box string) string {
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
