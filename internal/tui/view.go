package tui

import (
	"fmt"
	"strings"

	"figdesk/internal/grid"

	"github.com/charmbracelet/lipgloss"
)

func (m appModel) View() string {
	if m.width <= 0 || m.height <= 0 {
		return "loading…"
	}

	var out string
	if m.scr.overlay {
		out = m.renderAt(overlayRect(m.width, m.height), m.viewOverlay())
	} else {
		out = strings.Join([]string{m.viewHeader(), m.viewGrid(), m.viewFooter()}, "\n")
	}

	if msg, ok := m.scr.alert(); ok {
		return placeCenter(m.width, m.height, renderAlertModal(m.width, msg))
	}
	switch m.modal {
	case modalRename:
		body := "New name\n\n" + renderNameInput(modalBodyWidth(m.width), m.renameInput) +
			"\n\n" + styleMuted().Render("enter: save   esc: cancel")
		return placeCenter(m.width, m.height, renderModalBox(m.width, "Rename figure", body))
	case modalConfirmDelete:
		body := fmt.Sprintf("Delete %q? This cannot be undone.", m.scr.fields.Name)
		return placeCenter(m.width, m.height, renderConfirmModal(m.width, "Delete figure", body, "Delete", "Cancel", m.confirmFocus))
	}
	return out
}

func (m appModel) viewHeader() string {
	title := lipgloss.NewStyle().Bold(true).Render("figdesk")
	busy := ""
	if m.pending > 0 {
		busy = "  …"
	}
	meta := styleMuted().Render(fmt.Sprintf("  %s  sort: %s  %d figures%s",
		m.server, m.ctl.Sort(), len(m.scr.tiles), busy))
	return normalizePane(title+meta, m.width, headerLines)
}

func (m appModel) viewFooter() string {
	help := styleMuted().Render("arrows/hjkl: move  enter/click: open  n: by name  u: by date  r: refresh  q: quit")
	return normalizePane(m.scr.notice+"\n"+help, m.width, footerLines)
}

func (m appModel) viewGrid() string {
	h := max(m.height-headerLines-footerLines, 0)
	if len(m.scr.tiles) == 0 {
		return normalizePane(styleMuted().Render("No figures. r: refresh"), m.width, h)
	}

	cols := gridColumns(m.width)
	rows := grid.Layout(m.scr.tiles, cols)
	end := min(m.gridTop+gridRows(m.height), len(rows))

	var lines []string
	for r := m.gridTop; r < end; r++ {
		cells := make([]string, 0, len(rows[r]))
		for c, t := range rows[r] {
			cells = append(cells, renderTile(t, r*cols+c == m.cursor))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return normalizePane(strings.Join(lines, "\n"), m.width, h)
}

func renderTile(t grid.Tile, selected bool) string {
	inner := tileWidth - 2
	border := colorTileBorder
	label := lipgloss.NewStyle().Bold(true)
	if selected {
		border = colorTileFocus
		label = label.Foreground(colorSelectedFg).Background(colorSelectedBg)
	}
	body := strings.Join([]string{
		label.Render(normalizePane(t.Label, inner, 1)),
		styleMuted().Render(normalizePane("#"+t.ID.String(), inner, 1)),
		styleMuted().Render(normalizePane(t.ImageURL, inner, 1)),
	}, "\n")
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Render(body)
}

func (m appModel) viewOverlay() string {
	r := overlayRect(m.width, m.height)
	inner := r.w - 4
	f := m.scr.fields

	lines := []string{
		lipgloss.NewStyle().Bold(true).Render(f.Name) + styleMuted().Render("  #"+f.ID.String()),
		styleMuted().Render(fmt.Sprintf("created %s   updated %s", dash(f.Created), dash(f.Updated))),
		styleMuted().Render("image " + f.ImageURL),
	}
	if m.scr.errText != "" {
		lines = append(lines, styleErrorBanner().Width(inner).Render(m.scr.errText+"   (ctrl+x: dismiss)"))
	} else {
		lines = append(lines, "")
	}
	lines = append(lines, m.viewTabs(), "")

	switch m.tab {
	case tabCanvas:
		lines = append(lines, m.canvas.view(inner))
	case tabCode:
		lines = append(lines, m.code.View())
		if m.completion != nil {
			lines = append(lines, m.completion.view(inner))
		}
	case tabData:
		lines = append(lines, m.data.View())
	}

	body := normalizePane(strings.Join(lines, "\n"), inner, r.h-4)
	help := normalizePane(styleMuted().Render(m.overlayHelp()), inner, 1)
	notice := normalizePane(m.scr.notice, inner, 1)
	content := strings.Join([]string{body, notice, help}, "\n")

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAccent).
		Padding(0, 1).
		Render(normalizePane(content, inner, r.h-2))
}

func (m appModel) viewTabs() string {
	active := lipgloss.NewStyle().Bold(true).Foreground(colorAccentFg).Background(colorAccent).Padding(0, 1)
	idle := lipgloss.NewStyle().Foreground(colorSurfaceFg).Background(colorControlBg).Padding(0, 1)
	parts := make([]string, 0, tabCount)
	for i := tab(0); i < tabCount; i++ {
		label := tabLabels[i]
		if i == tabCode && m.code.mode != "" {
			label += " (" + m.code.mode + ")"
		}
		if i == m.tab {
			parts = append(parts, active.Render(label))
		} else {
			parts = append(parts, idle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m appModel) overlayHelp() string {
	common := "tab: switch  esc: close  ctrl+r: rename  ctrl+d: delete  ctrl+l/ctrl+p: csv/pdf  ctrl+y: copy url"
	switch m.tab {
	case tabCode:
		return "ctrl+s: submit  ctrl+space: complete  ctrl+e: $EDITOR  " + common
	case tabData:
		return "up/down: scroll  " + common
	}
	return common
}

// renderAt draws box with its top-left corner at r on a blank screen.
func (m appModel) renderAt(r rect, box string) string {
	pad := strings.Repeat(" ", r.x)
	lines := make([]string, 0, m.height)
	for i := 0; i < r.y; i++ {
		lines = append(lines, "")
	}
	for _, ln := range strings.Split(box, "\n") {
		lines = append(lines, pad+ln)
	}
	return normalizePane(strings.Join(lines, "\n"), m.width, m.height)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
