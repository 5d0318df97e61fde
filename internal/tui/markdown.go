package tui

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
)

var (
	mdRendererMu sync.Mutex
	// Keyed by style and wrap width. WithAutoStyle can block on terminal
	// queries, so a fixed style is used and renderers are reused.
	mdRenderers = map[string]*glamour.TermRenderer{}
)

func markdownRenderer(width int) *glamour.TermRenderer {
	if width < 10 {
		width = 10
	}
	styleName := markdownStyle()
	key := styleName + ":" + strconv.Itoa(width)

	mdRendererMu.Lock()
	defer mdRendererMu.Unlock()
	if r := mdRenderers[key]; r != nil {
		return r
	}

	cfg := markdownStyleConfig(styleName)
	zero := uint(0)
	cfg.Document.Margin = &zero
	cfg.CodeBlock.Margin = &zero
	r, err := glamour.NewTermRenderer(
		glamour.WithStyles(cfg),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	mdRenderers[key] = r
	return r
}

func renderMarkdown(md string, width int) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	r := markdownRenderer(width)
	if r == nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// renderDataBlock shows tabular text verbatim inside a fenced block.
func renderDataBlock(text string, width int) string {
	if strings.TrimSpace(text) == "" {
		return styleMuted().Render("(no data)")
	}
	fence := "```"
	for strings.Contains(text, fence) {
		fence += "`"
	}
	return renderMarkdown(fence+"text\n"+strings.TrimRight(text, "\n")+"\n"+fence, width)
}

func markdownStyleConfig(styleName string) ansi.StyleConfig {
	switch strings.ToLower(strings.TrimSpace(styleName)) {
	case "light":
		cfg := styles.LightStyleConfig
		applyMarkdownPalette(&cfg, "light")
		return cfg
	default:
		cfg := styles.DarkStyleConfig
		applyMarkdownPalette(&cfg, "dark")
		return cfg
	}
}

// markdownStyle follows FIGDESK_TUI_MD_STYLE, then FIGDESK_TUI_THEME, then
// COLORFGBG, then Lip Gloss's background detection.
func markdownStyle() string {
	for _, key := range []string{"FIGDESK_TUI_MD_STYLE", "FIGDESK_TUI_THEME"} {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "light":
			return "light"
		case "dark":
			return "dark"
		}
	}
	if dark, ok := colorFGBGIsDark(os.Getenv("COLORFGBG")); ok {
		if dark {
			return "dark"
		}
		return "light"
	}
	if lipgloss.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

func applyMarkdownPalette(cfg *ansi.StyleConfig, styleName string) {
	if cfg == nil {
		return
	}
	headingColor := mdColor(colorSurfaceFg, styleName)
	cfg.Heading.Color = headingColor
	cfg.H1.Color = headingColor
	cfg.H2.Color = headingColor
	cfg.H3.Color = headingColor

	cfg.Code.Color = mdColor(colorSurfaceFg, styleName)
	cfg.CodeBlock.Color = mdColor(colorSurfaceFg, styleName)
	if cfg.CodeBlock.BackgroundColor == nil {
		cfg.CodeBlock.BackgroundColor = mdColor(colorControlBg, styleName)
	}
	cfg.Text.Color = mdColor(colorSurfaceFg, styleName)
	cfg.Strong.Color = nil
	cfg.Emph.Color = nil
}

func mdColor(c lipgloss.AdaptiveColor, styleName string) *string {
	if strings.TrimSpace(strings.ToLower(styleName)) == "light" {
		return mdStrPtr(c.Light)
	}
	return mdStrPtr(c.Dark)
}

func mdStrPtr(s string) *string { return &s }
