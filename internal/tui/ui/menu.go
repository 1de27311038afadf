package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Menu displays the keyboard hints of the front page on one line.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a new menu hint bar.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders hints.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, FormatHints(m.theme, hints))
}

// FormatHints renders hints as "<key> description" pairs.
func FormatHints(theme *Theme, hints []MenuHint) string {
	kc := Tag(theme.MenuKeyColor)
	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, fmt.Sprintf("[%s::b]<%s>[-:-:-] %s", kc, tview.Escape(h.Key), h.Description))
	}
	return " " + strings.Join(parts, "  ")
}
