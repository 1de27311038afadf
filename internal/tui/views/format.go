package views

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// sanitizeForTerminal drops codepoints tcell renders as garbage: skin tone
// modifiers, zero width joiners and variation selectors. A modified emoji
// collapses to its base glyph.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isProblematicRune(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}

// safe prepares untrusted text for a dynamic-color tview widget.
func safe(s string) string {
	return tview.Escape(sanitizeForTerminal(s))
}

// formatTimestamp shows the clock for today and the date otherwise.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

// formatMessage renders one thread entry. Pending entries are dimmed and
// failed ones carry a marker until retried or discarded.
func formatMessage(theme *ui.Theme, m chat.Message, sender string, self bool, now time.Time) string {
	nameColor := ui.Tag(theme.FgColor)
	if self {
		nameColor = ui.Tag(theme.SelfColor)
	}
	header := fmt.Sprintf("[%s::b]%s[-:-:-] [%s]%s[-]",
		nameColor, safe(sender), ui.Tag(theme.MutedColor), formatTimestamp(m.CreatedAt, now))

	body := safe(m.Text)
	switch m.State {
	case chat.Pending:
		body = fmt.Sprintf("[%s]%s (sending)[-]", ui.Tag(theme.PendingColor), body)
	case chat.Failed:
		body = fmt.Sprintf("%s [%s::b](failed: r retry, x discard)[-:-:-]", body, ui.Tag(theme.FailedColor))
	}
	return header + "\n" + body + "\n\n"
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
