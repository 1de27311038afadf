package views

import (
	"fmt"

	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/tui/model"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays the session, the sync state banner and flash notices.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	session string
	self    string
	state   status.State
	detail  string
	flash   string
	level   model.FlashLevel
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme, state: status.Idle}
}

// SetSession updates the session name and local identity.
func (sb *StatusBar) SetSession(name, self string) {
	sb.session = name
	sb.self = self
	sb.render()
}

// SetState updates the sync banner.
func (sb *StatusBar) SetState(state status.State, detail string) {
	sb.state = state
	sb.detail = detail
	sb.render()
}

// SetFlash sets a temporary notice.
func (sb *StatusBar) SetFlash(msg string, level model.FlashLevel) {
	sb.flash = msg
	sb.level = level
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line())
}

func (sb *StatusBar) line() string {
	line := fmt.Sprintf(" [::b]%s[-:-:-] as %s | [%s::b]%s[-:-:-]",
		safe(sb.session), safe(sb.self), ui.Tag(sb.theme.StateColor(sb.state)), sb.state)
	switch sb.state {
	case status.Reconnecting:
		line += " live updates paused"
	case status.Degraded:
		line += " showing partial data"
	}
	if sb.detail != "" {
		line += " (" + safe(sb.detail) + ")"
	}
	if sb.flash != "" {
		color := sb.theme.FlashInfoColor
		if sb.level == model.FlashError {
			color = sb.theme.FlashErrColor
		}
		line += fmt.Sprintf(" | [%s]%s[-]", ui.Tag(color), safe(sb.flash))
	}
	return line
}
