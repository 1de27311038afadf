package views

import (
	"fmt"

	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

func (hv *HelpView) render() {
	kc := ui.Tag(hv.theme.MenuKeyColor)
	k := func(s string) string { return fmt.Sprintf("[%s]%s[-:-:-]", kc, tview.Escape(s)) }

	help := fmt.Sprintf(`
  [::b]Global Keys[-:-:-]

  %s      Command mode        %s     Cancel / Go back
  %s      Filter conversations %s    Help
  %s      Quit                %s       Reload conversations

  [::b]Conversation List[-:-:-]

  %s  Open conversation   %s  Move

  [::b]Message Thread[-:-:-]

  %s      Focus composer      %s     Like the latest message
  %s      Retry failed send   %s     Discard failed send
  %s  Send (in composer)

  [::b]Commands (: mode)[-:-:-]

  %s    Open a participant, a group name or group:<id>
  %s            Retry the latest failed send
  %s          Discard the latest failed send
  %s             Toggle like on the latest message
  %s           Reload conversations
  %s / %s      Show this help
  %s / %s      Quit application
`,
		k(":"), k("Esc"),
		k("/"), k("?"),
		k("q"), k("R"),
		k("Enter"), k("j/k"),
		k("i"), k("l"),
		k("r"), k("x"),
		k("Enter"),
		k(":open <name>"),
		k(":retry"),
		k(":discard"),
		k(":like"),
		k(":reload"),
		k(":help"), k(":h"),
		k(":quit"), k(":q"),
	)

	_, _ = fmt.Fprint(hv, help)
}
