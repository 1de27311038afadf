package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays the open conversation and its composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	onSend   func(text string)
	onCancel func()
	now      func() time.Time
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
		now:      time.Now,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			mt.submit()
		case tcell.KeyEscape:
			if mt.onCancel != nil {
				mt.onCancel()
			}
		}
	})

	return mt
}

func (mt *MessageThread) submit() {
	text := mt.composer.GetText()
	if mt.onSend == nil || strings.TrimSpace(text) == "" {
		return
	}
	mt.onSend(text)
	mt.composer.SetText("")
}

// SetTitle updates the conversation title.
func (mt *MessageThread) SetTitle(title string) {
	mt.messages.SetTitle(fmt.Sprintf(" %s ", safe(title)))
}

// SetOnSend sets the callback when the composer submits.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetOnCancel sets the callback when Esc leaves the composer.
func (mt *MessageThread) SetOnCancel(fn func()) {
	mt.onCancel = fn
}

// Update renders msgs in display order. nameOf maps sender ids to names.
func (mt *MessageThread) Update(msgs []chat.Message, self string, nameOf func(string) string) {
	mt.messages.Clear()
	if len(msgs) == 0 {
		_, _ = fmt.Fprintf(mt.messages, "[%s](no messages yet)[-]", ui.Tag(mt.theme.MutedColor))
		return
	}
	now := mt.now()
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(formatMessage(mt.theme, m, nameOf(m.SenderID), m.SenderID == self, now))
	}
	_, _ = fmt.Fprint(mt.messages, b.String())
	mt.messages.ScrollToEnd()
}

// Text returns the rendered thread without color tags.
func (mt *MessageThread) Text() string {
	return mt.messages.GetText(true)
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
