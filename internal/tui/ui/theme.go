package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/status"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor         tcell.Color
	FgColor         tcell.Color
	MutedColor      tcell.Color
	BorderColor     tcell.Color
	TableHeaderFg   tcell.Color
	TableHeaderBg   tcell.Color
	TableCursorFg   tcell.Color
	TableCursorBg   tcell.Color
	MenuKeyColor    tcell.Color
	TitleColor      tcell.Color
	SelfColor       tcell.Color
	PendingColor    tcell.Color
	FailedColor     tcell.Color
	FlashInfoColor  tcell.Color
	FlashErrColor   tcell.Color
	StateColors     map[status.State]tcell.Color
	SectionHeaderFg tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:         tcell.ColorBlack,
		FgColor:         tcell.ColorCadetBlue,
		MutedColor:      tcell.ColorGray,
		BorderColor:     tcell.ColorDodgerBlue,
		TableHeaderFg:   tcell.ColorWhite,
		TableHeaderBg:   tcell.ColorBlack,
		TableCursorFg:   tcell.ColorBlack,
		TableCursorBg:   tcell.ColorAqua,
		MenuKeyColor:    tcell.ColorDodgerBlue,
		TitleColor:      tcell.ColorFuchsia,
		SelfColor:       tcell.ColorLightSkyBlue,
		PendingColor:    tcell.ColorGray,
		FailedColor:     tcell.ColorOrangeRed,
		FlashInfoColor:  tcell.ColorNavajoWhite,
		FlashErrColor:   tcell.ColorOrangeRed,
		SectionHeaderFg: tcell.ColorPapayaWhip,
		StateColors: map[status.State]tcell.Color{
			status.Idle:         tcell.ColorGray,
			status.Loading:      tcell.ColorYellow,
			status.Live:         tcell.ColorGreen,
			status.Reconnecting: tcell.ColorOrange,
			status.Degraded:     tcell.ColorOrangeRed,
		},
	}
}

// StateColor returns the banner color of a sync state.
func (t *Theme) StateColor(s status.State) tcell.Color {
	if c, ok := t.StateColors[s]; ok {
		return c
	}
	return t.FgColor
}

// Tag formats c as a tview color tag value.
func Tag(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
