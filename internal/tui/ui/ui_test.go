package ui

import (
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/status"
)

func TestFormatHints(t *testing.T) {
	got := FormatHints(DefaultTheme(), []MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "Esc", Description: "Back"},
	})
	for _, want := range []string{"<i>[-:-:-] Compose", "<Esc>[-:-:-] Back"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatHints = %q, missing %q", got, want)
		}
	}
}

func TestStateColor(t *testing.T) {
	theme := DefaultTheme()
	if got := theme.StateColor(status.Live); got != tcell.ColorGreen {
		t.Errorf("live = %v", got)
	}
	if got := theme.StateColor(status.State("BOGUS")); got != theme.FgColor {
		t.Errorf("unknown state = %v, want foreground", got)
	}
}
