package views

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/tui/model"
	"github.com/matheus3301/chatsync/internal/tui/ui"
)

func sidebar() []model.Entry {
	return []model.Entry{
		{Section: model.SectionInbox, Label: "Bob", Target: chat.Participant{ID: "bob", DisplayName: "Bob"}},
		{Section: model.SectionPeople, Label: "Carol", Target: chat.Participant{ID: "carol", DisplayName: "Carol"}},
		{Section: model.SectionGroups, Label: "#club", Target: chat.Group{ID: "g1", Name: "club"}},
	}
}

func TestConversationListSectionsAreNotSelectable(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	cl.Update(sidebar())

	// Inbox header, Bob, People header, Carol, Groups header, #club.
	if got := cl.GetRowCount(); got != 6 {
		t.Fatalf("rows = %d, want 6", got)
	}
	for _, row := range []int{0, 2, 4} {
		if _, ok := cl.EntryAt(row); ok {
			t.Errorf("row %d is a header but maps to an entry", row)
		}
	}
	e, ok := cl.Selected()
	if !ok || e.Label != "Bob" {
		t.Errorf("initial selection = %+v, %v", e, ok)
	}
	if e, _ := cl.EntryAt(5); e.Label != "#club" {
		t.Errorf("row 5 = %q", e.Label)
	}
}

func TestConversationListFilter(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	cl.Update(sidebar())
	cl.SetFilter("CLU")

	if got := cl.GetRowCount(); got != 2 {
		t.Fatalf("rows = %d, want 2", got)
	}
	e, ok := cl.Selected()
	if !ok || e.Label != "#club" {
		t.Errorf("selection = %+v, %v", e, ok)
	}
	if !strings.Contains(cl.GetTitle(), "(1/3)") {
		t.Errorf("title = %q", cl.GetTitle())
	}

	cl.SetFilter("")
	if got := cl.GetRowCount(); got != 6 {
		t.Errorf("rows after clear = %d", got)
	}
}

func TestMessageThreadUpdate(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	mt.now = func() time.Time { return now }
	names := map[string]string{"alice": "You", "bob": "Bob"}
	nameOf := func(id string) string { return names[id] }

	mt.Update(nil, "alice", nameOf)
	if got := mt.Text(); !strings.Contains(got, "no messages yet") {
		t.Errorf("empty thread = %q", got)
	}

	mt.Update([]chat.Message{
		{ID: "m1", SenderID: "bob", Text: "hi", CreatedAt: now, State: chat.Confirmed},
		{ID: "t1", TempID: "t1", SenderID: "alice", Text: "hello", CreatedAt: now, State: chat.Pending},
	}, "alice", nameOf)
	got := mt.Text()
	if strings.Index(got, "Bob") > strings.Index(got, "You") {
		t.Errorf("order not kept: %q", got)
	}
	if !strings.Contains(got, "hello (sending)") {
		t.Errorf("pending marker missing: %q", got)
	}
}

func TestComposerSkipsBlankInput(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	var sent []string
	mt.SetOnSend(func(text string) { sent = append(sent, text) })

	mt.Composer().SetText("   ")
	mt.submit()
	mt.Composer().SetText("hi")
	mt.submit()

	if len(sent) != 1 || sent[0] != "hi" {
		t.Errorf("sent = %v", sent)
	}
	if mt.Composer().GetText() != "" {
		t.Error("composer not cleared after send")
	}
}

func TestStatusBarBanner(t *testing.T) {
	sb := NewStatusBar(ui.DefaultTheme())
	sb.SetSession("main", "alice")
	sb.SetState(status.Reconnecting, "realtime: connection refused")
	line := sb.GetText(true)
	for _, want := range []string{"main", "alice", "RECONNECTING", "live updates paused", "connection refused"} {
		if !strings.Contains(line, want) {
			t.Errorf("status line %q missing %q", line, want)
		}
	}

	sb.SetState(status.Live, "")
	sb.SetFlash("send failed (TRANSIENT_IO)", model.FlashError)
	line = sb.GetText(true)
	if strings.Contains(line, "paused") || !strings.Contains(line, "send failed") {
		t.Errorf("status line = %q", line)
	}
}
