package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/engine"
	"github.com/matheus3301/chatsync/internal/status"
)

type fakeDirectory struct {
	inbox  []chat.Participant
	people []chat.Participant
	groups []chat.Group
	err    error
}

func (d *fakeDirectory) ListParticipants(_ context.Context, excludingID string, _ int) ([]chat.Participant, error) {
	var out []chat.Participant
	for _, p := range d.people {
		if p.ID != excludingID {
			out = append(out, p)
		}
	}
	return out, d.err
}

func (d *fakeDirectory) ListInbox(context.Context, string) ([]chat.Participant, error) {
	return d.inbox, d.err
}

func (d *fakeDirectory) ListGroups(context.Context, int) ([]chat.Group, error) {
	return d.groups, d.err
}

type fakeSession struct {
	selected  []chat.Target
	selectErr error
	submitted []string
	submitErr error
	retried   []string
	discarded []string
	liked     map[string]bool
}

func (s *fakeSession) Self() string { return "alice" }

func (s *fakeSession) SelectConversation(_ context.Context, t chat.Target) error {
	s.selected = append(s.selected, t)
	return s.selectErr
}

func (s *fakeSession) Submit(_ context.Context, text string) (chat.Message, error) {
	if s.submitErr != nil {
		return chat.Message{}, s.submitErr
	}
	s.submitted = append(s.submitted, text)
	return chat.Message{Text: text, State: chat.Pending}, nil
}

func (s *fakeSession) RetryFailed(_ context.Context, tempID string) (chat.Message, error) {
	s.retried = append(s.retried, tempID)
	return chat.Message{TempID: tempID, State: chat.Pending}, nil
}

func (s *fakeSession) Discard(tempID string) error {
	s.discarded = append(s.discarded, tempID)
	return nil
}

func (s *fakeSession) ToggleReaction(_ context.Context, id string, liked bool) (chat.ReactionState, error) {
	if s.liked == nil {
		s.liked = map[string]bool{}
	}
	s.liked[id] = liked
	count := 0
	if liked {
		count = 1
	}
	return chat.ReactionState{SubjectID: id, Present: liked, Count: count}, nil
}

func (s *fakeSession) Reaction(_ context.Context, id string) (chat.ReactionState, error) {
	return chat.ReactionState{SubjectID: id, Present: s.liked[id]}, nil
}

func (s *fakeSession) Status() (status.State, string) { return status.Idle, "" }

var (
	bob   = chat.Participant{ID: "bob", DisplayName: "Bob"}
	carol = chat.Participant{ID: "carol", DisplayName: "Carol"}
	club  = chat.Group{ID: "g1", Name: "club"}
)

func newTestModel(t *testing.T) (*ViewModel, *fakeSession) {
	t.Helper()
	sess := &fakeSession{}
	dir := &fakeDirectory{
		inbox:  []chat.Participant{bob},
		people: []chat.Participant{bob, carol, {ID: "alice", DisplayName: "Alice"}},
		groups: []chat.Group{club},
	}
	vm := NewViewModel(dir, sess, 8)
	if err := vm.LoadDirectory(context.Background()); err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	return vm, sess
}

func TestLoadDirectorySections(t *testing.T) {
	vm, _ := newTestModel(t)

	entries := vm.Entries()
	want := []struct {
		section Section
		label   string
	}{
		{SectionInbox, "Bob"},
		{SectionPeople, "Carol"},
		{SectionGroups, "#club"},
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %+v", entries)
	}
	for i, w := range want {
		if entries[i].Section != w.section || entries[i].Label != w.label {
			t.Errorf("entries[%d] = %s/%s, want %s/%s", i, entries[i].Section, entries[i].Label, w.section, w.label)
		}
	}

	select {
	case <-vm.RefreshCh():
	default:
		t.Error("expected a refresh signal")
	}
}

func TestLoadDirectoryError(t *testing.T) {
	vm := NewViewModel(&fakeDirectory{err: errors.New("down")}, &fakeSession{}, 8)
	if err := vm.LoadDirectory(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(vm.Entries()) != 0 {
		t.Error("entries should stay empty")
	}
}

func TestLookup(t *testing.T) {
	vm, _ := newTestModel(t)

	tests := []struct {
		query string
		label string
		found bool
	}{
		{"bob", "Bob", true},
		{"carol", "Carol", true},
		{"CAROL", "Carol", true},
		{"group:g1", "#club", true},
		{"#club", "#club", true},
		{"club", "#club", true},
		{"group:nope", "", false},
		{"dave", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			e, ok := vm.Lookup(tt.query)
			if ok != tt.found {
				t.Fatalf("found = %v, want %v", ok, tt.found)
			}
			if ok && e.Label != tt.label {
				t.Errorf("label = %q, want %q", e.Label, tt.label)
			}
		})
	}
}

func TestOpenSupersededIsNotAnError(t *testing.T) {
	vm, sess := newTestModel(t)
	sess.selectErr = engine.ErrSuperseded
	e, _ := vm.Lookup("bob")
	if err := vm.Open(context.Background(), e); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if title, ok := vm.Title(); !ok || title != "Bob" {
		t.Errorf("title = %q, %v", title, ok)
	}
}

func TestOpenFailureFlashes(t *testing.T) {
	vm, sess := newTestModel(t)
	sess.selectErr = chat.Classify("load history", errors.New("connection refused"))
	e, _ := vm.Lookup("bob")
	if err := vm.Open(context.Background(), e); err == nil {
		t.Fatal("expected error")
	}
	msg, level := vm.Flash.Get()
	if msg == "" || level != FlashError {
		t.Errorf("flash = %q (%d)", msg, level)
	}
}

func TestViewsFromPreviousConversationAreIgnored(t *testing.T) {
	vm, _ := newTestModel(t)
	ctx := context.Background()

	bobEntry, _ := vm.Lookup("bob")
	_ = vm.Open(ctx, bobEntry)
	vm.ApplyView(engine.View{Epoch: 1, Messages: []chat.Message{{ID: "m1", Text: "hi bob", State: chat.Confirmed}}})
	if got := vm.Messages(); len(got) != 1 {
		t.Fatalf("messages = %d, want 1", len(got))
	}

	clubEntry, _ := vm.Lookup("#club")
	_ = vm.Open(ctx, clubEntry)
	if got := vm.Messages(); len(got) != 0 {
		t.Fatalf("thread not cleared on open: %d", len(got))
	}
	vm.ApplyView(engine.View{Epoch: 1, Messages: []chat.Message{{ID: "m2", Text: "late", State: chat.Confirmed}}})
	if got := vm.Messages(); len(got) != 0 {
		t.Errorf("stale view applied: %+v", got)
	}
	vm.ApplyView(engine.View{Epoch: 2, Messages: []chat.Message{{ID: "m3", Text: "club", State: chat.Confirmed}}})
	if got := vm.Messages(); len(got) != 1 || got[0].ID != "m3" {
		t.Errorf("messages = %+v", got)
	}
}

func TestSendRequiresConversation(t *testing.T) {
	vm, sess := newTestModel(t)
	if err := vm.Send(context.Background(), "hello"); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("err = %v, want ErrNoConversation", err)
	}
	if len(sess.submitted) != 0 {
		t.Error("nothing should be submitted")
	}
}

func TestSendFailureFlashesKind(t *testing.T) {
	vm, sess := newTestModel(t)
	e, _ := vm.Lookup("bob")
	_ = vm.Open(context.Background(), e)
	sess.submitErr = chat.Validation("submit", "empty message")

	if err := vm.Send(context.Background(), "  "); err == nil {
		t.Fatal("expected error")
	}
	msg, level := vm.Flash.Get()
	if msg != "send failed (VALIDATION)" || level != FlashError {
		t.Errorf("flash = %q (%d)", msg, level)
	}
}

func TestRetryAndDiscardPickLatestFailed(t *testing.T) {
	vm, sess := newTestModel(t)
	ctx := context.Background()
	e, _ := vm.Lookup("bob")
	_ = vm.Open(ctx, e)

	if err := vm.Retry(ctx); !errors.Is(err, ErrNothingFailed) {
		t.Fatalf("err = %v, want ErrNothingFailed", err)
	}

	vm.ApplyView(engine.View{Epoch: 1, Messages: []chat.Message{
		{ID: "t1", TempID: "t1", State: chat.Failed},
		{ID: "m1", State: chat.Confirmed},
		{ID: "t2", TempID: "t2", State: chat.Failed},
	}})
	if err := vm.Retry(ctx); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if err := vm.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if len(sess.retried) != 1 || sess.retried[0] != "t2" {
		t.Errorf("retried = %v", sess.retried)
	}
	if len(sess.discarded) != 1 || sess.discarded[0] != "t2" {
		t.Errorf("discarded = %v", sess.discarded)
	}
}

func TestToggleLike(t *testing.T) {
	vm, _ := newTestModel(t)
	ctx := context.Background()
	e, _ := vm.Lookup("bob")
	_ = vm.Open(ctx, e)

	if err := vm.ToggleLike(ctx); !errors.Is(err, ErrNothingToLike) {
		t.Fatalf("err = %v, want ErrNothingToLike", err)
	}

	vm.ApplyView(engine.View{Epoch: 1, Messages: []chat.Message{
		{ID: "m1", State: chat.Confirmed},
		{ID: "t1", TempID: "t1", State: chat.Pending},
	}})
	if err := vm.ToggleLike(ctx); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	r, ok := vm.Reaction()
	if !ok || !r.Present || r.SubjectID != "m1" {
		t.Errorf("reaction = %+v, %v", r, ok)
	}
	if msg, _ := vm.Flash.Get(); msg != "liked (1)" {
		t.Errorf("flash = %q", msg)
	}

	if err := vm.ToggleLike(ctx); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if r, _ := vm.Reaction(); r.Present {
		t.Error("second toggle should remove the like")
	}
}

func TestApplyStatusAndNames(t *testing.T) {
	vm, _ := newTestModel(t)
	vm.ApplyStatus(status.StatusChange{From: status.Loading, To: status.Degraded, Detail: "history unavailable"})
	st, detail := vm.Status()
	if st != status.Degraded || detail != "history unavailable" {
		t.Errorf("status = %s %q", st, detail)
	}

	if got := vm.NameOf("alice"); got != "You" {
		t.Errorf("NameOf(self) = %q", got)
	}
	if got := vm.NameOf("carol"); got != "Carol" {
		t.Errorf("NameOf(carol) = %q", got)
	}
	if got := vm.NameOf("zed"); got != "zed" {
		t.Errorf("NameOf(unknown) = %q", got)
	}
}

func TestFlashExpires(t *testing.T) {
	now := time.Unix(100, 0)
	f := &Flash{now: func() time.Time { return now }}
	f.Set("saved", time.Second)
	if msg, level := f.Get(); msg != "saved" || level != FlashInfo {
		t.Fatalf("Get = %q (%d)", msg, level)
	}
	now = now.Add(2 * time.Second)
	if msg, _ := f.Get(); msg != "" {
		t.Errorf("expired flash = %q", msg)
	}
}
