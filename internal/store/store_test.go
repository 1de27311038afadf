package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedParticipants(t *testing.T, db *DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := db.UpsertParticipant(context.Background(), chat.Participant{ID: id, DisplayName: id}); err != nil {
			t.Fatal(err)
		}
	}
}

// fixedClock returns a clock that advances by step on every call.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so run it again to check idempotency.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 3 {
		t.Errorf("version = %d, want 3 (init + reactions + client ids)", result.Version)
	}
}

func TestSchemaRejectsAmbiguousRouting(t *testing.T) {
	db := testDB(t)
	seedParticipants(t, db, "me", "bob")
	if _, err := db.InsertGroup(context.Background(), chat.Group{ID: "g1", Name: "G", CreatorID: "me"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		desc     string
		receiver any
		group    any
	}{
		{"both set", "bob", "g1"},
		{"neither set", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := db.Exec(`INSERT INTO messages (id, sender_id, receiver_id, group_id, text, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
				"x-"+tt.desc, "me", tt.receiver, tt.group, "hi", 1000)
			if err == nil {
				t.Fatal("expected CHECK constraint failure")
			}
			if !errors.Is(translate(err), chat.ErrRejected) {
				t.Errorf("translate(%v) is not ErrRejected", err)
			}
		})
	}
}

func TestInsertRowRejectsAmbiguousRouting(t *testing.T) {
	db := testDB(t)
	err := db.InsertRow(context.Background(), chat.Row{ID: "x", SenderID: "me", ReceiverID: "bob", GroupID: "g1", Text: "hi"})
	if !errors.Is(err, chat.ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
}

func TestInsertAndQueryDirect(t *testing.T) {
	db := testDB(t)
	db.now = fixedClock(time.UnixMilli(1000), time.Millisecond)
	seedParticipants(t, db, "me", "bob", "carol")
	ctx := context.Background()

	drafts := []chat.Draft{
		{SenderID: "me", Key: chat.NewDirect("me", "bob"), Text: "one"},
		{SenderID: "bob", Key: chat.NewDirect("me", "bob"), Text: "two"},
		{SenderID: "carol", Key: chat.NewDirect("carol", "bob"), Text: "elsewhere"},
		{SenderID: "me", Key: chat.NewDirect("bob", "me"), Text: "three"},
	}
	for _, d := range drafts {
		row, err := db.InsertMessage(ctx, d)
		if err != nil {
			t.Fatal(err)
		}
		if row.ID == "" || row.GroupID != "" || row.ReceiverID == "" {
			t.Errorf("row = %+v, want server id and direct routing", row)
		}
	}

	rows, err := db.QueryMessages(ctx, chat.Filter{Key: chat.NewDirect("bob", "me")})
	if err != nil {
		t.Fatal(err)
	}
	var texts []string
	for _, r := range rows {
		texts = append(texts, r.Text)
	}
	if len(texts) != 3 || texts[0] != "one" || texts[1] != "two" || texts[2] != "three" {
		t.Errorf("texts = %v, want [one two three]", texts)
	}
	if rows[1].SenderID != "bob" || rows[1].ReceiverID != "me" {
		t.Errorf("row = %+v, want bob -> me", rows[1])
	}
}

func TestInsertAndQueryGroup(t *testing.T) {
	db := testDB(t)
	seedParticipants(t, db, "me", "bob")
	ctx := context.Background()

	g, err := db.InsertGroup(ctx, chat.Group{Name: "Team", Description: "d", CreatorID: "me"})
	if err != nil {
		t.Fatal(err)
	}
	if g.ID == "" {
		t.Fatal("group id not assigned")
	}

	if _, err := db.InsertMessage(ctx, chat.Draft{SenderID: "bob", Key: chat.GroupChat{ID: g.ID}, Text: "hello team"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertMessage(ctx, chat.Draft{SenderID: "bob", Key: chat.NewDirect("me", "bob"), Text: "private"}); err != nil {
		t.Fatal(err)
	}

	rows, err := db.QueryMessages(ctx, chat.Filter{Key: chat.GroupChat{ID: g.ID}})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Text != "hello team" || rows[0].ReceiverID != "" {
		t.Errorf("rows = %+v, want the single group message", rows)
	}
	if k := rows[0].Message().Key; k != chat.Key(chat.GroupChat{ID: g.ID}) {
		t.Errorf("key = %v, want group", k)
	}
}

func TestInsertMessageUnknownGroupIsRejected(t *testing.T) {
	db := testDB(t)
	seedParticipants(t, db, "me")
	_, err := db.InsertMessage(context.Background(), chat.Draft{SenderID: "me", Key: chat.GroupChat{ID: "nope"}, Text: "hi"})
	if !errors.Is(err, chat.ErrRejected) {
		t.Errorf("err = %v, want ErrRejected (foreign key)", err)
	}
}

func TestInsertDuplicateIDIsDuplicate(t *testing.T) {
	db := testDB(t)
	seedParticipants(t, db, "me", "bob")
	row := chat.Row{ID: "m1", SenderID: "me", ReceiverID: "bob", Text: "hi", CreatedAt: time.UnixMilli(1000)}
	if err := db.InsertRow(context.Background(), row); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertRow(context.Background(), row); !errors.Is(err, chat.ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestInsertDraftSameClientIDReturnsStoredRow(t *testing.T) {
	db := testDB(t)
	db.now = fixedClock(time.UnixMilli(1000), time.Second)
	seedParticipants(t, db, "me", "bob")
	ctx := context.Background()
	d := chat.Draft{ClientID: "local-1", SenderID: "me", Key: chat.KeyOf("me", "bob", ""), Text: "hi"}

	first, created, err := db.InsertDraft(ctx, d)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("first insert created = false")
	}
	again, created, err := db.InsertDraft(ctx, d)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("replayed insert created = true")
	}
	if again.ID != first.ID || !again.CreatedAt.Equal(first.CreatedAt) || again.ClientID != "local-1" {
		t.Errorf("replay = %+v, want %+v", again, first)
	}

	n, err := db.MessageCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	rows, err := db.QueryMessages(ctx, chat.Filter{Key: d.Key})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ClientID != "local-1" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestInsertDraftWithoutClientIDAlwaysInserts(t *testing.T) {
	db := testDB(t)
	seedParticipants(t, db, "me", "bob")
	ctx := context.Background()
	d := chat.Draft{SenderID: "me", Key: chat.KeyOf("me", "bob", ""), Text: "hi"}
	for range 2 {
		if _, err := db.InsertMessage(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := db.MessageCount(ctx); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestParticipantUpsertKeepsKnownFields(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertParticipant(ctx, chat.Participant{ID: "j", DisplayName: "John", Category: "staff"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertParticipant(ctx, chat.Participant{ID: "j"}); err != nil {
		t.Fatal(err)
	}
	p, err := db.GetParticipant(ctx, "j")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.DisplayName != "John" || p.Category != "staff" {
		t.Errorf("got %+v, want John/staff", p)
	}

	found, err := db.FindParticipant(ctx, "John")
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.ID != "j" {
		t.Errorf("FindParticipant = %+v, want j", found)
	}

	missing, err := db.GetParticipant(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("expected nil for missing participant")
	}
}

func TestListParticipantsExcludesSelf(t *testing.T) {
	db := testDB(t)
	seedParticipants(t, db, "me", "bob", "carol")

	ps, err := db.ListParticipants(context.Background(), "me", 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 2 {
		t.Fatalf("got %d participants, want 2", len(ps))
	}
	for _, p := range ps {
		if p.ID == "me" {
			t.Error("self listed")
		}
	}
}

func TestListInbox(t *testing.T) {
	db := testDB(t)
	db.now = fixedClock(time.UnixMilli(1000), time.Second)
	seedParticipants(t, db, "me", "bob", "carol", "dave")
	ctx := context.Background()

	g, err := db.InsertGroup(ctx, chat.Group{Name: "G", CreatorID: "me"})
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range []chat.Draft{
		{SenderID: "me", Key: chat.NewDirect("me", "bob"), Text: "a"},
		{SenderID: "carol", Key: chat.NewDirect("me", "carol"), Text: "b"},
		{SenderID: "dave", Key: chat.GroupChat{ID: g.ID}, Text: "group only"},
		{SenderID: "bob", Key: chat.NewDirect("me", "bob"), Text: "c"},
	} {
		if _, err := db.InsertMessage(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	inbox, err := db.ListInbox(ctx, "me")
	if err != nil {
		t.Fatal(err)
	}
	if len(inbox) != 2 || inbox[0].ID != "bob" || inbox[1].ID != "carol" {
		t.Errorf("inbox = %+v, want [bob carol]", inbox)
	}
}

func TestReactions(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.InsertReaction(ctx, "m1", "me"); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertReaction(ctx, "m1", "me"); !errors.Is(err, chat.ErrDuplicate) {
		t.Errorf("second insert err = %v, want ErrDuplicate", err)
	}
	if err := db.InsertReaction(ctx, "m1", "bob"); err != nil {
		t.Fatal(err)
	}

	st, err := db.ReactionState(ctx, "m1", "me")
	if err != nil {
		t.Fatal(err)
	}
	if !st.Present || st.Count != 2 {
		t.Errorf("state = %+v, want present with 2", st)
	}

	if err := db.DeleteReaction(ctx, "m1", "me"); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteReaction(ctx, "m1", "me"); err != nil {
		t.Errorf("deleting absent reaction: %v", err)
	}
	st, err = db.ReactionState(ctx, "m1", "me")
	if err != nil {
		t.Fatal(err)
	}
	if st.Present || st.Count != 1 {
		t.Errorf("state = %+v, want absent with 1", st)
	}
}
