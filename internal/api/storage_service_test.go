package api

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/matheus3301/chatsync/internal/store"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type harness struct {
	conn *grpc.ClientConn
	bus  *bus.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	svc := NewStorageService("test", intsync.NewEngine(db, b, nil), b)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &harness{conn: conn, bus: b}
}

func (h *harness) call(t *testing.T, method string, req rpc.Fields) (rpc.Args, error) {
	t.Helper()
	in, err := req.Struct()
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := new(structpb.Struct)
	err = h.conn.Invoke(ctx, rpc.FullMethod(method), in, out)
	return rpc.Read(out), err
}

func (h *harness) mustCall(t *testing.T, method string, req rpc.Fields) rpc.Args {
	t.Helper()
	out, err := h.call(t, method, req)
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	return out
}

func codeOf(err error) codes.Code {
	return grpcstatus.Code(err)
}

func seed(t *testing.T, h *harness, ids ...string) {
	t.Helper()
	for _, id := range ids {
		h.mustCall(t, rpc.MethodUpsertParticipant, rpc.Participant(chat.Participant{ID: id, DisplayName: id}))
	}
}

func TestInsertAndQueryDirect(t *testing.T) {
	h := newHarness(t)
	seed(t, h, "alice", "bob")

	events, unsub := h.bus.Subscribe(bus.KindMessageInserted, 4)
	defer unsub()

	d := chat.Draft{SenderID: "alice", Key: chat.NewDirect("alice", "bob"), Text: "hi"}
	row := rpc.RowFrom(h.mustCall(t, rpc.MethodInsertMessage, rpc.Draft(d)))
	if row.ID == "" || row.ReceiverID != "bob" || row.GroupID != "" {
		t.Fatalf("unexpected row: %+v", row)
	}

	select {
	case evt := <-events:
		if got := evt.Payload.(chat.Row).ID; got != row.ID {
			t.Errorf("announced %q, want %q", got, row.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("insert was not announced")
	}

	out := h.mustCall(t, rpc.MethodQueryMessages, rpc.Key(chat.NewDirect("bob", "alice")))
	rows := out.List("rows")
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if got := rpc.RowFrom(rows[0]); got.Text != "hi" || got.CreatedAt.UnixMilli() != row.CreatedAt.UnixMilli() {
		t.Errorf("unexpected queried row: %+v", got)
	}
}

func TestInsertReplayedClientIDReturnsSameRow(t *testing.T) {
	h := newHarness(t)
	seed(t, h, "alice", "bob")

	d := chat.Draft{ClientID: "local-1", SenderID: "alice", Key: chat.NewDirect("alice", "bob"), Text: "hi"}
	first := rpc.RowFrom(h.mustCall(t, rpc.MethodInsertMessage, rpc.Draft(d)))
	again := rpc.RowFrom(h.mustCall(t, rpc.MethodInsertMessage, rpc.Draft(d)))
	if again.ID != first.ID || again.ClientID != "local-1" {
		t.Fatalf("replay = %+v, want id %q", again, first.ID)
	}

	rows := h.mustCall(t, rpc.MethodQueryMessages, rpc.Key(d.Key)).List("rows")
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
}

func TestServiceDescMatchesProto(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "proto", "chatsync", "v1", "storage.proto"))
	if err != nil {
		t.Fatal(err)
	}
	var declared []string
	for _, m := range regexp.MustCompile(`(?m)^\s*rpc (\w+)\(`).FindAllSubmatch(raw, -1) {
		declared = append(declared, string(m[1]))
	}
	var served []string
	for _, m := range StorageServiceDesc.Methods {
		served = append(served, m.MethodName)
	}
	if !slices.Equal(declared, served) {
		t.Errorf("proto declares %v, service serves %v", declared, served)
	}
	if !strings.Contains(string(raw), "service StorageService {") || rpc.ServiceName != "chatsync.v1.StorageService" {
		t.Errorf("service name drifted from %s", rpc.ServiceName)
	}
}

func TestInsertRejectsAmbiguousRouting(t *testing.T) {
	h := newHarness(t)
	seed(t, h, "alice", "bob")

	_, err := h.call(t, rpc.MethodInsertMessage, rpc.Fields{
		"sender_id":   "alice",
		"receiver_id": "bob",
		"group_id":    "g1",
		"text":        "hi",
	})
	if codeOf(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if !errors.Is(rpc.FromStatus(err), chat.ErrRejected) {
		t.Errorf("FromStatus should map to ErrRejected: %v", err)
	}
}

func TestQueryRequiresKey(t *testing.T) {
	h := newHarness(t)
	_, err := h.call(t, rpc.MethodQueryMessages, rpc.Fields{})
	if codeOf(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestIngestBatchSkipsDuplicates(t *testing.T) {
	h := newHarness(t)
	seed(t, h, "alice", "bob")

	t0 := time.UnixMilli(1_700_000_000_000)
	rows := []chat.Row{
		{ID: "m1", SenderID: "alice", ReceiverID: "bob", Text: "one", CreatedAt: t0},
		{ID: "m2", SenderID: "bob", ReceiverID: "alice", Text: "two", CreatedAt: t0.Add(time.Second)},
	}
	out := h.mustCall(t, rpc.MethodIngestBatch, rpc.Fields{"rows": rpc.List(rows, rpc.Row)})
	if n := out.Int("inserted"); n != 2 {
		t.Fatalf("inserted %d, want 2", n)
	}
	out = h.mustCall(t, rpc.MethodIngestBatch, rpc.Fields{"rows": rpc.List(rows, rpc.Row)})
	if n := out.Int("inserted"); n != 0 {
		t.Fatalf("second ingest inserted %d, want 0", n)
	}
}

func TestParticipantLookups(t *testing.T) {
	h := newHarness(t)
	seed(t, h, "alice", "bob", "carol")

	p := rpc.ParticipantFrom(h.mustCall(t, rpc.MethodGetParticipant, rpc.Fields{"id": "bob"}))
	if p.DisplayName != "bob" {
		t.Errorf("got %+v", p)
	}
	if _, err := h.call(t, rpc.MethodGetParticipant, rpc.Fields{"id": "nobody"}); codeOf(err) != codes.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
	if _, err := h.call(t, rpc.MethodFindParticipant, rpc.Fields{"display_name": "carol"}); err != nil {
		t.Errorf("find carol: %v", err)
	}

	out := h.mustCall(t, rpc.MethodListParticipants, rpc.Fields{"excluding_id": "alice", "limit": 8})
	if n := len(out.List("participants")); n != 2 {
		t.Errorf("got %d participants, want 2", n)
	}
}

func TestInboxRequiresSelf(t *testing.T) {
	h := newHarness(t)
	if _, err := h.call(t, rpc.MethodListInbox, rpc.Fields{}); codeOf(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestGroupLifecycle(t *testing.T) {
	h := newHarness(t)
	seed(t, h, "alice")

	g := rpc.GroupFrom(h.mustCall(t, rpc.MethodInsertGroup, rpc.Group(chat.Group{Name: "team", CreatorID: "alice"})))
	if g.ID == "" {
		t.Fatal("group id not assigned")
	}
	got := rpc.GroupFrom(h.mustCall(t, rpc.MethodGetGroup, rpc.Fields{"id": g.ID}))
	if got.Name != "team" {
		t.Errorf("got %+v", got)
	}
	out := h.mustCall(t, rpc.MethodListGroups, rpc.Fields{"limit": 8})
	if n := len(out.List("groups")); n != 1 {
		t.Errorf("got %d groups, want 1", n)
	}
	if _, err := h.call(t, rpc.MethodGetGroup, rpc.Fields{"id": "missing"}); codeOf(err) != codes.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestReactionDuplicateIsAlreadyExists(t *testing.T) {
	h := newHarness(t)
	seed(t, h, "alice")

	req := rpc.Fields{"subject_id": "alice", "participant_id": "alice"}
	h.mustCall(t, rpc.MethodInsertReaction, req)
	if _, err := h.call(t, rpc.MethodInsertReaction, req); codeOf(err) != codes.AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
	st := rpc.ReactionFrom(h.mustCall(t, rpc.MethodReactionState, req))
	if !st.Present || st.Count != 1 {
		t.Errorf("got %+v", st)
	}
	h.mustCall(t, rpc.MethodDeleteReaction, req)
	st = rpc.ReactionFrom(h.mustCall(t, rpc.MethodReactionState, req))
	if st.Present || st.Count != 0 {
		t.Errorf("after delete got %+v", st)
	}
}

func TestStatusReportsSession(t *testing.T) {
	h := newHarness(t)
	seed(t, h, "alice")

	out := h.mustCall(t, rpc.MethodStatus, rpc.Fields{})
	if out.String("session") != "test" {
		t.Errorf("session = %q", out.String("session"))
	}
	if out.Int64("participants") != 1 {
		t.Errorf("participants = %d", out.Int64("participants"))
	}
}
