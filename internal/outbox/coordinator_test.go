package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockWriter records calls and fails the first failures of them.
type mockWriter struct {
	mu       sync.Mutex
	calls    []chat.Draft
	failures []error
}

func (m *mockWriter) InsertMessage(_ context.Context, d chat.Draft) (chat.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, d)
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return chat.Row{}, err
	}
	return chat.RowOf("srv-1", d, time.UnixMilli(2000)), nil
}

// lossyWriter commits through the store and then reports the first lost
// writes as connection errors.
type lossyWriter struct {
	db   *store.DB
	lost int
}

func (w *lossyWriter) InsertMessage(ctx context.Context, d chat.Draft) (chat.Row, error) {
	row, err := w.db.InsertMessage(ctx, d)
	if err != nil {
		return chat.Row{}, err
	}
	if w.lost > 0 {
		w.lost--
		return chat.Row{}, errors.New("connection reset")
	}
	return row, nil
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var submitAt = time.UnixMilli(1000)

func fixedNow() time.Time { return submitAt }

func direct(t *testing.T) chat.Conversation {
	t.Helper()
	conv, ok := chat.Resolve("me", chat.Participant{ID: "bob"})
	require.True(t, ok)
	return conv
}

func TestPrepareBuildsPendingMessage(t *testing.T) {
	c := NewCoordinator(&mockWriter{}, nil, Options{Now: fixedNow}, nil)

	m, err := c.Prepare(direct(t), "  café  ")
	require.NoError(t, err)

	assert.Equal(t, chat.Pending, m.State)
	assert.Equal(t, m.TempID, m.ID)
	assert.Contains(t, m.TempID, TempPrefix)
	assert.Equal(t, "café", m.Text)
	assert.Equal(t, "me", m.SenderID)
	assert.True(t, m.CreatedAt.Equal(submitAt))

	st, ok := c.State(m.TempID)
	require.True(t, ok)
	assert.Equal(t, Pending, st.Phase)
}

func TestPrepareValidation(t *testing.T) {
	c := NewCoordinator(&mockWriter{}, nil, Options{}, nil)

	tests := []struct {
		name string
		conv chat.Conversation
		text string
	}{
		{"blank text", direct(t), " \t\n"},
		{"no conversation", chat.Conversation{Self: "me"}, "hi"},
		{"no identity", chat.Conversation{Key: chat.GroupChat{ID: "g"}}, "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Prepare(tt.conv, tt.text)
			assert.True(t, chat.IsValidation(err), "got %v", err)
		})
	}
	assert.Empty(t, c.entries)
}

func TestDeliverAcksThroughStore(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, id := range []string{"me", "bob"} {
		require.NoError(t, db.UpsertParticipant(ctx, chat.Participant{ID: id}))
	}
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindSendAck, 10)
	defer unsub()

	logger, _ := zap.NewDevelopment()
	c := NewCoordinator(db, b, Options{}, logger)

	m, err := c.Prepare(direct(t), "hello")
	require.NoError(t, err)
	confirmed, err := c.Deliver(ctx, m)
	require.NoError(t, err)

	assert.Equal(t, chat.Confirmed, confirmed.State)
	assert.Equal(t, m.TempID, confirmed.TempID)
	assert.NotEqual(t, m.TempID, confirmed.ID)

	rows, err := db.QueryMessages(ctx, chat.Filter{Key: chat.NewDirect("me", "bob")})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "bob", rows[0].ReceiverID)
	assert.Empty(t, rows[0].GroupID)

	select {
	case evt := <-ch:
		ack, ok := evt.Payload.(Ack)
		require.True(t, ok, "payload type = %T", evt.Payload)
		assert.Equal(t, m.TempID, ack.TempID)
		assert.Equal(t, rows[0].ID, ack.Message.ID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for ack")
	}

	_, tracked := c.State(m.TempID)
	assert.False(t, tracked)
}

func TestDeliverGroupRouting(t *testing.T) {
	w := &mockWriter{}
	c := NewCoordinator(w, nil, Options{}, nil)
	conv, _ := chat.Resolve("me", chat.Group{ID: "g1", Name: "Team"})

	m, err := c.Prepare(conv, "hi team")
	require.NoError(t, err)
	confirmed, err := c.Deliver(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, chat.Key(chat.GroupChat{ID: "g1"}), confirmed.Key)
	require.Len(t, w.calls, 1)
	receiver, group := chat.Routing(w.calls[0].Key, "me")
	assert.Empty(t, receiver)
	assert.Equal(t, "g1", group)
}

func TestDeliverRetriesTransientOnce(t *testing.T) {
	w := &mockWriter{failures: []error{errors.New("connection reset")}}
	c := NewCoordinator(w, nil, Options{RetryBackoff: time.Millisecond}, nil)

	m, err := c.Prepare(direct(t), "hi")
	require.NoError(t, err)
	confirmed, err := c.Deliver(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", confirmed.ID)
	assert.Len(t, w.calls, 2)
}

func TestDeliverKeysInsertByTempID(t *testing.T) {
	w := &mockWriter{failures: []error{errors.New("connection reset")}}
	c := NewCoordinator(w, nil, Options{RetryBackoff: time.Millisecond}, nil)

	m, err := c.Prepare(direct(t), "hi")
	require.NoError(t, err)
	_, err = c.Deliver(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, w.calls, 2)
	assert.Equal(t, m.TempID, w.calls[0].ClientID)
	assert.Equal(t, m.TempID, w.calls[1].ClientID)
}

func TestDeliverRetryAfterLostResponseKeepsOneRow(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, id := range []string{"me", "bob"} {
		require.NoError(t, db.UpsertParticipant(ctx, chat.Participant{ID: id}))
	}
	c := NewCoordinator(&lossyWriter{db: db, lost: 1}, nil, Options{RetryBackoff: time.Millisecond}, nil)

	m, err := c.Prepare(direct(t), "hi")
	require.NoError(t, err)
	confirmed, err := c.Deliver(ctx, m)
	require.NoError(t, err)

	rows, err := db.QueryMessages(ctx, chat.Filter{Key: chat.NewDirect("me", "bob")})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, rows[0].ID, confirmed.ID)
	assert.Equal(t, m.TempID, rows[0].ClientID)
}

func TestRetryFailedAfterLostResponsesKeepsOneRow(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, id := range []string{"me", "bob"} {
		require.NoError(t, db.UpsertParticipant(ctx, chat.Participant{ID: id}))
	}
	c := NewCoordinator(&lossyWriter{db: db, lost: 2}, nil, Options{RetryBackoff: time.Millisecond}, nil)

	m, err := c.Prepare(direct(t), "hi")
	require.NoError(t, err)
	_, err = c.Deliver(ctx, m)
	require.Error(t, err)
	assert.True(t, chat.IsTransient(err))

	again, err := c.Retry(m.TempID)
	require.NoError(t, err)
	confirmed, err := c.Deliver(ctx, again)
	require.NoError(t, err)

	n, err := db.MessageCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	rows, err := db.QueryMessages(ctx, chat.Filter{Key: chat.NewDirect("me", "bob")})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, rows[0].ID, confirmed.ID)
}

func TestDeliverFailsAfterSecondTransient(t *testing.T) {
	w := &mockWriter{failures: []error{errors.New("down"), errors.New("still down")}}
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindSendFailed, 10)
	defer unsub()
	c := NewCoordinator(w, b, Options{RetryBackoff: time.Millisecond}, nil)

	m, err := c.Prepare(direct(t), "hi")
	require.NoError(t, err)
	failed, err := c.Deliver(context.Background(), m)
	require.Error(t, err)
	assert.True(t, chat.IsTransient(err))
	assert.Equal(t, chat.Failed, failed.State)
	assert.Len(t, w.calls, 2)

	st, ok := c.State(m.TempID)
	require.True(t, ok)
	assert.Equal(t, Failed, st.Phase)
	assert.Equal(t, err, st.Err)

	evt := <-ch
	assert.Equal(t, m.TempID, evt.Payload.(Failure).TempID)
}

func TestDeliverRejectedIsPermanent(t *testing.T) {
	w := &mockWriter{failures: []error{chat.ErrRejected}}
	c := NewCoordinator(w, nil, Options{RetryBackoff: time.Millisecond}, nil)

	m, err := c.Prepare(direct(t), "hi")
	require.NoError(t, err)
	_, err = c.Deliver(context.Background(), m)
	assert.True(t, chat.IsPermanent(err), "got %v", err)
	assert.Len(t, w.calls, 1, "permanent failures are not retried")
}

func TestRetryFailed(t *testing.T) {
	w := &mockWriter{failures: []error{chat.ErrRejected}}
	now := submitAt
	c := NewCoordinator(w, nil, Options{Now: func() time.Time { return now }}, nil)

	m, err := c.Prepare(direct(t), "hi")
	require.NoError(t, err)
	_, err = c.Deliver(context.Background(), m)
	require.Error(t, err)

	now = submitAt.Add(time.Minute)
	again, err := c.Retry(m.TempID)
	require.NoError(t, err)
	assert.Equal(t, chat.Pending, again.State)
	assert.True(t, again.CreatedAt.Equal(now))

	_, err = c.Retry(m.TempID)
	assert.True(t, chat.IsValidation(err), "retrying a pending send must fail")

	confirmed, err := c.Deliver(context.Background(), again)
	require.NoError(t, err)
	assert.Equal(t, m.TempID, confirmed.TempID)
}

func TestForget(t *testing.T) {
	c := NewCoordinator(&mockWriter{}, nil, Options{}, nil)
	m, err := c.Prepare(direct(t), "hi")
	require.NoError(t, err)
	c.Forget(m.TempID)
	_, ok := c.State(m.TempID)
	assert.False(t, ok)
	_, err = c.Retry(m.TempID)
	assert.Error(t, err)
}
