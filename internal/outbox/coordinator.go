// Package outbox turns user input into optimistic pending messages and
// performs their durable insert.
package outbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"go.uber.org/zap"
)

// TempPrefix marks locally generated message ids.
const TempPrefix = "local-"

// DefaultRetryBackoff is the pause before the single retry of a transient
// insert failure.
const DefaultRetryBackoff = 500 * time.Millisecond

// Writer performs the durable insert of a message.
type Writer interface {
	InsertMessage(ctx context.Context, d chat.Draft) (chat.Row, error)
}

// Phase is the lifecycle position of one local send.
type Phase string

const (
	Pending   Phase = "pending"
	Confirmed Phase = "confirmed"
	Failed    Phase = "failed"
)

// Ack is the payload of send.ack events.
type Ack struct {
	TempID  string
	Message chat.Message
}

// Failure is the payload of send.failed events.
type Failure struct {
	TempID string
	Err    error
}

// Options configures a Coordinator.
type Options struct {
	RetryBackoff time.Duration
	Now          func() time.Time
}

// Coordinator tracks local sends from submit to confirmation or failure.
type Coordinator struct {
	w      Writer
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	msg   chat.Message
	phase Phase
	err   error
}

// NewCoordinator creates a coordinator writing through w. b may be nil.
func NewCoordinator(w Writer, b *bus.Bus, opts Options, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		w:       w,
		bus:     b,
		logger:  logger,
		opts:    opts,
		entries: make(map[string]*entry),
	}
}

// Prepare validates input and builds the pending message for conv. It
// fails with a validation error, and records nothing, when no conversation
// is selected or the text is blank.
func (c *Coordinator) Prepare(conv chat.Conversation, text string) (chat.Message, error) {
	if conv.Key == nil {
		return chat.Message{}, chat.Validation("outbox.prepare", "no conversation selected")
	}
	if conv.Self == "" {
		return chat.Message{}, chat.Validation("outbox.prepare", "no local identity")
	}
	if chat.Blank(text) {
		return chat.Message{}, chat.Validation("outbox.prepare", "message is empty")
	}

	tempID := TempPrefix + uuid.NewString()
	m := chat.Message{
		ID:        tempID,
		TempID:    tempID,
		Key:       conv.Key,
		SenderID:  conv.Self,
		Text:      chat.NormalizeText(strings.TrimSpace(text)),
		CreatedAt: c.opts.Now(),
		State:     chat.Pending,
	}

	c.mu.Lock()
	c.entries[tempID] = &entry{msg: m, phase: Pending}
	c.mu.Unlock()
	return m, nil
}

// Deliver inserts m durably. A transient failure is retried once after
// the retry backoff. The insert is keyed by m's TempID, so a retry after a
// write that committed but lost its response yields the same row. On
// success the confirmed message carries the server id and m's TempID.
func (c *Coordinator) Deliver(ctx context.Context, m chat.Message) (chat.Message, error) {
	d := chat.Draft{ClientID: m.TempID, SenderID: m.SenderID, Key: m.Key, Text: m.Text}

	row, err := c.w.InsertMessage(ctx, d)
	if err != nil {
		err = chat.Classify("outbox.deliver", err)
		if chat.IsTransient(err) && ctx.Err() == nil {
			c.logger.Warn("insert failed, retrying", zap.String("temp_id", m.TempID), zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(c.opts.RetryBackoff):
				row, err = c.w.InsertMessage(ctx, d)
				err = chat.Classify("outbox.deliver", err)
			}
		}
	}
	if err != nil {
		m.State = chat.Failed
		err = c.fail(m, err)
		return m, err
	}

	confirmed := row.Message()
	confirmed.TempID = m.TempID
	c.set(m.TempID, confirmed, Confirmed, nil)

	c.logger.Info("message sent", zap.String("temp_id", m.TempID), zap.String("id", confirmed.ID))
	c.publish(bus.KindSendAck, Ack{TempID: m.TempID, Message: confirmed})
	return confirmed, nil
}

func (c *Coordinator) fail(m chat.Message, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = &chat.Error{Kind: chat.KindTransientIO, Op: "outbox.deliver", Err: err}
	} else if chat.IsConflict(err) {
		// Replays of the same TempID return the stored row, so a duplicate
		// that still surfaces here is a refused row.
		err = &chat.Error{Kind: chat.KindPermanentWrite, Op: "outbox.deliver", Err: err}
	}
	c.set(m.TempID, m, Failed, err)

	c.logger.Error("failed to send message", zap.String("temp_id", m.TempID), zap.Error(err))
	c.publish(bus.KindSendFailed, Failure{TempID: m.TempID, Err: err})
	return err
}

// Retry moves a failed send back to pending with a fresh submit time and
// returns the message to deliver again.
func (c *Coordinator) Retry(tempID string) (chat.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[tempID]
	if !ok || e.phase != Failed {
		return chat.Message{}, chat.Validation("outbox.retry", "no failed message "+tempID)
	}
	e.msg.State = chat.Pending
	e.msg.CreatedAt = c.opts.Now()
	e.phase = Pending
	e.err = nil
	return e.msg, nil
}

// Forget drops the tracking entry of tempID.
func (c *Coordinator) Forget(tempID string) {
	c.mu.Lock()
	delete(c.entries, tempID)
	c.mu.Unlock()
}

// Status is the tracked state of one local send.
type Status struct {
	Phase Phase
	Err   error
}

// State returns the status of tempID. Confirmed and forgotten sends are not
// tracked.
func (c *Coordinator) State(tempID string) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[tempID]
	if !ok {
		return Status{}, false
	}
	return Status{Phase: e.phase, Err: e.err}, true
}

func (c *Coordinator) set(tempID string, m chat.Message, p Phase, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p == Confirmed {
		// Confirmed sends need no further tracking.
		delete(c.entries, tempID)
		return
	}
	c.entries[tempID] = &entry{msg: m, phase: p, err: err}
}

func (c *Coordinator) publish(kind string, payload any) {
	if c.bus != nil {
		c.bus.Emit(kind, payload)
	}
}
