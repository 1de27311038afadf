// Package realtime provides the change feed of inserted messages, both
// in-process and over a WebSocket exposed by the daemon.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
)

// Feed opens subscriptions to message insert events.
type Feed interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is one open stream of insert events.
//
// Done is closed when the stream ends, either because the connection was
// lost or because Close was called. Close returns only after no further
// event can be delivered on Events.
type Subscription interface {
	Events() <-chan chat.Message
	Done() <-chan struct{}
	Close() error
}

// Envelope types on the wire.
const (
	TypeSubscribed = "subscribed"
	TypeMessageNew = "message.new"
)

// Envelope is the JSON frame exchanged over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RowPayload is the wire form of an inserted message row.
type RowPayload struct {
	ID         string `json:"id"`
	ClientID   string `json:"client_id,omitempty"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id,omitempty"`
	GroupID    string `json:"group_id,omitempty"`
	Text       string `json:"text"`
	CreatedAt  int64  `json:"created_at"`
}

// PayloadOf converts a stored row to its wire form.
func PayloadOf(r chat.Row) RowPayload {
	return RowPayload{
		ID:         r.ID,
		ClientID:   r.ClientID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		GroupID:    r.GroupID,
		Text:       r.Text,
		CreatedAt:  r.CreatedAt.UnixMilli(),
	}
}

// Row converts the payload back to a storage row.
func (p RowPayload) Row() chat.Row {
	return chat.Row{
		ID:         p.ID,
		ClientID:   p.ClientID,
		SenderID:   p.SenderID,
		ReceiverID: p.ReceiverID,
		GroupID:    p.GroupID,
		Text:       p.Text,
		CreatedAt:  time.UnixMilli(p.CreatedAt),
	}
}
