package chat

import "time"

// Participant identifies a user.
type Participant struct {
	ID          string
	DisplayName string
	Category    string
}

// Group is a named multi-party conversation.
type Group struct {
	ID          string
	Name        string
	Description string
	CreatorID   string
	CreatedAt   time.Time
}

func (Participant) isTarget() {}
func (Group) isTarget()       {}

// DeliveryState tracks where a message is in its send lifecycle.
type DeliveryState string

const (
	Pending   DeliveryState = "pending"
	Confirmed DeliveryState = "confirmed"
	Failed    DeliveryState = "failed"
)

// Message is a single entry of a conversation.
//
// ID is server-assigned once confirmed. Local sends carry TempID from the
// moment they are composed; a pending entry uses TempID as its ID.
type Message struct {
	ID        string
	TempID    string
	Key       Key
	SenderID  string
	Text      string
	CreatedAt time.Time
	State     DeliveryState
}

// Local reports whether the message has not been confirmed yet.
func (m Message) Local() bool {
	return m.State == Pending || m.State == Failed
}

// Draft is the payload of a durable insert. ClientID, when set, makes the
// insert idempotent: a second insert with the same ClientID returns the
// row stored by the first.
type Draft struct {
	ClientID string
	SenderID string
	Key      Key
	Text     string
}

// Row is the storage shape of a message: exactly one of ReceiverID and
// GroupID is set.
type Row struct {
	ID         string
	ClientID   string
	SenderID   string
	ReceiverID string
	GroupID    string
	Text       string
	CreatedAt  time.Time
}

// Message converts a stored row into a confirmed message.
func (r Row) Message() Message {
	return Message{
		ID:        r.ID,
		Key:       KeyOf(r.SenderID, r.ReceiverID, r.GroupID),
		SenderID:  r.SenderID,
		Text:      r.Text,
		CreatedAt: r.CreatedAt,
		State:     Confirmed,
	}
}

// RowOf builds the storage row for a draft.
func RowOf(id string, d Draft, createdAt time.Time) Row {
	receiver, group := Routing(d.Key, d.SenderID)
	return Row{
		ID:         id,
		ClientID:   d.ClientID,
		SenderID:   d.SenderID,
		ReceiverID: receiver,
		GroupID:    group,
		Text:       d.Text,
		CreatedAt:  createdAt,
	}
}

// ReactionState is the durable state of a like for one participant.
type ReactionState struct {
	SubjectID string
	Present   bool
	Count     int
}

// Filter selects the persisted messages of one conversation.
type Filter struct {
	Key Key
}
