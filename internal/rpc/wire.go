package rpc

import (
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"google.golang.org/protobuf/types/known/structpb"
)

// Args reads request and response fields from a structpb.Struct.
type Args struct {
	s *structpb.Struct
}

// Read wraps s. A nil struct reads as empty.
func Read(s *structpb.Struct) Args {
	return Args{s: s}
}

func (a Args) field(name string) *structpb.Value {
	if a.s == nil {
		return nil
	}
	return a.s.GetFields()[name]
}

// String returns the string field name, or "".
func (a Args) String(name string) string { return a.field(name).GetStringValue() }

// Int returns the numeric field name truncated to int.
func (a Args) Int(name string) int { return int(a.field(name).GetNumberValue()) }

// Int64 returns the numeric field name truncated to int64.
func (a Args) Int64(name string) int64 { return int64(a.field(name).GetNumberValue()) }

// Bool returns the boolean field name.
func (a Args) Bool(name string) bool { return a.field(name).GetBoolValue() }

// Has reports whether name is present and not null.
func (a Args) Has(name string) bool {
	v := a.field(name)
	if v == nil {
		return false
	}
	_, null := v.GetKind().(*structpb.Value_NullValue)
	return !null
}

// Struct returns the nested struct field name.
func (a Args) Struct(name string) Args { return Read(a.field(name).GetStructValue()) }

// List returns the elements of list field name that are structs.
func (a Args) List(name string) []Args {
	var out []Args
	for _, v := range a.field(name).GetListValue().GetValues() {
		if s := v.GetStructValue(); s != nil {
			out = append(out, Read(s))
		}
	}
	return out
}

// Fields is a request or response under construction.
type Fields map[string]any

// Map returns f as a plain map so it can nest inside another payload.
func (f Fields) Map() map[string]any { return f }

// Struct encodes f.
func (f Fields) Struct() (*structpb.Struct, error) {
	s, err := structpb.NewStruct(f)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return s, nil
}

// Key encodes a conversation key as the nullable pair used on the wire.
func Key(k chat.Key) Fields {
	switch k := k.(type) {
	case chat.Direct:
		return Fields{"a": k.A, "b": k.B}
	case chat.GroupChat:
		return Fields{"group_id": k.ID}
	default:
		return Fields{}
	}
}

// KeyFrom decodes a key; nil if neither shape is present.
func KeyFrom(a Args) chat.Key {
	if g := a.String("group_id"); g != "" {
		return chat.GroupChat{ID: g}
	}
	x, y := a.String("a"), a.String("b")
	if x == "" || y == "" {
		return nil
	}
	return chat.NewDirect(x, y)
}

// Draft encodes an insert payload with its routing fields.
func Draft(d chat.Draft) Fields {
	receiver, group := chat.Routing(d.Key, d.SenderID)
	return Fields{
		"client_id":   d.ClientID,
		"sender_id":   d.SenderID,
		"receiver_id": receiver,
		"group_id":    group,
		"text":        d.Text,
	}
}

// DraftFrom decodes an insert payload.
func DraftFrom(a Args) chat.Draft {
	sender := a.String("sender_id")
	return chat.Draft{
		ClientID: a.String("client_id"),
		SenderID: sender,
		Key:      chat.KeyOf(sender, a.String("receiver_id"), a.String("group_id")),
		Text:     a.String("text"),
	}
}

// Row encodes a stored message.
func Row(r chat.Row) Fields {
	return Fields{
		"id":          r.ID,
		"client_id":   r.ClientID,
		"sender_id":   r.SenderID,
		"receiver_id": r.ReceiverID,
		"group_id":    r.GroupID,
		"text":        r.Text,
		"created_at":  r.CreatedAt.UnixMilli(),
	}
}

// RowFrom decodes a stored message.
func RowFrom(a Args) chat.Row {
	return chat.Row{
		ID:         a.String("id"),
		ClientID:   a.String("client_id"),
		SenderID:   a.String("sender_id"),
		ReceiverID: a.String("receiver_id"),
		GroupID:    a.String("group_id"),
		Text:       a.String("text"),
		CreatedAt:  time.UnixMilli(a.Int64("created_at")),
	}
}

// Participant encodes a participant.
func Participant(p chat.Participant) Fields {
	return Fields{"id": p.ID, "display_name": p.DisplayName, "category": p.Category}
}

// ParticipantFrom decodes a participant.
func ParticipantFrom(a Args) chat.Participant {
	return chat.Participant{ID: a.String("id"), DisplayName: a.String("display_name"), Category: a.String("category")}
}

// Group encodes a group.
func Group(g chat.Group) Fields {
	return Fields{
		"id":          g.ID,
		"name":        g.Name,
		"description": g.Description,
		"creator_id":  g.CreatorID,
		"created_at":  g.CreatedAt.UnixMilli(),
	}
}

// GroupFrom decodes a group.
func GroupFrom(a Args) chat.Group {
	return chat.Group{
		ID:          a.String("id"),
		Name:        a.String("name"),
		Description: a.String("description"),
		CreatorID:   a.String("creator_id"),
		CreatedAt:   time.UnixMilli(a.Int64("created_at")),
	}
}

// Reaction encodes a reaction state.
func Reaction(st chat.ReactionState) Fields {
	return Fields{"subject_id": st.SubjectID, "present": st.Present, "count": st.Count}
}

// ReactionFrom decodes a reaction state.
func ReactionFrom(a Args) chat.ReactionState {
	return chat.ReactionState{SubjectID: a.String("subject_id"), Present: a.Bool("present"), Count: a.Int("count")}
}

// List converts encoded items into a structpb-compatible list.
func List[T any](items []T, enc func(T) Fields) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		out = append(out, enc(it).Map())
	}
	return out
}
