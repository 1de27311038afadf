package chat

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Target is something a conversation can be opened with: a Participant or
// a Group.
type Target interface {
	isTarget()
}

// Conversation is a resolved chat target as seen by the local user.
type Conversation struct {
	Key   Key
	Self  string
	Title string
}

// Resolve maps the selected target to a conversation. A nil target yields
// ok == false, the idle state. Resolution never fails.
func Resolve(self string, t Target) (Conversation, bool) {
	switch t := t.(type) {
	case Participant:
		return Conversation{Key: NewDirect(self, t.ID), Self: self, Title: t.DisplayName}, true
	case *Participant:
		if t == nil {
			return Conversation{}, false
		}
		return Resolve(self, *t)
	case Group:
		return Conversation{Key: GroupChat{ID: t.ID}, Self: self, Title: t.Name}, true
	case *Group:
		if t == nil {
			return Conversation{}, false
		}
		return Resolve(self, *t)
	default:
		return Conversation{}, false
	}
}

// Matches reports whether m belongs to the conversation. For a direct pair
// this accepts (me, other) and (other, me); for a group it compares the
// group id.
func (c Conversation) Matches(m Message) bool {
	if c.Key == nil || m.Key == nil {
		return false
	}
	return m.Key == c.Key
}

// Filter is the storage query for this conversation's history.
func (c Conversation) Filter() Filter {
	return Filter{Key: c.Key}
}

// NormalizeText returns the canonical form used when comparing message
// bodies.
func NormalizeText(s string) string {
	return norm.NFC.String(s)
}

// SameText compares two message bodies after normalisation.
func SameText(a, b string) bool {
	return NormalizeText(a) == NormalizeText(b)
}

// Blank reports whether text has no visible content.
func Blank(text string) bool {
	return strings.TrimSpace(text) == ""
}
