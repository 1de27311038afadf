package chat

// Key identifies a conversation. It is either Direct or GroupChat; a nil
// Key means no conversation is selected.
//
// Keys are comparable: two keys are equal iff they denote the same pair or
// the same group.
type Key interface {
	isKey()
	String() string
}

// Direct is an unordered participant pair. Use NewDirect so that A <= B.
type Direct struct {
	A, B string
}

// GroupChat is a group conversation.
type GroupChat struct {
	ID string
}

func (Direct) isKey()    {}
func (GroupChat) isKey() {}

// NewDirect returns the canonical key for the pair.
func NewDirect(x, y string) Direct {
	if y < x {
		x, y = y, x
	}
	return Direct{A: x, B: y}
}

func (d Direct) String() string { return "direct:" + d.A + "|" + d.B }

// Other returns the member of the pair that is not self.
func (d Direct) Other(self string) string {
	if d.A == self {
		return d.B
	}
	return d.A
}

// Has reports whether id is one of the pair.
func (d Direct) Has(id string) bool {
	return d.A == id || d.B == id
}

func (g GroupChat) String() string { return "group:" + g.ID }

// KeyOf derives the key from storage routing fields. It returns nil when
// the routing is invalid (both or neither of receiver and group set).
func KeyOf(senderID, receiverID, groupID string) Key {
	switch {
	case groupID != "" && receiverID == "":
		return GroupChat{ID: groupID}
	case receiverID != "" && groupID == "":
		return NewDirect(senderID, receiverID)
	default:
		return nil
	}
}

// Routing serialises a key into the nullable receiver/group pair used at
// the storage boundary. Exactly one of the results is non-empty for a
// non-nil key.
func Routing(k Key, senderID string) (receiverID, groupID string) {
	switch k := k.(type) {
	case Direct:
		return k.Other(senderID), ""
	case GroupChat:
		return "", k.ID
	default:
		return "", ""
	}
}
