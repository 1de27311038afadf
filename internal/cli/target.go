package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/chatsync/internal/chat"
)

const groupPrefix = "group:"

// resolveTarget maps a command-line argument onto a chat target:
// "group:<id>" names a group, anything else a participant by id or by
// display name.
func resolveTarget(ctx context.Context, b Backend, arg string) (chat.Target, error) {
	if id, ok := strings.CutPrefix(arg, groupPrefix); ok {
		g, err := b.GetGroup(ctx, id)
		if err != nil {
			return nil, chat.Classify("resolve target", err)
		}
		if g == nil {
			return nil, chat.Validation("resolve target", fmt.Sprintf("unknown group %q", id))
		}
		return *g, nil
	}
	p, err := b.GetParticipant(ctx, arg)
	if err == nil && p == nil {
		p, err = b.FindParticipant(ctx, arg)
	}
	if err != nil {
		return nil, chat.Classify("resolve target", err)
	}
	if p == nil {
		return nil, chat.Validation("resolve target", fmt.Sprintf("unknown participant %q", arg))
	}
	return *p, nil
}

// names collects display names for the senders of a conversation.
func names(ctx context.Context, b Backend, self string, target chat.Target) Names {
	n := Names{}
	if p, ok := target.(chat.Participant); ok {
		n[p.ID] = p.DisplayName
	}
	if ps, err := b.ListParticipants(ctx, self, 0); err == nil {
		for _, p := range ps {
			n[p.ID] = p.DisplayName
		}
	}
	return n
}

func titleOf(t chat.Target) string {
	switch t := t.(type) {
	case chat.Participant:
		return t.DisplayName
	case chat.Group:
		return "#" + t.Name
	default:
		return ""
	}
}
