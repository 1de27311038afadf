package history

import (
	"slices"
	"strings"

	"github.com/matheus3301/chatsync/internal/chat"
)

// sortMessages enforces (createdAt, id) order even if the source returns
// equal timestamps in a different tie order.
func sortMessages(msgs []chat.Message) {
	slices.SortStableFunc(msgs, func(a, b chat.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
