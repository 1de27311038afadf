package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/client"
	"github.com/matheus3301/chatsync/internal/status"
)

const stampLayout = "2006-01-02 15:04:05"

// Names maps participant ids to display names for rendering.
type Names map[string]string

func (n Names) of(id, self string) string {
	if id == self {
		return "me"
	}
	if name := n[id]; name != "" {
		return name
	}
	return id
}

type messageJSON struct {
	ID        string    `json:"id"`
	TempID    string    `json:"temp_id,omitempty"`
	Sender    string    `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	State     string    `json:"state"`
}

func messagesJSON(msgs []chat.Message) []messageJSON {
	out := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageJSON{
			ID:        m.ID,
			TempID:    m.TempID,
			Sender:    m.SenderID,
			Text:      m.Text,
			CreatedAt: m.CreatedAt.UTC(),
			State:     string(m.State),
		})
	}
	return out
}

func marker(m chat.Message) string {
	switch m.State {
	case chat.Pending:
		return "  (sending)"
	case chat.Failed:
		return "  (failed, local id " + m.TempID + ")"
	default:
		return ""
	}
}

// renderMessage writes one line per message. Continuation lines of a
// multi-line text are indented under the text column.
func renderMessage(w io.Writer, m chat.Message, self string, names Names) {
	head := fmt.Sprintf("%s  %-12s ", m.CreatedAt.UTC().Format(stampLayout), names.of(m.SenderID, self))
	text := strings.ReplaceAll(m.Text, "\n", "\n"+strings.Repeat(" ", len(head)))
	fmt.Fprintf(w, "%s%s%s\n", head, text, marker(m))
}

// renderThread writes a conversation header followed by its messages.
func renderThread(w io.Writer, title string, st status.State, msgs []chat.Message, self string, names Names) {
	fmt.Fprintf(w, "== %s [%s] ==\n", title, st)
	if len(msgs) == 0 {
		fmt.Fprintln(w, "(no messages)")
		return
	}
	for _, m := range msgs {
		renderMessage(w, m, self, names)
	}
}

func renderParticipants(w io.Writer, ps []chat.Participant) {
	if len(ps) == 0 {
		fmt.Fprintln(w, "(nobody)")
		return
	}
	for _, p := range ps {
		line := fmt.Sprintf("%-24s %s", p.ID, p.DisplayName)
		if p.Category != "" {
			line += "  [" + p.Category + "]"
		}
		fmt.Fprintln(w, line)
	}
}

func renderGroups(w io.Writer, gs []chat.Group) {
	if len(gs) == 0 {
		fmt.Fprintln(w, "(no groups)")
		return
	}
	for _, g := range gs {
		line := fmt.Sprintf("group:%-18s %s", g.ID, g.Name)
		if g.Description != "" {
			line += " - " + g.Description
		}
		fmt.Fprintln(w, line)
	}
}

func renderStatus(w io.Writer, st client.DaemonStatus) {
	fmt.Fprintf(w, "Session:      %s\n", st.Session)
	fmt.Fprintf(w, "PID:          %d\n", st.PID)
	fmt.Fprintf(w, "Uptime:       %s\n", st.Uptime.Truncate(time.Second))
	fmt.Fprintf(w, "Participants: %d\n", st.Participants)
	fmt.Fprintf(w, "Messages:     %d\n", st.Messages)
	fmt.Fprintf(w, "Subscribers:  %d\n", st.Subscribers)
	fmt.Fprintf(w, "Dropped:      %d\n", st.Dropped)
}
