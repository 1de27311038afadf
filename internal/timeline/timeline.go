// Package timeline maintains the ordered, de-duplicated message list shown
// for the selected conversation.
package timeline

import (
	"sort"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
)

const (
	// DefaultConfirmWindow bounds how long after submit a remote message may
	// still confirm a pending entry.
	DefaultConfirmWindow = 10 * time.Second
	// DefaultClockSkew tolerates server timestamps slightly earlier than
	// the local submit time.
	DefaultClockSkew = 2 * time.Second
)

// Outcome describes what an input did to the list.
type Outcome int

const (
	// Dropped means the input was already represented.
	Dropped Outcome = iota
	// Inserted means a new confirmed entry was added.
	Inserted
	// Reconciled means a local entry was replaced by its confirmation.
	Reconciled
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Reconciled:
		return "reconciled"
	default:
		return "dropped"
	}
}

// Options configures reconciliation.
type Options struct {
	Self          string
	ConfirmWindow time.Duration
	ClockSkew     time.Duration
}

// Timeline is the merge buffer for one conversation. It is not safe for
// concurrent use; the owning session serialises access.
type Timeline struct {
	opts    Options
	entries []chat.Message
}

// New creates an empty timeline.
func New(opts Options) *Timeline {
	if opts.ConfirmWindow <= 0 {
		opts.ConfirmWindow = DefaultConfirmWindow
	}
	if opts.ClockSkew < 0 {
		opts.ClockSkew = 0
	}
	return &Timeline{opts: opts}
}

// Reset empties the list.
func (t *Timeline) Reset() {
	t.entries = nil
}

// Len returns the number of displayed entries.
func (t *Timeline) Len() int {
	return len(t.entries)
}

// Snapshot returns a copy of the displayed list.
func (t *Timeline) Snapshot() []chat.Message {
	out := make([]chat.Message, len(t.entries))
	copy(out, t.entries)
	return out
}

// Find looks an entry up by server id or temporary id.
func (t *Timeline) Find(id string) (chat.Message, bool) {
	if i := t.indexOfID(id); i >= 0 {
		return t.entries[i], true
	}
	if i := t.indexOfTemp(id); i >= 0 {
		return t.entries[i], true
	}
	return chat.Message{}, false
}

// Load applies a history result. The baseline is authoritative for the ids
// it contains; confirmed entries it lacks stay, and local entries are
// reconciled against it. Loading the same baseline twice is a no-op.
func (t *Timeline) Load(baseline []chat.Message) {
	claimed := make(map[string]string, len(t.entries))
	for _, e := range t.entries {
		if !e.Local() && e.TempID != "" {
			claimed[e.ID] = e.TempID
		}
	}

	seen := make(map[string]bool, len(baseline)+len(t.entries))
	next := make([]chat.Message, 0, len(baseline)+len(t.entries))
	for _, m := range baseline {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		m.State = chat.Confirmed
		m.TempID = claimed[m.ID]
		next = append(next, m)
	}

	var locals []chat.Message
	for _, e := range t.entries {
		switch {
		case e.Local():
			locals = append(locals, e)
		case !seen[e.ID]:
			seen[e.ID] = true
			next = append(next, e)
		}
	}

	sort.SliceStable(next, func(i, j int) bool { return less(next[i], next[j]) })
	t.entries = next

	for _, l := range locals {
		if i := t.claimFor(l); i >= 0 {
			t.entries[i].TempID = l.TempID
			continue
		}
		t.insertSorted(l)
	}
}

// AppendPending adds a locally composed message. It returns false if the
// temporary id is already present.
func (t *Timeline) AppendPending(m chat.Message) bool {
	if m.TempID == "" || t.indexOfTemp(m.TempID) >= 0 {
		return false
	}
	m.ID = m.TempID
	m.State = chat.Pending
	t.insertSorted(m)
	return true
}

// ApplyRemote merges a confirmed message observed outside the local send
// path (live feed). It confirms a matching local entry in place, inserts a
// new id at its ordered position, or drops a duplicate.
func (t *Timeline) ApplyRemote(m chat.Message) Outcome {
	if m.ID == "" || t.indexOfID(m.ID) >= 0 {
		return Dropped
	}
	m.State = chat.Confirmed
	m.TempID = ""
	if i := t.matchLocal(m); i >= 0 {
		t.replaceAt(i, m)
		return Reconciled
	}
	t.insertSorted(m)
	return Inserted
}

// Confirm applies the durable write acknowledgement for tempID. If the
// entry was already confirmed with another id, m is merged as a remote
// message so that it can confirm a sibling entry instead.
func (t *Timeline) Confirm(tempID string, m chat.Message) Outcome {
	if m.ID == "" || t.indexOfID(m.ID) >= 0 {
		return Dropped
	}
	if i := t.indexOfTemp(tempID); i >= 0 && t.entries[i].Local() {
		m.State = chat.Confirmed
		t.replaceAt(i, m)
		return Reconciled
	}
	return t.ApplyRemote(m)
}

// MarkFailed flags a pending entry as failed.
func (t *Timeline) MarkFailed(tempID string) bool {
	i := t.indexOfTemp(tempID)
	if i < 0 || t.entries[i].State != chat.Pending {
		return false
	}
	t.entries[i].State = chat.Failed
	return true
}

// MarkPending moves a failed entry back to pending with a new submit time.
func (t *Timeline) MarkPending(tempID string, at time.Time) bool {
	i := t.indexOfTemp(tempID)
	if i < 0 || t.entries[i].State != chat.Failed {
		return false
	}
	m := t.entries[i]
	t.removeAt(i)
	m.State = chat.Pending
	m.CreatedAt = at
	t.insertSorted(m)
	return true
}

// Remove drops a local entry. Confirmed entries are never removed.
func (t *Timeline) Remove(tempID string) bool {
	i := t.indexOfTemp(tempID)
	if i < 0 || !t.entries[i].Local() {
		return false
	}
	t.removeAt(i)
	return true
}

// matchLocal finds the earliest local entry that m confirms.
func (t *Timeline) matchLocal(m chat.Message) int {
	if m.SenderID != t.opts.Self {
		return -1
	}
	for i, e := range t.entries {
		if !e.Local() || e.SenderID != m.SenderID {
			continue
		}
		if chat.SameText(e.Text, m.Text) && t.within(e.CreatedAt, m.CreatedAt) {
			return i
		}
	}
	return -1
}

// claimFor finds the earliest unclaimed confirmed entry that confirms the
// local entry l.
func (t *Timeline) claimFor(l chat.Message) int {
	if l.SenderID != t.opts.Self {
		return -1
	}
	for i, e := range t.entries {
		if e.Local() || e.TempID != "" || e.SenderID != l.SenderID {
			continue
		}
		if chat.SameText(e.Text, l.Text) && t.within(l.CreatedAt, e.CreatedAt) {
			return i
		}
	}
	return -1
}

func (t *Timeline) within(submitted, at time.Time) bool {
	return !at.Before(submitted.Add(-t.opts.ClockSkew)) && !at.After(submitted.Add(t.opts.ConfirmWindow))
}

// replaceAt swaps the local entry at i for its confirmation, keeping the
// position unless the server timestamp breaks the order.
func (t *Timeline) replaceAt(i int, m chat.Message) {
	m.TempID = t.entries[i].TempID
	t.entries[i] = m
	if (i > 0 && less(m, t.entries[i-1])) || (i < len(t.entries)-1 && less(t.entries[i+1], m)) {
		t.removeAt(i)
		t.insertSorted(m)
	}
}

func (t *Timeline) insertSorted(m chat.Message) {
	i := sort.Search(len(t.entries), func(i int) bool { return less(m, t.entries[i]) })
	t.entries = append(t.entries, chat.Message{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = m
}

func (t *Timeline) removeAt(i int) {
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
}

func (t *Timeline) indexOfID(id string) int {
	for i, e := range t.entries {
		if e.ID == id && !e.Local() {
			return i
		}
	}
	return -1
}

func (t *Timeline) indexOfTemp(tempID string) int {
	if tempID == "" {
		return -1
	}
	for i, e := range t.entries {
		if e.TempID == tempID {
			return i
		}
	}
	return -1
}

func less(a, b chat.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Sorted reports whether msgs is ordered by (createdAt, id).
func Sorted(msgs []chat.Message) bool {
	for i := 1; i < len(msgs); i++ {
		if less(msgs[i], msgs[i-1]) {
			return false
		}
	}
	return true
}
