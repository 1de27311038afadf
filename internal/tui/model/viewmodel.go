package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/engine"
	"github.com/matheus3301/chatsync/internal/status"
)

const flashFor = 5 * time.Second

var (
	// ErrNoConversation is returned by actions that need an open conversation.
	ErrNoConversation = errors.New("no conversation open")
	// ErrNothingFailed is returned by retry and discard when no send failed.
	ErrNothingFailed = errors.New("no failed message")
	// ErrNothingToLike is returned when the thread has no confirmed message.
	ErrNothingToLike = errors.New("no confirmed message to like")
)

// Directory lists what the sidebar offers.
type Directory interface {
	ListParticipants(ctx context.Context, excludingID string, limit int) ([]chat.Participant, error)
	ListInbox(ctx context.Context, selfID string) ([]chat.Participant, error)
	ListGroups(ctx context.Context, limit int) ([]chat.Group, error)
}

// Session is the conversation engine driven by the TUI.
type Session interface {
	Self() string
	SelectConversation(ctx context.Context, target chat.Target) error
	Submit(ctx context.Context, text string) (chat.Message, error)
	RetryFailed(ctx context.Context, tempID string) (chat.Message, error)
	Discard(tempID string) error
	ToggleReaction(ctx context.Context, subjectID string, liked bool) (chat.ReactionState, error)
	Reaction(ctx context.Context, subjectID string) (chat.ReactionState, error)
	Status() (status.State, string)
}

// Section groups sidebar entries.
type Section string

const (
	SectionInbox  Section = "Inbox"
	SectionPeople Section = "People"
	SectionGroups Section = "Groups"
)

// Entry is one selectable conversation in the sidebar.
type Entry struct {
	Section Section
	Label   string
	Target  chat.Target
}

// ViewModel caches the directory and the state of the open conversation,
// and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	dir   Directory
	sess  Session
	limit int

	entries  []Entry
	names    map[string]string
	open     *Entry
	view     engine.View
	floor    uint64
	state    status.State
	detail   string
	reaction *chat.ReactionState
	Flash    Flash

	refreshCh chan struct{}
}

// NewViewModel creates a view model over a directory and a session. limit
// bounds the people and groups sections.
func NewViewModel(dir Directory, sess Session, limit int) *ViewModel {
	st, detail := sess.Status()
	return &ViewModel{
		dir:       dir,
		sess:      sess,
		limit:     limit,
		names:     map[string]string{},
		state:     st,
		detail:    detail,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadDirectory fetches the inbox, the other participants and the groups.
func (vm *ViewModel) LoadDirectory(ctx context.Context) error {
	self := vm.sess.Self()
	inbox, err := vm.dir.ListInbox(ctx, self)
	if err != nil {
		return err
	}
	people, err := vm.dir.ListParticipants(ctx, self, vm.limit)
	if err != nil {
		return err
	}
	groups, err := vm.dir.ListGroups(ctx, vm.limit)
	if err != nil {
		return err
	}

	names := map[string]string{}
	seen := map[string]bool{}
	var entries []Entry
	for _, p := range inbox {
		seen[p.ID] = true
		names[p.ID] = labelOf(p)
		entries = append(entries, Entry{Section: SectionInbox, Label: labelOf(p), Target: p})
	}
	for _, p := range people {
		names[p.ID] = labelOf(p)
		if seen[p.ID] {
			continue
		}
		entries = append(entries, Entry{Section: SectionPeople, Label: labelOf(p), Target: p})
	}
	for _, g := range groups {
		entries = append(entries, Entry{Section: SectionGroups, Label: "#" + g.Name, Target: g})
	}

	vm.mu.Lock()
	vm.entries = entries
	for id, n := range names {
		vm.names[id] = n
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

func labelOf(p chat.Participant) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}

// Lookup finds an entry by label, participant id or "group:<id>".
func (vm *ViewModel) Lookup(query string) (Entry, bool) {
	query = strings.TrimSpace(query)
	groupID, isGroup := strings.CutPrefix(query, "group:")
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, e := range vm.entries {
		switch t := e.Target.(type) {
		case chat.Participant:
			if !isGroup && (t.ID == query || strings.EqualFold(e.Label, query)) {
				return e, true
			}
		case chat.Group:
			if isGroup && t.ID == groupID {
				return e, true
			}
			if strings.EqualFold(e.Label, query) || strings.EqualFold(t.Name, query) {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// Open selects e and blocks until its history is applied. A selection
// superseded by a newer one is not an error.
func (vm *ViewModel) Open(ctx context.Context, e Entry) error {
	vm.mu.Lock()
	vm.open = &e
	vm.floor = max(vm.floor, vm.view.Epoch)
	vm.view = engine.View{Epoch: vm.floor}
	vm.reaction = nil
	vm.mu.Unlock()
	vm.signalRefresh()

	err := vm.sess.SelectConversation(ctx, e.Target)
	if errors.Is(err, engine.ErrSuperseded) {
		return nil
	}
	if err != nil {
		vm.Flash.Error("open "+e.Label+": "+err.Error(), flashFor)
		vm.signalRefresh()
	}
	return err
}

// ApplyView records a timeline change published by the session. Views of
// a conversation left behind by Open are ignored.
func (vm *ViewModel) ApplyView(v engine.View) {
	vm.mu.Lock()
	if v.Epoch <= vm.floor || v.Epoch < vm.view.Epoch {
		vm.mu.Unlock()
		return
	}
	vm.view = v
	vm.mu.Unlock()
	vm.signalRefresh()
}

// ApplyStatus records a sync state change.
func (vm *ViewModel) ApplyStatus(c status.StatusChange) {
	vm.mu.Lock()
	vm.state = c.To
	vm.detail = c.Detail
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Send submits text to the open conversation.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	if _, ok := vm.Title(); !ok {
		return ErrNoConversation
	}
	_, err := vm.sess.Submit(ctx, text)
	if err != nil {
		vm.Flash.Error(describe("send", err), flashFor)
		vm.signalRefresh()
	}
	return err
}

// Retry resends the most recent failed message.
func (vm *ViewModel) Retry(ctx context.Context) error {
	m, ok := vm.lastWhere(func(m chat.Message) bool { return m.State == chat.Failed })
	if !ok {
		return ErrNothingFailed
	}
	if _, err := vm.sess.RetryFailed(ctx, m.TempID); err != nil {
		vm.Flash.Error(describe("retry", err), flashFor)
		vm.signalRefresh()
		return err
	}
	return nil
}

// Discard drops the most recent failed message.
func (vm *ViewModel) Discard() error {
	m, ok := vm.lastWhere(func(m chat.Message) bool { return m.State == chat.Failed })
	if !ok {
		return ErrNothingFailed
	}
	return vm.sess.Discard(m.TempID)
}

// ToggleLike flips the local user's like on the latest confirmed message.
func (vm *ViewModel) ToggleLike(ctx context.Context) error {
	m, ok := vm.lastWhere(func(m chat.Message) bool { return m.State == chat.Confirmed })
	if !ok {
		return ErrNothingToLike
	}
	cur, err := vm.sess.Reaction(ctx, m.ID)
	if err != nil {
		vm.Flash.Error(describe("like", err), flashFor)
		vm.signalRefresh()
		return err
	}
	next, err := vm.sess.ToggleReaction(ctx, m.ID, !cur.Present)
	if err != nil {
		vm.Flash.Error(describe("like", err), flashFor)
		vm.signalRefresh()
		return err
	}
	vm.mu.Lock()
	vm.reaction = &next
	vm.mu.Unlock()
	verb := "unliked"
	if next.Present {
		verb = "liked"
	}
	vm.Flash.Set(fmt.Sprintf("%s (%d)", verb, next.Count), flashFor)
	vm.signalRefresh()
	return nil
}

func (vm *ViewModel) lastWhere(match func(chat.Message) bool) (chat.Message, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.open == nil {
		return chat.Message{}, false
	}
	msgs := vm.view.Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if match(msgs[i]) {
			return msgs[i], true
		}
	}
	return chat.Message{}, false
}

// Notify shows a transient notice.
func (vm *ViewModel) Notify(msg string) {
	vm.Flash.Set(msg, flashFor)
	vm.signalRefresh()
}

func describe(op string, err error) string {
	if k := chat.KindOf(err); k != "" {
		return fmt.Sprintf("%s failed (%s)", op, k)
	}
	return op + " failed: " + err.Error()
}

// Entries returns a snapshot of the sidebar.
func (vm *ViewModel) Entries() []Entry {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]Entry(nil), vm.entries...)
}

// Messages returns a snapshot of the open thread.
func (vm *ViewModel) Messages() []chat.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]chat.Message(nil), vm.view.Messages...)
}

// Title returns the label of the open conversation.
func (vm *ViewModel) Title() (string, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.open == nil {
		return "", false
	}
	return vm.open.Label, true
}

// Status returns the last known sync state and its detail.
func (vm *ViewModel) Status() (status.State, string) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.state, vm.detail
}

// Reaction returns the like state of the last toggle, if any.
func (vm *ViewModel) Reaction() (chat.ReactionState, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.reaction == nil {
		return chat.ReactionState{}, false
	}
	return *vm.reaction, true
}

// NameOf returns the display name of a participant id.
func (vm *ViewModel) NameOf(id string) string {
	if id == vm.sess.Self() {
		return "You"
	}
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if n, ok := vm.names[id]; ok {
		return n
	}
	return id
}
