// Package engine implements the conversation session: the single owner of
// the selected conversation, its live binding and its displayed timeline.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/history"
	"github.com/matheus3301/chatsync/internal/live"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/reaction"
	"github.com/matheus3301/chatsync/internal/realtime"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/timeline"
	"go.uber.org/zap"
)

// ErrSuperseded is returned by SelectConversation when a newer selection
// replaced it before its history was applied.
var ErrSuperseded = errors.New("selection superseded")

// Store is the storage a session reads and writes through.
type Store interface {
	history.Source
	outbox.Writer
	reaction.Store
}

// FailedPolicy decides what happens to a send whose write failed.
type FailedPolicy string

const (
	// KeepFailed leaves the entry visible as failed until retried or
	// discarded.
	KeepFailed FailedPolicy = "keep"
	// RemoveFailed drops the entry once the error has been reported.
	RemoveFailed FailedPolicy = "remove"
)

// Options configures a session.
type Options struct {
	Self          string
	ConfirmWindow time.Duration
	ClockSkew     time.Duration
	RetryBackoff  time.Duration
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	FailedPolicy  FailedPolicy
	Now           func() time.Time
}

// View is the payload of timeline.changed events.
type View struct {
	Epoch        uint64
	Conversation chat.Conversation
	Active       bool
	Messages     []chat.Message
}

// Session is the conversation context of one local user.
type Session struct {
	opts   Options
	bus    *bus.Bus
	log    *zap.Logger
	status *status.Machine

	loader    *history.Loader
	outbox    *outbox.Coordinator
	reactions *reaction.Adapter
	router    *live.Router

	// switchMu serialises selection changes. It is not held while history
	// is fetched.
	switchMu sync.Mutex

	mu         sync.Mutex
	epoch      uint64
	conv       chat.Conversation
	active     bool
	linkDown   bool
	tl         *timeline.Timeline
	cancelLoad context.CancelFunc
}

// New creates an idle session. b may be nil when nobody watches.
func New(store Store, feed realtime.Feed, b *bus.Bus, opts Options, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if b == nil {
		b = bus.New()
	}
	if opts.FailedPolicy == "" {
		opts.FailedPolicy = KeepFailed
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		opts:   opts,
		bus:    b,
		log:    log,
		status: status.NewMachine(b),
		loader: history.NewLoader(store, log.Named("history")),
		outbox: outbox.NewCoordinator(store, b, outbox.Options{
			RetryBackoff: opts.RetryBackoff,
			Now:          opts.Now,
		}, log.Named("outbox")),
		reactions: reaction.NewAdapter(store, log.Named("reaction")),
		tl: timeline.New(timeline.Options{
			Self:          opts.Self,
			ConfirmWindow: opts.ConfirmWindow,
			ClockSkew:     opts.ClockSkew,
		}),
	}
	s.router = live.NewRouter(feed, s.onEvent, live.Hooks{
		OnStatus:       s.onStatus,
		OnResubscribed: s.onResubscribed,
	}, live.Options{
		ReconnectBase: opts.ReconnectBase,
		ReconnectMax:  opts.ReconnectMax,
	}, log.Named("live"))
	return s
}

// Self returns the local user id.
func (s *Session) Self() string { return s.opts.Self }

// Bus returns the bus the session publishes on.
func (s *Session) Bus() *bus.Bus { return s.bus }

// Status returns the sync state and the detail of its last change.
func (s *Session) Status() (status.State, string) {
	return s.status.Current(), s.status.Detail()
}

// Current returns the selected conversation.
func (s *Session) Current() (chat.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv, s.active
}

// Visible returns the ordered list to display.
func (s *Session) Visible() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tl.Snapshot()
}

// Watch returns a channel of views and a function that stops the watch.
// Views conflate: a reader that falls behind skips intermediate views but
// always ends on the current one. buffer sizes the change subscription.
func (s *Session) Watch(buffer int) (<-chan View, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch, unsub := s.bus.Subscribe(bus.KindTimelineChanged, buffer)
	out := make(chan View, 1)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		for {
			select {
			case <-stop:
				return
			case <-ch:
				// Events only signal a change. The view is read afresh so a
				// change event dropped by the bus is still reflected.
				s.mu.Lock()
				v := s.viewLocked()
				s.mu.Unlock()
				select {
				case out <- v:
				default:
					// Replace the undelivered view. This goroutine is the only
					// sender, so the slot is free after the drain.
					select {
					case <-out:
					default:
					}
					out <- v
				}
			}
		}
	}()
	var once sync.Once
	return out, func() {
		once.Do(func() {
			unsub()
			close(stop)
			<-done
		})
	}
}

// SelectConversation makes target the active conversation and blocks until
// its history is applied. A nil target returns the session to idle. If a
// newer selection arrives meanwhile, this call returns ErrSuperseded and
// its results are discarded.
//
// A history failure leaves the conversation selected in DEGRADED state;
// live events keep flowing.
func (s *Session) SelectConversation(ctx context.Context, target chat.Target) error {
	conv, ok := chat.Resolve(s.opts.Self, target)

	// Abort an older selection still subscribing or loading so it releases
	// switchMu quickly.
	s.mu.Lock()
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	s.mu.Unlock()

	s.switchMu.Lock()
	s.mu.Lock()
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	s.epoch++
	epoch := s.epoch
	s.conv, s.active = conv, ok
	s.linkDown = false
	s.tl.Reset()
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancelLoad = cancel
	if ok {
		s.setStatusLocked(status.Loading, "")
	} else {
		s.setStatusLocked(status.Idle, "")
	}
	s.publishLocked()
	s.mu.Unlock()

	if !ok {
		s.router.Unbind()
		s.switchMu.Unlock()
		cancel()
		s.log.Info("conversation cleared")
		return nil
	}

	bindErr := s.router.Bind(loadCtx, epoch, conv)
	s.switchMu.Unlock()

	var msgs []chat.Message
	err := loadCtx.Err()
	if err == nil {
		msgs, err = s.loader.Load(loadCtx, conv)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		s.log.Debug("discarding stale history", zap.Stringer("key", conv.Key), zap.Uint64("epoch", epoch))
		return ErrSuperseded
	}
	if err != nil {
		s.setStatusLocked(status.Degraded, err.Error())
		return err
	}

	s.tl.Load(msgs)
	switch {
	case bindErr != nil:
		s.linkDown = true
		s.setStatusLocked(status.Reconnecting, bindErr.Error())
	case s.linkDown:
		s.setStatusLocked(status.Reconnecting, live.ErrConnectionLost.Error())
	default:
		s.setStatusLocked(status.Live, "")
	}
	s.publishLocked()
	s.log.Info("conversation selected", zap.Stringer("key", conv.Key), zap.Int("messages", len(msgs)))
	return nil
}

// Submit sends text to the selected conversation. The pending entry is
// visible immediately; Submit returns after the durable write completed.
// A validation failure changes nothing.
func (s *Session) Submit(ctx context.Context, text string) (chat.Message, error) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return chat.Message{}, chat.Validation("submit", "no conversation selected")
	}
	m, err := s.outbox.Prepare(s.conv, text)
	if err != nil {
		s.mu.Unlock()
		return chat.Message{}, err
	}
	epoch := s.epoch
	s.tl.AppendPending(m)
	s.publishLocked()
	s.mu.Unlock()

	return s.deliver(ctx, epoch, m)
}

// RetryFailed re-delivers a failed send with a fresh submit time.
func (s *Session) RetryFailed(ctx context.Context, tempID string) (chat.Message, error) {
	s.mu.Lock()
	e, ok := s.tl.Find(tempID)
	if !ok || e.State != chat.Failed {
		s.mu.Unlock()
		return chat.Message{}, chat.Validation("retry", "no failed message "+tempID)
	}
	m, err := s.outbox.Retry(tempID)
	if err != nil {
		s.mu.Unlock()
		return chat.Message{}, err
	}
	epoch := s.epoch
	s.tl.MarkPending(tempID, m.CreatedAt)
	s.publishLocked()
	s.mu.Unlock()

	return s.deliver(ctx, epoch, m)
}

// Discard removes a local entry that has not been confirmed.
func (s *Session) Discard(tempID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tl.Remove(tempID) {
		return chat.Validation("discard", "no local message "+tempID)
	}
	s.outbox.Forget(tempID)
	s.publishLocked()
	return nil
}

// ToggleReaction flips the local user's like on subjectID. liked is what
// the UI currently shows.
func (s *Session) ToggleReaction(ctx context.Context, subjectID string, liked bool) (chat.ReactionState, error) {
	return s.reactions.Toggle(ctx, subjectID, s.opts.Self, liked)
}

// Reaction reads the local user's like on subjectID.
func (s *Session) Reaction(ctx context.Context, subjectID string) (chat.ReactionState, error) {
	return s.reactions.Get(ctx, subjectID, s.opts.Self)
}

// Close unbinds the live subscription and cancels any in-flight load.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	s.mu.Unlock()
	s.router.Unbind()
}

func (s *Session) deliver(ctx context.Context, epoch uint64, m chat.Message) (chat.Message, error) {
	confirmed, err := s.outbox.Deliver(ctx, m)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		// The conversation changed; the row is durable and shows up in the
		// history of its own conversation.
		return confirmed, err
	}
	if err != nil {
		s.tl.MarkFailed(m.TempID)
		if s.opts.FailedPolicy == RemoveFailed {
			s.tl.Remove(m.TempID)
			s.outbox.Forget(m.TempID)
		}
		s.publishLocked()
		return confirmed, err
	}
	if s.tl.Confirm(m.TempID, confirmed) != timeline.Dropped {
		s.publishLocked()
	}
	return confirmed, nil
}

func (s *Session) onEvent(epoch uint64, m chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || !s.active || !s.conv.Matches(m) {
		return
	}
	switch s.tl.ApplyRemote(m) {
	case timeline.Dropped:
		return
	case timeline.Reconciled:
		s.forgetSettledLocked()
	}
	s.publishLocked()
}

func (s *Session) onStatus(epoch uint64, st status.State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || !s.active {
		return
	}
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	s.linkDown = st == status.Reconnecting
	s.setStatusLocked(st, detail)
}

// onResubscribed re-runs the history load after a connection gap.
func (s *Session) onResubscribed(ctx context.Context, epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch || !s.active {
		s.mu.Unlock()
		return
	}
	conv := s.conv
	s.mu.Unlock()

	msgs, err := s.loader.Load(ctx, conv)

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || ctx.Err() != nil {
		return
	}
	s.linkDown = false
	if err != nil {
		s.setStatusLocked(status.Degraded, err.Error())
		return
	}
	s.tl.Load(msgs)
	s.forgetSettledLocked()
	s.setStatusLocked(status.Live, "")
	s.publishLocked()
}

func (s *Session) setStatusLocked(st status.State, detail string) {
	if err := s.status.TransitionWith(st, detail); err != nil {
		s.log.Debug("status transition ignored", zap.Error(err))
	}
}

func (s *Session) publishLocked() {
	s.bus.Emit(bus.KindTimelineChanged, s.viewLocked())
}

func (s *Session) viewLocked() View {
	return View{
		Epoch:        s.epoch,
		Conversation: s.conv,
		Active:       s.active,
		Messages:     s.tl.Snapshot(),
	}
}

// forgetSettledLocked stops tracking failed sends that a late confirmation
// has reconciled.
func (s *Session) forgetSettledLocked() {
	for _, m := range s.tl.Snapshot() {
		if m.TempID == "" || m.Local() {
			continue
		}
		if st, ok := s.outbox.State(m.TempID); ok && st.Phase == outbox.Failed {
			s.outbox.Forget(m.TempID)
			s.log.Debug("failed send reconciled", zap.String("temp_id", m.TempID), zap.String("id", m.ID))
		}
	}
}
