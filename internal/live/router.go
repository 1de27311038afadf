// Package live owns the session's single subscription to the change feed
// and routes its events to the session.
package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/realtime"
	"github.com/matheus3301/chatsync/internal/status"
	"go.uber.org/zap"
)

// ErrConnectionLost is reported through OnStatus when a subscription ends
// without being cancelled.
var ErrConnectionLost = errors.New("realtime connection lost")

// Sink receives every event of the binding made at epoch. The sink decides
// whether the event still belongs to the current conversation.
type Sink func(epoch uint64, m chat.Message)

// Hooks are optional callbacks into the session.
type Hooks struct {
	// OnStatus is called when the binding's connection state changes.
	OnStatus func(epoch uint64, s status.State, err error)
	// OnResubscribed is called after a lost subscription was re-established.
	// Events may have been missed in between, so the session reloads history.
	// ctx is cancelled when the binding is replaced.
	OnResubscribed func(ctx context.Context, epoch uint64)
}

// Options tunes resubscription backoff.
type Options struct {
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

// Router keeps at most one subscription open, bound to one conversation.
type Router struct {
	feed  realtime.Feed
	sink  Sink
	hooks Hooks
	opts  Options
	log   *zap.Logger

	mu  sync.Mutex
	cur *binding
}

type binding struct {
	epoch  uint64
	conv   chat.Conversation
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRouter creates a router over feed delivering to sink.
func NewRouter(feed realtime.Feed, sink Sink, hooks Hooks, opts Options, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{feed: feed, sink: sink, hooks: hooks, opts: opts, log: log}
}

// Bind replaces the current binding. The previous subscription is closed
// and its drain goroutine has exited before the new one is opened. The
// initial subscription is opened synchronously so that history fetched
// after Bind returns cannot miss an insert.
//
// If the initial subscribe fails the binding stays in place and keeps
// retrying in the background; the error is returned classified.
func (r *Router) Bind(ctx context.Context, epoch uint64, conv chat.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()
	if err := ctx.Err(); err != nil {
		return err
	}

	sub, err := r.feed.Subscribe(ctx)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	bctx, cancel := context.WithCancel(context.Background())
	b := &binding{epoch: epoch, conv: conv, cancel: cancel, done: make(chan struct{})}
	r.cur = b
	go r.run(bctx, b, sub)

	if err != nil {
		r.log.Warn("subscribe failed", zap.Stringer("key", conv.Key), zap.Error(err))
		return &chat.Error{Kind: chat.KindTransientIO, Op: "live.subscribe", Err: err}
	}
	r.log.Debug("bound", zap.Stringer("key", conv.Key), zap.Uint64("epoch", epoch))
	return nil
}

// Unbind closes the current subscription without opening another.
func (r *Router) Unbind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Router) stopLocked() {
	if r.cur == nil {
		return
	}
	r.cur.cancel()
	<-r.cur.done
	r.cur = nil
}

func (r *Router) run(ctx context.Context, b *binding, sub realtime.Subscription) {
	defer close(b.done)

	rc := newReconnector(r.opts.ReconnectBase, r.opts.ReconnectMax)
	for {
		if sub != nil {
			lost := r.drain(ctx, b, sub)
			_ = sub.Close()
			if !lost {
				return
			}
			r.log.Info("subscription lost", zap.Stringer("key", b.conv.Key))
			r.status(b.epoch, status.Reconnecting, ErrConnectionLost)
		}

		delay := rc.nextDelay()
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		s, err := r.feed.Subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Debug("resubscribe failed", zap.Duration("delay", delay), zap.Error(err))
			r.status(b.epoch, status.Reconnecting, err)
			sub = nil
			continue
		}
		rc.reset()
		sub = s
		r.log.Info("resubscribed", zap.Stringer("key", b.conv.Key))
		if r.hooks.OnResubscribed != nil {
			r.hooks.OnResubscribed(ctx, b.epoch)
		}
	}
}

// drain forwards events until the binding is cancelled (false) or the
// subscription ends on its own (true).
func (r *Router) drain(ctx context.Context, b *binding, sub realtime.Subscription) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-sub.Done():
			return ctx.Err() == nil
		case m := <-sub.Events():
			r.sink(b.epoch, m)
		}
	}
}

func (r *Router) status(epoch uint64, s status.State, err error) {
	if r.hooks.OnStatus != nil {
		r.hooks.OnStatus(epoch, s, err)
	}
}
