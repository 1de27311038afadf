// Package history fetches the persisted backlog of a conversation.
package history

import (
	"context"
	"errors"

	"github.com/matheus3301/chatsync/internal/chat"
	"go.uber.org/zap"
)

// Source is the storage query the loader depends on.
type Source interface {
	QueryMessages(ctx context.Context, f chat.Filter) ([]chat.Row, error)
}

// Loader fetches the ordered history of one conversation.
type Loader struct {
	src Source
	log *zap.Logger
}

// NewLoader creates a loader over src.
func NewLoader(src Source, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{src: src, log: log}
}

// Load returns every persisted message of conv ordered by (createdAt, id).
// Storage failures are classified as TransientIO; cancellation is returned
// as ctx.Err() so the caller can tell a superseded load from a failure.
func (l *Loader) Load(ctx context.Context, conv chat.Conversation) ([]chat.Message, error) {
	if conv.Key == nil {
		return nil, chat.Validation("history.load", "no conversation selected")
	}
	rows, err := l.src.QueryMessages(ctx, conv.Filter())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		l.log.Warn("history load failed", zap.Stringer("key", conv.Key), zap.Error(err))
		return nil, &chat.Error{Kind: chat.KindTransientIO, Op: "history.load", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msgs := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		m := r.Message()
		// Storage routing must agree with the filter; anything else is a
		// collaborator bug and is skipped rather than shown in the wrong thread.
		if !conv.Matches(m) {
			l.log.Warn("history row outside conversation", zap.String("id", r.ID), zap.Stringer("key", conv.Key))
			continue
		}
		msgs = append(msgs, m)
	}
	sortMessages(msgs)
	l.log.Debug("history loaded", zap.Stringer("key", conv.Key), zap.Int("count", len(msgs)))
	return msgs, nil
}
