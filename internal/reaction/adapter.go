// Package reaction toggles likes idempotently and re-reads their durable
// state after every mutation.
package reaction

import (
	"context"

	"github.com/matheus3301/chatsync/internal/chat"
	"go.uber.org/zap"
)

// Store is the storage the adapter writes through.
type Store interface {
	InsertReaction(ctx context.Context, subjectID, participantID string) error
	DeleteReaction(ctx context.Context, subjectID, participantID string) error
	ReactionState(ctx context.Context, subjectID, participantID string) (chat.ReactionState, error)
}

// Adapter applies like toggles.
type Adapter struct {
	store Store
	log   *zap.Logger
}

// NewAdapter creates an adapter over store.
func NewAdapter(store Store, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{store: store, log: log}
}

// Toggle flips the like shown to the user: liked is the current UI state,
// so true removes the like and false adds it. A duplicate insert means the
// like already exists and is not an error. The returned state is read back
// from storage after the write.
func (a *Adapter) Toggle(ctx context.Context, subjectID, participantID string, liked bool) (chat.ReactionState, error) {
	if subjectID == "" || participantID == "" {
		return chat.ReactionState{}, chat.Validation("reaction.toggle", "subject and participant are required")
	}

	var err error
	if liked {
		err = a.store.DeleteReaction(ctx, subjectID, participantID)
	} else {
		err = a.store.InsertReaction(ctx, subjectID, participantID)
	}
	if err = chat.Classify("reaction.toggle", err); err != nil {
		if !chat.IsConflict(err) {
			return chat.ReactionState{}, err
		}
		a.log.Debug("like already present", zap.String("subject", subjectID), zap.String("participant", participantID))
	}

	return a.Get(ctx, subjectID, participantID)
}

// Get reads the durable like state.
func (a *Adapter) Get(ctx context.Context, subjectID, participantID string) (chat.ReactionState, error) {
	st, err := a.store.ReactionState(ctx, subjectID, participantID)
	if err != nil {
		return chat.ReactionState{}, chat.Classify("reaction.state", err)
	}
	return st, nil
}
