package sync

import (
	"context"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// Engine is the daemon's write path: every message that reaches the store
// through it is announced as a message.inserted event, which feeds the
// realtime endpoint. Reads go straight to the embedded store.
type Engine struct {
	*store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		DB:     db,
		bus:    b,
		logger: logger,
	}
}

// InsertMessage stores a draft and announces the resulting row. A replayed
// draft returns the stored row without a second announcement.
func (e *Engine) InsertMessage(ctx context.Context, d chat.Draft) (chat.Row, error) {
	row, created, err := e.DB.InsertDraft(ctx, d)
	if err != nil {
		return chat.Row{}, err
	}
	if !created {
		e.logger.Debug("insert replayed", zap.String("client_id", d.ClientID), zap.String("id", row.ID))
		return row, nil
	}
	e.announce(row)
	return row, nil
}

// IngestBatch stores many rows in one transaction and announces the new
// ones after commit. Rows already stored are skipped.
func (e *Engine) IngestBatch(ctx context.Context, rows []chat.Row) (int, error) {
	inserted, err := e.DB.InsertBatch(ctx, rows)
	if err != nil {
		return 0, err
	}
	for _, r := range inserted {
		e.announce(r)
	}
	e.logger.Info("batch ingested", zap.Int("rows", len(rows)), zap.Int("inserted", len(inserted)))
	return len(inserted), nil
}

func (e *Engine) announce(r chat.Row) {
	e.bus.Emit(bus.KindMessageInserted, r)
}
