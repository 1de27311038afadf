package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/chat"
)

// InsertMessage persists a draft with a server-assigned id and timestamp.
func (db *DB) InsertMessage(ctx context.Context, d chat.Draft) (chat.Row, error) {
	row, _, err := db.InsertDraft(ctx, d)
	return row, err
}

// InsertDraft persists a draft and reports whether a new row was created.
// A draft whose ClientID is already stored returns the existing row
// unchanged.
func (db *DB) InsertDraft(ctx context.Context, d chat.Draft) (chat.Row, bool, error) {
	if d.Key == nil {
		return chat.Row{}, false, fmt.Errorf("insert message: %w: no conversation", chat.ErrRejected)
	}
	if d.ClientID != "" {
		if row, ok, err := db.messageByClientID(ctx, d.ClientID); err != nil || ok {
			return row, false, err
		}
	}
	row := chat.RowOf(uuid.NewString(), d, time.UnixMilli(db.now().UnixMilli()))
	err := db.InsertRow(ctx, row)
	if errors.Is(err, chat.ErrDuplicate) && d.ClientID != "" {
		// A concurrent insert with the same client id won the race.
		if existing, ok, lookupErr := db.messageByClientID(ctx, d.ClientID); lookupErr == nil && ok {
			return existing, false, nil
		}
	}
	if err != nil {
		return chat.Row{}, false, err
	}
	return row, true, nil
}

func (db *DB) messageByClientID(ctx context.Context, clientID string) (chat.Row, bool, error) {
	r, err := scanRow(db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE client_id = ?`, clientID))
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Row{}, false, nil
	}
	if err != nil {
		return chat.Row{}, false, fmt.Errorf("message by client id: %w", err)
	}
	return r, true, nil
}

const messageColumns = `id, COALESCE(client_id, ''), sender_id, COALESCE(receiver_id, ''), COALESCE(group_id, ''), text, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (chat.Row, error) {
	var r chat.Row
	var created int64
	if err := sc.Scan(&r.ID, &r.ClientID, &r.SenderID, &r.ReceiverID, &r.GroupID, &r.Text, &created); err != nil {
		return chat.Row{}, err
	}
	r.CreatedAt = time.UnixMilli(created)
	return r, nil
}

// InsertRow stores a fully formed row. Routing must set exactly one of
// receiver and group; the schema enforces it as well.
func (db *DB) InsertRow(ctx context.Context, r chat.Row) error {
	if (r.ReceiverID == "") == (r.GroupID == "") {
		return fmt.Errorf("insert message: %w: receiver and group are mutually exclusive", chat.ErrRejected)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (id, client_id, sender_id, receiver_id, group_id, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, nullable(r.ClientID), r.SenderID, nullable(r.ReceiverID), nullable(r.GroupID), r.Text, r.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert message: %w", translate(err))
	}
	return nil
}

// InsertBatch stores rows in one transaction, skipping ids and client ids that
// already exist, and returns the rows that were inserted.
func (db *DB) InsertBatch(ctx context.Context, rows []chat.Row) ([]chat.Row, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var inserted []chat.Row
	for _, r := range rows {
		if (r.ReceiverID == "") == (r.GroupID == "") {
			return nil, fmt.Errorf("insert batch %q: %w: receiver and group are mutually exclusive", r.ID, chat.ErrRejected)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, client_id, sender_id, receiver_id, group_id, text, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`,
			r.ID, nullable(r.ClientID), r.SenderID, nullable(r.ReceiverID), nullable(r.GroupID), r.Text, r.CreatedAt.UnixMilli())
		if err != nil {
			return nil, fmt.Errorf("insert batch %q: %w", r.ID, translate(err))
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted = append(inserted, r)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return inserted, nil
}

// QueryMessages returns every message of a conversation ordered by
// created_at ascending, ties broken by id.
func (db *DB) QueryMessages(ctx context.Context, f chat.Filter) ([]chat.Row, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch k := f.Key.(type) {
	case chat.Direct:
		rows, err = db.QueryContext(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE group_id IS NULL
			  AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
			ORDER BY created_at ASC, id ASC`, k.A, k.B, k.B, k.A)
	case chat.GroupChat:
		rows, err = db.QueryContext(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE group_id = ?
			ORDER BY created_at ASC, id ASC`, k.ID)
	default:
		return nil, fmt.Errorf("query messages: %w: no conversation", chat.ErrRejected)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []chat.Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
