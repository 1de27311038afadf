package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/matheus3301/chatsync/internal/chat"
)

// UpsertParticipant inserts or updates a participant. Empty display fields
// never overwrite known values.
func (db *DB) UpsertParticipant(ctx context.Context, p chat.Participant) error {
	if p.ID == "" {
		return fmt.Errorf("upsert participant: %w: empty id", chat.ErrRejected)
	}
	now := db.now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO participants (id, display_name, category, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE participants.display_name END,
			category = CASE WHEN excluded.category != '' THEN excluded.category ELSE participants.category END,
			updated_at = excluded.updated_at`,
		p.ID, p.DisplayName, p.Category, now, now)
	return translate(err)
}

// BulkUpsertParticipants upserts many participants in a single transaction.
func (db *DB) BulkUpsertParticipants(ctx context.Context, ps []chat.Participant) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := db.now().UnixMilli()
	for _, p := range ps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO participants (id, display_name, category, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE participants.display_name END,
				category = CASE WHEN excluded.category != '' THEN excluded.category ELSE participants.category END,
				updated_at = excluded.updated_at`,
			p.ID, p.DisplayName, p.Category, now, now); err != nil {
			return fmt.Errorf("upsert participant %q: %w", p.ID, translate(err))
		}
	}
	return tx.Commit()
}

// GetParticipant returns a participant by id, or nil if unknown.
func (db *DB) GetParticipant(ctx context.Context, id string) (*chat.Participant, error) {
	var p chat.Participant
	err := db.QueryRowContext(ctx, `SELECT id, display_name, category FROM participants WHERE id = ?`, id).
		Scan(&p.ID, &p.DisplayName, &p.Category)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindParticipant looks a participant up by exact display name.
func (db *DB) FindParticipant(ctx context.Context, displayName string) (*chat.Participant, error) {
	var p chat.Participant
	err := db.QueryRowContext(ctx, `
		SELECT id, display_name, category FROM participants
		WHERE display_name = ?
		ORDER BY created_at ASC
		LIMIT 1`, displayName).
		Scan(&p.ID, &p.DisplayName, &p.Category)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListParticipants returns participants other than excludingID, newest
// first.
func (db *DB) ListParticipants(ctx context.Context, excludingID string, limit int) ([]chat.Participant, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, display_name, category FROM participants
		WHERE id != ?
		ORDER BY created_at DESC, id ASC
		LIMIT ?`, excludingID, limit)
	if err != nil {
		return nil, err
	}
	return scanParticipants(rows)
}

// ListInbox returns the participants the given user has exchanged direct
// messages with, most recent conversation first.
func (db *DB) ListInbox(ctx context.Context, selfID string) ([]chat.Participant, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT p.id, p.display_name, p.category
		FROM (
			SELECT CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS peer,
			       MAX(created_at) AS last_at
			FROM messages
			WHERE group_id IS NULL AND (sender_id = ? OR receiver_id = ?)
			GROUP BY peer
		) c
		JOIN participants p ON p.id = c.peer
		ORDER BY c.last_at DESC, p.id ASC`, selfID, selfID, selfID)
	if err != nil {
		return nil, err
	}
	return scanParticipants(rows)
}

// ParticipantCount returns the number of known participants.
func (db *DB) ParticipantCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants`).Scan(&count)
	return count, err
}

func scanParticipants(rows *sql.Rows) ([]chat.Participant, error) {
	defer func() { _ = rows.Close() }()

	var ps []chat.Participant
	for rows.Next() {
		var p chat.Participant
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Category); err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	return ps, rows.Err()
}
