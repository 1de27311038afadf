package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/chat"
)

// InsertGroup creates a group and returns it with its assigned id.
func (db *DB) InsertGroup(ctx context.Context, g chat.Group) (chat.Group, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	created := db.now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO chat_groups (id, name, description, creator_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Description, g.CreatorID, created.UnixMilli())
	if err != nil {
		return chat.Group{}, fmt.Errorf("insert group: %w", translate(err))
	}
	g.CreatedAt = time.UnixMilli(created.UnixMilli())
	return g, nil
}

// GetGroup returns a group by id, or nil if unknown.
func (db *DB) GetGroup(ctx context.Context, id string) (*chat.Group, error) {
	var g chat.Group
	var created int64
	err := db.QueryRowContext(ctx, `
		SELECT id, name, description, creator_id, created_at
		FROM chat_groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.Description, &g.CreatorID, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	g.CreatedAt = time.UnixMilli(created)
	return &g, nil
}

// ListGroups returns groups newest first.
func (db *DB) ListGroups(ctx context.Context, limit int) ([]chat.Group, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, description, creator_id, created_at
		FROM chat_groups
		ORDER BY created_at DESC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var groups []chat.Group
	for rows.Next() {
		var g chat.Group
		var created int64
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatorID, &created); err != nil {
			return nil, err
		}
		g.CreatedAt = time.UnixMilli(created)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
