package store

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/chat"
)

// InsertReaction records a like. A second insert for the same pair fails
// with chat.ErrDuplicate.
func (db *DB) InsertReaction(ctx context.Context, subjectID, participantID string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO reactions (subject_id, participant_id, created_at)
		VALUES (?, ?, ?)`,
		subjectID, participantID, db.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert reaction: %w", translate(err))
	}
	return nil
}

// DeleteReaction removes a like. Deleting an absent like is not an error.
func (db *DB) DeleteReaction(ctx context.Context, subjectID, participantID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM reactions WHERE subject_id = ? AND participant_id = ?`,
		subjectID, participantID)
	return err
}

// ReactionState returns whether participantID likes subjectID and the total
// like count of the subject.
func (db *DB) ReactionState(ctx context.Context, subjectID, participantID string) (chat.ReactionState, error) {
	st := chat.ReactionState{SubjectID: subjectID}
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(participant_id = ?), 0)
		FROM reactions WHERE subject_id = ?`, participantID, subjectID).
		Scan(&st.Count, &st.Present)
	return st, err
}
