package postgres

import (
	"context"
	"database/sql"

	"talkroom/internal/core/domain"

	"github.com/google/uuid"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

/*
	-- Messages
	CREATE TABLE messages (
		id         UUID PRIMARY KEY,
		room_id    UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		author_id  UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		text       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX messages_room_created_idx ON messages (room_id, created_at);
*/

func (r *MessageRepo) AddMessage(ctx context.Context, roomID, authorID uuid.UUID, text string) (*domain.Message, error) {
	msg := &domain.Message{
		ID:       uuid.New(),
		RoomID:   roomID,
		AuthorID: authorID,
		Text:     text,
	}
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		INSERT INTO messages (id, room_id, author_id, text)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, msg.ID, msg.RoomID, msg.AuthorID, msg.Text).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// RemoveMessage is a conditional delete: the row must match message id,
// author and room at once. A miss on any of the three yields
// ErrMessageForbidden, so a caller cannot tell a foreign message from a
// nonexistent one.
func (r *MessageRepo) RemoveMessage(ctx context.Context, messageID, authorID, roomID uuid.UUID) error {
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, `
		DELETE FROM messages
		WHERE id = $1 AND author_id = $2 AND room_id = $3
	`, messageID, authorID, roomID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrMessageForbidden
	}
	return nil
}
