package postgres

import (
	"context"
	"database/sql"
	"errors"
	"slices"

	"talkroom/internal/core/domain"

	"github.com/google/uuid"
)

type RoomRepo struct {
	db *sql.DB
}

func NewRoomRepo(db *sql.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

/*
	-- Rooms
	CREATE TABLE rooms (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
*/

func (r *RoomRepo) GetRoomByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	room := &domain.Room{ID: id}
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT name, created_at FROM rooms WHERE id = $1
	`, id).Scan(&room.Name, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// GetRoomWithHistory loads the room and its last `limit` messages.
// Messages are returned newest last.
func (r *RoomRepo) GetRoomWithHistory(ctx context.Context, id uuid.UUID, limit int) (*domain.Room, error) {
	room, err := r.GetRoomByID(ctx, id)
	if err != nil {
		return nil, err
	}
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT id, room_id, author_id, text, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.AuthorID, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		room.Messages = append(room.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(room.Messages)
	return room, nil
}

func (r *RoomRepo) ListRooms(ctx context.Context) ([]domain.Room, error) {
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT id, name, created_at FROM rooms ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rooms []domain.Room
	for rows.Next() {
		var room domain.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (r *RoomRepo) CreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	room := &domain.Room{
		ID:   uuid.New(),
		Name: name,
	}
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		INSERT INTO rooms (id, name) VALUES ($1, $2)
		RETURNING created_at
	`, room.ID, room.Name).Scan(&room.CreatedAt)
	if err != nil {
		return nil, err
	}
	return room, nil
}
