package domain

import (
	"context"

	"github.com/google/uuid"
)

// DirectoryRepository resolves identities and persists their room membership.
type DirectoryRepository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	// UpdateMembership stores the user's current room; nil clears it.
	UpdateMembership(ctx context.Context, userID uuid.UUID, roomID *uuid.UUID) error
}

// RoomRepository owns room lifecycle and history reads.
type RoomRepository interface {
	GetRoomByID(ctx context.Context, id uuid.UUID) (*Room, error)
	// GetRoomWithHistory loads the room plus its last `limit` messages,
	// newest last.
	GetRoomWithHistory(ctx context.Context, id uuid.UUID, limit int) (*Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	CreateRoom(ctx context.Context, name string) (*Room, error)
}

// MessageRepository persists the message log.
type MessageRepository interface {
	// AddMessage creates the message; id and timestamp are assigned by the store.
	AddMessage(ctx context.Context, roomID, authorID uuid.UUID, text string) (*Message, error)
	// RemoveMessage deletes the message only if it exists, was authored by
	// authorID and belongs to roomID. Any other case is ErrMessageForbidden.
	RemoveMessage(ctx context.Context, messageID, authorID, roomID uuid.UUID) error
}
