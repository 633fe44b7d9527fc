package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the persistent identity behind any number of live connections.
// RoomID is the stored room membership; it survives disconnects and is
// restored on reconnect.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	RoomID       *uuid.UUID
	CreatedAt    time.Time
}

// Room is a named broadcast group with a persisted message log.
// Messages holds the most recent entries, newest last, bounded by the
// replay limit used when it was loaded.
type Room struct {
	ID        uuid.UUID
	Name      string
	Messages  []Message
	CreatedAt time.Time
}

// Message is a chat entry. Immutable once stored; removable only by its author.
type Message struct {
	ID        uuid.UUID
	RoomID    uuid.UUID
	AuthorID  uuid.UUID
	Text      string
	CreatedAt time.Time
}
