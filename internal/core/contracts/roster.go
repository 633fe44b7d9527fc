package contracts

import (
	"context"
	"time"
)

// Roster is the TTL-based online roster per room, kept in Redis.
// Entries decay on their own when a client stops refreshing.
type Roster interface {
	// SetOnline marks the user online in the room until ttl elapses.
	SetOnline(ctx context.Context, roomID, userID string, ttl time.Duration) error
	// Online returns the user ids currently active in the room.
	Online(ctx context.Context, roomID string) ([]string, error)
	// SetOffline drops the user from the room's roster immediately.
	SetOffline(ctx context.Context, roomID, userID string) error
	// Clear removes the whole roster for a room, used when the last
	// occupant leaves so idle rooms do not hold a key until TTL expiry.
	Clear(ctx context.Context, roomID string) error
}
