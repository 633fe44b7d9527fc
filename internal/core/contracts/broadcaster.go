package contracts

import (
	"context"

	"talkroom/internal/core/domain"
)

// Broadcaster manages per-room subscription groups over live connections and
// fans events out to whatever set of connections is subscribed at delivery
// time. A connection is subscribed to at most one room.
type Broadcaster interface {
	// Register adds an authenticated connection to the local node memory.
	Register(c Client)
	// Unregister removes the connection and revokes any room subscription.
	Unregister(connID string)
	// Subscribe adds the connection to roomID's subscriber set, atomically
	// leaving its previous room first if it had one.
	Subscribe(connID, roomID string)
	// Unsubscribe removes the connection from roomID's set; no-op if absent.
	// Reports whether the room has no subscribers left afterwards.
	Unsubscribe(connID, roomID string) (empty bool)
	// UnsubscribeAll removes the connection from whatever room it is in and
	// reports the room it left, if any, and whether that room is now empty.
	UnsubscribeAll(connID string) (roomID string, empty bool)
	// RoomOf reports the connection's current room, if any.
	RoomOf(connID string) (string, bool)
	// Publish delivers event to every connection subscribed to roomID.
	// Delivery is best effort: one failing subscriber never aborts the rest.
	Publish(ctx context.Context, roomID string, event domain.OutboundEvent)
	// SendTo targets one connection with a direct reply.
	SendTo(ctx context.Context, connID string, event domain.OutboundEvent)
}

// Client represents the minimal interface required for the broadcaster to
// communicate with an individual WebSocket connection.
type Client interface {
	ConnectionID() string
	Send(ctx context.Context, data []byte) error
	Close()
}
