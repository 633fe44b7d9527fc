package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"talkroom/internal/core/contracts"
	"talkroom/internal/core/domain"
	"talkroom/internal/core/presence"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("session-coordinator")

// Coordinator orchestrates the lifecycle of every live connection:
// connect-time authentication, room join/leave, message add/remove and
// disconnect teardown. It owns the ordering rules: within one connection
// events are handled in arrival order (the transport dispatches them
// sequentially), across connections they are free to interleave. Persistence
// always completes before any broadcast is emitted.
type Coordinator struct {
	log       *slog.Logger
	verifier  contracts.TokenVerifier
	directory domain.DirectoryRepository
	rooms     domain.RoomRepository
	messages  domain.MessageRepository
	presence  *presence.Table
	hub       contracts.Broadcaster
	roster    contracts.Roster

	replayLimit    int
	rosterTTL      time.Duration
	heartbeatEvery time.Duration
}

func NewCoordinator(
	log *slog.Logger,
	verifier contracts.TokenVerifier,
	directory domain.DirectoryRepository,
	rooms domain.RoomRepository,
	messages domain.MessageRepository,
	table *presence.Table,
	hub contracts.Broadcaster,
	roster contracts.Roster,
	replayLimit int,
	rosterTTL time.Duration,
	heartbeatEvery time.Duration,
) *Coordinator {
	return &Coordinator{
		log:            log,
		verifier:       verifier,
		directory:      directory,
		rooms:          rooms,
		messages:       messages,
		presence:       table,
		hub:            hub,
		roster:         roster,
		replayLimit:    replayLimit,
		rosterTTL:      rosterTTL,
		heartbeatEvery: heartbeatEvery,
	}
}

// OnConnect authenticates the new connection. On a bad credential or an
// unresolvable identity the caller must terminate the connection; no state is
// created. On success the connection is recorded in the presence table,
// registered with the broadcaster and, when the identity has a stored room,
// rejoined to it.
func (c *Coordinator) OnConnect(ctx context.Context, client contracts.Client, credential string) error {
	connID := client.ConnectionID()
	ctx, span := tracer.Start(ctx, "Coordinator.OnConnect", trace.WithAttributes(
		attribute.String("conn_id", connID),
	))
	defer span.End()

	userID, err := c.verifier.Verify(credential)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "auth failed")
		c.log.InfoContext(ctx, "coordinator - on connect - invalid credential", "conn_id", connID)
		return domain.ErrInvalidToken
	}
	user, err := c.directory.GetUserByID(ctx, userID)
	if err != nil {
		// Fail closed: a token for an unknown identity does not connect.
		span.RecordError(err)
		span.SetStatus(codes.Error, "identity unresolved")
		c.log.ErrorContext(ctx, "coordinator - on connect - resolve identity failed", "conn_id", connID, "user_id", userID, "err", err)
		return err
	}
	if err := c.presence.Record(connID, user.ID); err != nil {
		// A duplicate connection id is a broken invariant, not a user error.
		span.RecordError(err)
		span.SetStatus(codes.Error, "presence record failed")
		c.log.ErrorContext(ctx, "coordinator - on connect - presence record failed", "conn_id", connID, "user_id", user.ID, "err", err)
		return err
	}
	c.hub.Register(client)
	span.SetAttributes(attribute.String("user_id", user.ID.String()))
	c.log.InfoContext(ctx, "coordinator - on connect - authenticated", "conn_id", connID, "user_id", user.ID)

	if user.RoomID != nil {
		if err := c.OnJoin(ctx, connID, *user.RoomID); err != nil {
			// The stored room may be gone; the connection stays
			// authenticated without a room.
			c.log.ErrorContext(ctx, "coordinator - on connect - rejoin failed", "conn_id", connID, "room_id", *user.RoomID, "err", err)
		}
	}
	return nil
}

// OnDisconnect unwinds everything the connection holds: its presence entry,
// its room subscription and its roster mark. Idempotent; safe to call while
// another operation for the same connection is still in flight.
func (c *Coordinator) OnDisconnect(ctx context.Context, connID string) {
	ctx, span := tracer.Start(ctx, "Coordinator.OnDisconnect", trace.WithAttributes(
		attribute.String("conn_id", connID),
	))
	defer span.End()

	userID, err := c.presence.IdentityOf(connID)
	roomID, emptied := c.hub.UnsubscribeAll(connID)
	c.hub.Unregister(connID)
	c.presence.Remove(connID)
	if err != nil {
		return
	}
	if roomID != "" {
		c.markDeparture(ctx, connID, roomID, userID.String(), emptied)
	}
	// Stored room membership survives the disconnect; rejoin happens on
	// the next connect.
	c.log.InfoContext(ctx, "coordinator - on disconnect - done", "conn_id", connID, "user_id", userID)
}

// OnJoin subscribes the connection to the room, persists the membership and
// replays the tail of the room history to the joining connection alone.
func (c *Coordinator) OnJoin(ctx context.Context, connID string, roomID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "Coordinator.OnJoin", trace.WithAttributes(
		attribute.String("conn_id", connID),
		attribute.String("room_id", roomID.String()),
	))
	defer span.End()

	userID, err := c.presence.IdentityOf(connID)
	if err != nil {
		// Not authenticated: joins from unknown connections are dropped.
		return nil
	}
	room, err := c.rooms.GetRoomWithHistory(ctx, roomID, c.replayLimit)
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, domain.ErrRoomNotFound) {
			span.SetStatus(codes.Error, "room lookup failed")
			c.log.ErrorContext(ctx, "coordinator - on join - room lookup failed", "conn_id", connID, "room_id", roomID, "err", err)
		}
		return err
	}
	if prev, ok := c.hub.RoomOf(connID); ok && prev != roomID.String() {
		if err := c.roster.SetOffline(ctx, prev, userID.String()); err != nil {
			c.log.ErrorContext(ctx, "coordinator - on join - roster leave failed", "conn_id", connID, "room_id", prev, "err", err)
		}
	}
	c.hub.Subscribe(connID, roomID.String())
	if err := c.directory.UpdateMembership(ctx, userID, &roomID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "membership update failed")
		c.log.ErrorContext(ctx, "coordinator - on join - update membership failed", "conn_id", connID, "room_id", roomID, "err", err)
		return err
	}
	if err := c.roster.SetOnline(ctx, roomID.String(), userID.String(), c.rosterTTL); err != nil {
		c.log.ErrorContext(ctx, "coordinator - on join - roster update failed", "conn_id", connID, "room_id", roomID, "err", err)
	}

	// Direct reply to the joining connection only; other occupants see
	// nothing on a join.
	views := make([]domain.MessageView, 0, len(room.Messages))
	for _, m := range room.Messages {
		views = append(views, domain.NewMessageView(m))
	}
	c.hub.SendTo(ctx, connID, domain.OutboundEvent{Event: domain.EventMessage, Data: views})
	c.log.InfoContext(ctx, "coordinator - on join - success", "conn_id", connID, "room_id", roomID, "replayed", len(views))
	return nil
}

// OnLeave unsubscribes the connection and clears the stored membership.
// Departure is silent: no event reaches the room.
func (c *Coordinator) OnLeave(ctx context.Context, connID string, roomID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "Coordinator.OnLeave", trace.WithAttributes(
		attribute.String("conn_id", connID),
		attribute.String("room_id", roomID.String()),
	))
	defer span.End()

	userID, err := c.presence.IdentityOf(connID)
	if err != nil {
		return nil
	}
	emptied := c.hub.Unsubscribe(connID, roomID.String())
	if err := c.directory.UpdateMembership(ctx, userID, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "membership clear failed")
		c.log.ErrorContext(ctx, "coordinator - on leave - clear membership failed", "conn_id", connID, "room_id", roomID, "err", err)
		return err
	}
	c.markDeparture(ctx, connID, roomID.String(), userID.String(), emptied)
	c.log.InfoContext(ctx, "coordinator - on leave - success", "conn_id", connID, "room_id", roomID)
	return nil
}

// markDeparture updates the roster after a connection leaves a room: the last
// occupant drops the whole roster key, anyone else removes only themselves.
func (c *Coordinator) markDeparture(ctx context.Context, connID, roomID, userID string, emptied bool) {
	var err error
	if emptied {
		err = c.roster.Clear(ctx, roomID)
	} else {
		err = c.roster.SetOffline(ctx, roomID, userID)
	}
	if err != nil {
		c.log.ErrorContext(ctx, "coordinator - roster departure failed", "conn_id", connID, "room_id", roomID, "err", err)
	}
}

// OnAddMessage persists the message to the connection's current room and then
// broadcasts its text to every subscriber, the author included; the author
// relies on the broadcast echo rather than a direct ack. A message from a
// connection without a room is dropped, not queued.
func (c *Coordinator) OnAddMessage(ctx context.Context, connID string, text string) error {
	ctx, span := tracer.Start(ctx, "Coordinator.OnAddMessage", trace.WithAttributes(
		attribute.String("conn_id", connID),
		attribute.Int("text_len", len(text)),
	))
	defer span.End()

	userID, err := c.presence.IdentityOf(connID)
	if err != nil {
		return nil
	}
	roomStr, ok := c.hub.RoomOf(connID)
	if !ok {
		return nil
	}
	roomID, err := uuid.Parse(roomStr)
	if err != nil {
		return domain.ErrInvalidRoomID
	}
	msg, err := c.messages.AddMessage(ctx, roomID, userID, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		c.log.ErrorContext(ctx, "coordinator - on add message - persist failed", "conn_id", connID, "room_id", roomID, "err", err)
		return err
	}
	c.hub.Publish(ctx, roomStr, domain.OutboundEvent{Event: domain.EventMessage, Data: msg.Text})
	c.log.InfoContext(ctx, "coordinator - on add message - success", "conn_id", connID, "room_id", roomID, "message_id", msg.ID)
	return nil
}

// OnRemoveMessage deletes the message if and only if it exists, belongs to
// the caller and lives in the caller's current room, then broadcasts the
// removal. "Not found" and "not yours" are indistinguishable to the caller.
func (c *Coordinator) OnRemoveMessage(ctx context.Context, connID string, messageID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "Coordinator.OnRemoveMessage", trace.WithAttributes(
		attribute.String("conn_id", connID),
		attribute.String("message_id", messageID.String()),
	))
	defer span.End()

	userID, err := c.presence.IdentityOf(connID)
	if err != nil {
		return nil
	}
	roomStr, ok := c.hub.RoomOf(connID)
	if !ok {
		return nil
	}
	roomID, err := uuid.Parse(roomStr)
	if err != nil {
		return domain.ErrInvalidRoomID
	}
	if err := c.messages.RemoveMessage(ctx, messageID, userID, roomID); err != nil {
		span.RecordError(err)
		if !errors.Is(err, domain.ErrMessageForbidden) {
			span.SetStatus(codes.Error, "remove failed")
			c.log.ErrorContext(ctx, "coordinator - on remove message - persist failed", "conn_id", connID, "message_id", messageID, "err", err)
		}
		return err
	}
	c.hub.Publish(ctx, roomStr, domain.OutboundEvent{Event: domain.EventMessageRemoved, Data: messageID.String()})
	c.log.InfoContext(ctx, "coordinator - on remove message - success", "conn_id", connID, "message_id", messageID)
	return nil
}

// KeepAlive refreshes the connection's roster mark while it stays open.
// Runs until ctx is cancelled; started by the transport after a successful
// connect.
func (c *Coordinator) KeepAlive(ctx context.Context, connID string) {
	ticker := time.NewTicker(c.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			userID, err := c.presence.IdentityOf(connID)
			if err != nil {
				return
			}
			roomID, ok := c.hub.RoomOf(connID)
			if !ok {
				continue
			}
			if err := c.roster.SetOnline(ctx, roomID, userID.String(), c.rosterTTL); err != nil {
				c.log.ErrorContext(ctx, "coordinator - keep alive - roster refresh failed", "conn_id", connID, "room_id", roomID, "err", err)
			}
		}
	}
}
