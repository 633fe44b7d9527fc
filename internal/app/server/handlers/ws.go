package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"talkroom/internal/app/server/ws"
	"talkroom/internal/core/domain"
	"talkroom/internal/core/services"
	"talkroom/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type dispatchFunc func(ctx context.Context, connID string, data json.RawMessage) error

type WSHandler struct {
	coordinator *services.Coordinator
	dispatch    map[string]dispatchFunc
}

func NewWSHandler(coordinator *services.Coordinator) *WSHandler {
	h := &WSHandler{coordinator: coordinator}
	// Inbound event names map straight onto coordinator operations.
	h.dispatch = map[string]dispatchFunc{
		domain.EventJoin:          h.onJoin,
		domain.EventLeave:         h.onLeave,
		domain.EventMessage:       h.onAddMessage,
		domain.EventRemoveMessage: h.onRemoveMessage,
	}
	return h
}

func (s *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	span := trace.SpanFromContext(r.Context())

	// Credential rides on the handshake; verification happens in OnConnect.
	token := r.URL.Query().Get("token")

	sessionCtx := context.WithoutCancel(r.Context())
	ctx, cancel := context.WithCancel(sessionCtx)
	var upgrader = websocket.Upgrader{
		ReadBufferSize:  32,
		WriteBufferSize: 32,
		CheckOrigin: func(r *http.Request) bool {
			return true // tighten later
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "ws handler - upgrade failed", "err", err)
		cancel()
		return
	}
	conn.SetCloseHandler(func(code int, text string) error {
		cancel()
		return nil
	})
	sock := ws.NewWebSocket(ctx, conn)

	connID := uuid.NewString()
	client := ws.NewClient(ctx, sock, connID)
	if err := s.coordinator.OnConnect(ctx, client, token); err != nil {
		// Forced close: no presence entry was created for this connection.
		log.InfoContext(r.Context(), "ws handler - connect rejected", "conn_id", connID, "err", err)
		client.Close()
		cancel()
		return
	}
	span.SetAttributes(attribute.String("chat.conn_id", connID))
	log.InfoContext(r.Context(), "ws handler - connection established", "conn_id", connID)

	// Unwind order matters: the coordinator must unregister the connection
	// before the client shuts down, so no broadcast targets a closed client.
	defer client.Close()
	defer s.coordinator.OnDisconnect(sessionCtx, connID)

	go s.coordinator.KeepAlive(ctx, connID)

	// Frames are dispatched inline: one ordered sequence per connection.
	sock.ReadLoop(func(data []byte) {
		s.dispatchEvent(ctx, log, connID, data)
	})
}

func (s *WSHandler) dispatchEvent(ctx context.Context, log *slog.Logger, connID string, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error("ws handler - dispatch - bad frame", "conn_id", connID)
		return
	}
	fn, ok := s.dispatch[env.Event]
	if !ok {
		log.Error("ws handler - dispatch - unknown event", "conn_id", connID, "event", env.Event)
		return
	}
	if err := fn(ctx, connID, env.Data); err != nil {
		log.ErrorContext(ctx, "ws handler - dispatch - event failed", "conn_id", connID, "event", env.Event, "err", err)
	}
}

func (s *WSHandler) onJoin(ctx context.Context, connID string, data json.RawMessage) error {
	var p domain.JoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	roomID, err := uuid.Parse(p.RoomID)
	if err != nil {
		return domain.ErrInvalidRoomID
	}
	return s.coordinator.OnJoin(ctx, connID, roomID)
}

func (s *WSHandler) onLeave(ctx context.Context, connID string, data json.RawMessage) error {
	var p domain.LeavePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	roomID, err := uuid.Parse(p.RoomID)
	if err != nil {
		return domain.ErrInvalidRoomID
	}
	return s.coordinator.OnLeave(ctx, connID, roomID)
}

func (s *WSHandler) onAddMessage(ctx context.Context, connID string, data json.RawMessage) error {
	var p domain.AddMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	return s.coordinator.OnAddMessage(ctx, connID, p.Text)
}

func (s *WSHandler) onRemoveMessage(ctx context.Context, connID string, data json.RawMessage) error {
	var p domain.RemoveMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	messageID, err := uuid.Parse(p.MessageID)
	if err != nil {
		return domain.ErrInvalidMessageID
	}
	return s.coordinator.OnRemoveMessage(ctx, connID, messageID)
}
