package domain

import (
	"encoding/json"
	"time"
)

const (
	EventMessage        = "message"
	EventMessageRemoved = "message-removed"
	EventJoin           = "join"
	EventLeave          = "leave"
	EventRemoveMessage  = "remove-message"
)

// Envelope frames every inbound websocket event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type JoinPayload struct {
	RoomID string `json:"roomId"`
}

type LeavePayload struct {
	RoomID string `json:"roomId"`
}

type AddMessagePayload struct {
	Text string `json:"text"`
}

type RemoveMessagePayload struct {
	MessageID string `json:"messageId"`
}

// OutboundEvent is what the broadcaster ships to subscribers. Data is a bare
// string for a message broadcast or removal, and a []MessageView for the
// history replayed to a connection right after it joins.
type OutboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// MessageView is the wire shape of a persisted message.
type MessageView struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewMessageView(m Message) MessageView {
	return MessageView{
		ID:        m.ID.String(),
		AuthorID:  m.AuthorID.String(),
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}
