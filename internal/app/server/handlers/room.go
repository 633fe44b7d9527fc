package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"talkroom/internal/core/domain"
	"talkroom/internal/core/services"
	"talkroom/internal/platform/logger"

	"github.com/google/uuid"
)

type RoomHandler struct {
	roomSvc *services.RoomService
}

func NewRoomHandler(roomSvc *services.RoomService) *RoomHandler {
	return &RoomHandler{roomSvc: roomSvc}
}

type roomResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Online    []string `json:"online,omitempty"`
	CreatedAt string   `json:"created_at"`
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	room, err := h.roomSvc.CreateRoom(r.Context(), req.Name)
	if err != nil {
		log.ErrorContext(r.Context(), "room handler - create failed", "name", req.Name)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(roomResponse{
		ID:        room.ID.String(),
		Name:      room.Name,
		CreatedAt: room.CreatedAt.String(),
	})
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.roomSvc.ListRooms(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]roomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, roomResponse{
			ID:        room.ID.String(),
			Name:      room.Name,
			CreatedAt: room.CreatedAt.String(),
		})
	}
	json.NewEncoder(w).Encode(out)
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	room, online, err := h.roomSvc.GetRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(roomResponse{
		ID:        room.ID.String(),
		Name:      room.Name,
		Online:    online,
		CreatedAt: room.CreatedAt.String(),
	})
}
