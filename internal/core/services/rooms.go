package services

import (
	"context"
	"errors"
	"log/slog"

	"talkroom/internal/core/contracts"
	"talkroom/internal/core/domain"

	"github.com/google/uuid"
)

// RoomService backs the HTTP room administration surface: create, list and
// inspect rooms. The live roster on reads comes from Redis, not from the
// in-process subscriber sets.
type RoomService struct {
	log       *slog.Logger
	rooms     domain.RoomRepository
	roster    contracts.Roster
	txManager TxRunner
}

func NewRoomService(log *slog.Logger, rooms domain.RoomRepository, roster contracts.Roster, txManager TxRunner) *RoomService {
	return &RoomService{
		log:       log,
		rooms:     rooms,
		roster:    roster,
		txManager: txManager,
	}
}

func (s *RoomService) CreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	if name == "" {
		return nil, errors.New("room name is required")
	}
	var room *domain.Room
	if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var txErr error
		room, txErr = s.rooms.CreateRoom(txCtx, name)
		return txErr
	}); err != nil {
		s.log.ErrorContext(ctx, "rooms - create room - failed", "name", name, "err", err)
		return nil, err
	}
	s.log.InfoContext(ctx, "rooms - create room - success", "name", name, "room_id", room.ID)
	return room, nil
}

func (s *RoomService) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rooms, err := s.rooms.ListRooms(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "rooms - list rooms - failed", "err", err)
		return nil, err
	}
	return rooms, nil
}

// GetRoom returns the room plus the ids of users currently online in it.
func (s *RoomService) GetRoom(ctx context.Context, roomID uuid.UUID) (*domain.Room, []string, error) {
	room, err := s.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	online, err := s.roster.Online(ctx, roomID.String())
	if err != nil {
		// Roster is advisory; the room itself is still served.
		s.log.ErrorContext(ctx, "rooms - get room - roster read failed", "room_id", roomID, "err", err)
		online = nil
	}
	return room, online, nil
}
