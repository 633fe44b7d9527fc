package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"talkroom/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newRoomFixture() (*RoomService, *fakeRoomStore, *fakeRoster) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &fakeRoomStore{rooms: make(map[uuid.UUID]*domain.Room)}
	roster := newFakeRoster()
	return NewRoomService(log, store, roster, passthroughTx{}), store, roster
}

func TestCreateAndListRooms(t *testing.T) {
	req := require.New(t)
	svc, _, _ := newRoomFixture()

	room, err := svc.CreateRoom(context.Background(), "general")
	req.NoError(err)
	req.Equal("general", room.Name)

	_, err = svc.CreateRoom(context.Background(), "")
	req.Error(err)

	rooms, err := svc.ListRooms(context.Background())
	req.NoError(err)
	req.Len(rooms, 1)
}

func TestGetRoomWithOnlineRoster(t *testing.T) {
	req := require.New(t)
	svc, _, roster := newRoomFixture()
	room, err := svc.CreateRoom(context.Background(), "general")
	req.NoError(err)

	userID := uuid.New().String()
	req.NoError(roster.SetOnline(context.Background(), room.ID.String(), userID, time.Minute))

	got, online, err := svc.GetRoom(context.Background(), room.ID)
	req.NoError(err)
	req.Equal(room.ID, got.ID)
	req.Equal([]string{userID}, online)
}

func TestGetRoomNotFound(t *testing.T) {
	svc, _, _ := newRoomFixture()
	_, _, err := svc.GetRoom(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}
