package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"talkroom/internal/app/registry"
	"talkroom/internal/core/domain"
	"talkroom/internal/core/presence"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	ids map[string]uuid.UUID
}

func (v *fakeVerifier) Verify(token string) (uuid.UUID, error) {
	id, ok := v.ids[token]
	if !ok {
		return uuid.Nil, domain.ErrInvalidToken
	}
	return id, nil
}

type fakeDirectory struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func (d *fakeDirectory) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *fakeDirectory) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (d *fakeDirectory) CreateUser(ctx context.Context, u *domain.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
	return nil
}

func (d *fakeDirectory) UpdateMembership(ctx context.Context, userID uuid.UUID, roomID *uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.RoomID = roomID
	return nil
}

func (d *fakeDirectory) membership(t *testing.T, userID uuid.UUID) *uuid.UUID {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	require.True(t, ok)
	return u.RoomID
}

type fakeRoomStore struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*domain.Room
}

func (s *fakeRoomStore) GetRoomByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := *room
	cp.Messages = nil
	return &cp, nil
}

func (s *fakeRoomStore) GetRoomWithHistory(ctx context.Context, id uuid.UUID, limit int) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := *room
	if len(room.Messages) > limit {
		cp.Messages = append([]domain.Message(nil), room.Messages[len(room.Messages)-limit:]...)
	} else {
		cp.Messages = append([]domain.Message(nil), room.Messages...)
	}
	return &cp, nil
}

func (s *fakeRoomStore) ListRooms(ctx context.Context) ([]domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Room
	for _, r := range s.rooms {
		out = append(out, *r)
	}
	return out, nil
}

func (s *fakeRoomStore) CreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := &domain.Room{ID: uuid.New(), Name: name, CreatedAt: time.Now()}
	s.rooms[room.ID] = room
	return room, nil
}

type storedMessage struct {
	authorID uuid.UUID
	roomID   uuid.UUID
}

type fakeMessageStore struct {
	mu       sync.Mutex
	messages map[uuid.UUID]storedMessage
	added    []domain.Message
}

func (s *fakeMessageStore) AddMessage(ctx context.Context, roomID, authorID uuid.UUID, text string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := domain.Message{
		ID:        uuid.New(),
		RoomID:    roomID,
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: time.Now(),
	}
	s.messages[msg.ID] = storedMessage{authorID: authorID, roomID: roomID}
	s.added = append(s.added, msg)
	return &msg, nil
}

func (s *fakeMessageStore) RemoveMessage(ctx context.Context, messageID, authorID, roomID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.messages[messageID]
	if !ok || stored.authorID != authorID || stored.roomID != roomID {
		return domain.ErrMessageForbidden
	}
	delete(s.messages, messageID)
	return nil
}

type fakeRoster struct {
	mu      sync.Mutex
	online  map[string]map[string]bool
	cleared map[string]bool
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{
		online:  make(map[string]map[string]bool),
		cleared: make(map[string]bool),
	}
}

func (r *fakeRoster) SetOnline(ctx context.Context, roomID, userID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.online[roomID] == nil {
		r.online[roomID] = make(map[string]bool)
	}
	r.online[roomID][userID] = true
	return nil
}

func (r *fakeRoster) Online(ctx context.Context, roomID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for id := range r.online[roomID] {
		out = append(out, id)
	}
	return out, nil
}

func (r *fakeRoster) SetOffline(ctx context.Context, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.online[roomID], userID)
	return nil
}

func (r *fakeRoster) Clear(ctx context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.online, roomID)
	r.cleared[roomID] = true
	return nil
}

func (r *fakeRoster) wasCleared(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleared[roomID]
}

type fakeClient struct {
	id string

	mu   sync.Mutex
	sent [][]byte
}

func (c *fakeClient) ConnectionID() string { return c.id }

func (c *fakeClient) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeClient) Close() {}

func (c *fakeClient) events(t *testing.T) []domain.OutboundEvent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.OutboundEvent
	for _, raw := range c.sent {
		var ev domain.OutboundEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		out = append(out, ev)
	}
	return out
}

type coordinatorFixture struct {
	coordinator *Coordinator
	verifier    *fakeVerifier
	directory   *fakeDirectory
	rooms       *fakeRoomStore
	messages    *fakeMessageStore
	roster      *fakeRoster
	table       *presence.Table
	hub         *registry.Registry
}

func newFixture(replayLimit int) *coordinatorFixture {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &coordinatorFixture{
		verifier:  &fakeVerifier{ids: make(map[string]uuid.UUID)},
		directory: &fakeDirectory{users: make(map[uuid.UUID]*domain.User)},
		rooms:     &fakeRoomStore{rooms: make(map[uuid.UUID]*domain.Room)},
		messages:  &fakeMessageStore{messages: make(map[uuid.UUID]storedMessage)},
		roster:    newFakeRoster(),
		table:     presence.NewTable(),
		hub:       registry.NewRegistry(),
	}
	f.coordinator = NewCoordinator(
		log, f.verifier, f.directory, f.rooms, f.messages,
		f.table, f.hub, f.roster,
		replayLimit, 45*time.Second, 30*time.Second,
	)
	return f
}

func (f *coordinatorFixture) addUser(token, username string) *domain.User {
	u := &domain.User{ID: uuid.New(), Username: username}
	f.directory.users[u.ID] = u
	f.verifier.ids[token] = u.ID
	return u
}

func (f *coordinatorFixture) addRoom(name string, messages ...domain.Message) *domain.Room {
	room := &domain.Room{ID: uuid.New(), Name: name, Messages: messages}
	f.rooms.rooms[room.ID] = room
	return room
}

// connect wires a fake client through the full connect path.
func (f *coordinatorFixture) connect(t *testing.T, connID, token string) *fakeClient {
	t.Helper()
	c := &fakeClient{id: connID}
	require.NoError(t, f.coordinator.OnConnect(context.Background(), c, token))
	return c
}

func TestConnectWithInvalidCredential(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	c := &fakeClient{id: "conn-1"}

	err := f.coordinator.OnConnect(context.Background(), c, "garbage")
	req.ErrorIs(err, domain.ErrInvalidToken)

	// Fail-closed: nothing was recorded for the connection.
	_, err = f.table.IdentityOf("conn-1")
	req.ErrorIs(err, domain.ErrNotConnected)
	_, ok := f.hub.RoomOf("conn-1")
	req.False(ok)
}

func TestConnectWithUnresolvableIdentity(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	// Token verifies but the directory has no such user.
	f.verifier.ids["orphan"] = uuid.New()
	c := &fakeClient{id: "conn-1"}

	err := f.coordinator.OnConnect(context.Background(), c, "orphan")
	req.ErrorIs(err, domain.ErrUserNotFound)
	_, err = f.table.IdentityOf("conn-1")
	req.ErrorIs(err, domain.ErrNotConnected)
}

func TestConnectWithoutStoredRoom(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	user := f.addUser("tok", "alice")

	c := f.connect(t, "conn-1", "tok")

	got, err := f.table.IdentityOf("conn-1")
	req.NoError(err)
	req.Equal(user.ID, got)
	_, ok := f.hub.RoomOf("conn-1")
	req.False(ok)
	// No acknowledgment is sent for a connection with no prior room.
	req.Empty(c.events(t))
}

func TestConnectRejoinsStoredRoomAndReplaysHistory(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	user := f.addUser("tok", "alice")
	author := uuid.New()
	room := f.addRoom("general",
		domain.Message{ID: uuid.New(), AuthorID: author, Text: "first"},
		domain.Message{ID: uuid.New(), AuthorID: author, Text: "second"},
		domain.Message{ID: uuid.New(), AuthorID: author, Text: "third"},
	)
	user.RoomID = &room.ID

	// An existing occupant must not see anything on the join.
	f.addUser("tok2", "bob")
	other := f.connect(t, "conn-2", "tok2")
	require.NoError(t, f.coordinator.OnJoin(context.Background(), "conn-2", room.ID))
	other.mu.Lock()
	other.sent = nil
	other.mu.Unlock()

	c := f.connect(t, "conn-1", "tok")

	roomID, ok := f.hub.RoomOf("conn-1")
	req.True(ok)
	req.Equal(room.ID.String(), roomID)
	got, err := f.table.IdentityOf("conn-1")
	req.NoError(err)
	req.Equal(user.ID, got)

	// Replay window 1 of [first, second, third] is exactly [third].
	events := c.events(t)
	req.Len(events, 1)
	req.Equal(domain.EventMessage, events[0].Event)
	replayed, ok := events[0].Data.([]any)
	req.True(ok)
	req.Len(replayed, 1)
	view, ok := replayed[0].(map[string]any)
	req.True(ok)
	req.Equal("third", view["text"])

	// Silent for everyone else.
	req.Empty(other.events(t))
}

func TestJoinUnknownRoom(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	f.addUser("tok", "alice")
	f.connect(t, "conn-1", "tok")

	err := f.coordinator.OnJoin(context.Background(), "conn-1", uuid.New())
	req.ErrorIs(err, domain.ErrRoomNotFound)
	_, ok := f.hub.RoomOf("conn-1")
	req.False(ok)
}

func TestJoinWithoutAuthenticationIsDropped(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	room := f.addRoom("general")

	req.NoError(f.coordinator.OnJoin(context.Background(), "ghost", room.ID))
	_, ok := f.hub.RoomOf("ghost")
	req.False(ok)
}

func TestJoinPersistsMembershipAndMarksOnline(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	user := f.addUser("tok", "alice")
	room := f.addRoom("general")
	f.connect(t, "conn-1", "tok")

	req.NoError(f.coordinator.OnJoin(context.Background(), "conn-1", room.ID))

	stored := f.directory.membership(t, user.ID)
	req.NotNil(stored)
	req.Equal(room.ID, *stored)

	online, err := f.roster.Online(context.Background(), room.ID.String())
	req.NoError(err)
	req.Contains(online, user.ID.String())
}

func TestJoinSecondRoomLeavesFirst(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	user := f.addUser("tok", "alice")
	r1 := f.addRoom("one")
	r2 := f.addRoom("two")
	c := f.connect(t, "conn-1", "tok")

	req.NoError(f.coordinator.OnJoin(context.Background(), "conn-1", r1.ID))
	req.NoError(f.coordinator.OnJoin(context.Background(), "conn-1", r2.ID))

	roomID, ok := f.hub.RoomOf("conn-1")
	req.True(ok)
	req.Equal(r2.ID.String(), roomID)

	// Events published to the first room no longer reach the connection.
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
	f.hub.Publish(context.Background(), r1.ID.String(), domain.OutboundEvent{Event: domain.EventMessage, Data: "stale"})
	req.Empty(c.events(t))

	online, err := f.roster.Online(context.Background(), r1.ID.String())
	req.NoError(err)
	req.NotContains(online, user.ID.String())
}

func TestAddMessageBroadcastsToAllIncludingAuthor(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	f.addUser("tok-a", "alice")
	f.addUser("tok-b", "bob")
	room := f.addRoom("general")
	author := f.connect(t, "conn-a", "tok-a")
	other := f.connect(t, "conn-b", "tok-b")
	req.NoError(f.coordinator.OnJoin(context.Background(), "conn-a", room.ID))
	req.NoError(f.coordinator.OnJoin(context.Background(), "conn-b", room.ID))
	author.mu.Lock()
	author.sent = nil
	author.mu.Unlock()
	other.mu.Lock()
	other.sent = nil
	other.mu.Unlock()

	req.NoError(f.coordinator.OnAddMessage(context.Background(), "conn-a", "hi"))

	req.Len(f.messages.added, 1)
	for _, c := range []*fakeClient{author, other} {
		events := c.events(t)
		req.Len(events, 1)
		req.Equal(domain.EventMessage, events[0].Event)
		req.Equal("hi", events[0].Data)
	}
}

func TestAddMessageOutsideRoomIsDropped(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	f.addUser("tok", "alice")
	f.connect(t, "conn-1", "tok")

	req.NoError(f.coordinator.OnAddMessage(context.Background(), "conn-1", "hi"))
	req.Empty(f.messages.added)
}

func TestRemoveMessageByAuthor(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	f.addUser("tok", "alice")
	room := f.addRoom("general")
	c := f.connect(t, "conn-1", "tok")
	req.NoError(f.coordinator.OnJoin(context.Background(), "conn-1", room.ID))
	req.NoError(f.coordinator.OnAddMessage(context.Background(), "conn-1", "oops"))
	msgID := f.messages.added[0].ID
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()

	req.NoError(f.coordinator.OnRemoveMessage(context.Background(), "conn-1", msgID))

	events := c.events(t)
	req.Len(events, 1)
	req.Equal(domain.EventMessageRemoved, events[0].Event)
	req.Equal(msgID.String(), events[0].Data)
}

func TestRemoveMessageForbidden(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	f.addUser("tok-a", "alice")
	f.addUser("tok-b", "bob")
	room := f.addRoom("general")
	author := f.connect(t, "conn-a", "tok-a")
	intruder := f.connect(t, "conn-b", "tok-b")
	req.NoError(f.coordinator.OnJoin(context.Background(), "conn-a", room.ID))
	req.NoError(f.coordinator.OnJoin(context.Background(), "conn-b", room.ID))
	req.NoError(f.coordinator.OnAddMessage(context.Background(), "conn-a", "mine"))
	msgID := f.messages.added[0].ID
	author.mu.Lock()
	author.sent = nil
	author.mu.Unlock()
	intruder.mu.Lock()
	intruder.sent = nil
	intruder.mu.Unlock()

	// Someone else's message and a nonexistent one both come back Forbidden.
	err := f.coordinator.OnRemoveMessage(context.Background(), "conn-b", msgID)
	req.ErrorIs(err, domain.ErrMessageForbidden)
	err = f.coordinator.OnRemoveMessage(context.Background(), "conn-b", uuid.New())
	req.ErrorIs(err, domain.ErrMessageForbidden)

	// No broadcast on a refused removal.
	req.Empty(author.events(t))
	req.Empty(intruder.events(t))
}

func TestLeaveIsSilent(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	user := f.addUser("tok-a", "alice")
	f.addUser("tok-b", "bob")
	room := f.addRoom("general")
	leaver := f.connect(t, "conn-a", "tok-a")
	stayer := f.connect(t, "conn-b", "tok-b")
	req.NoError(f.coordinator.OnJoin(context.Background(), "conn-a", room.ID))
	req.NoError(f.coordinator.OnJoin(context.Background(), "conn-b", room.ID))
	leaver.mu.Lock()
	leaver.sent = nil
	leaver.mu.Unlock()
	stayer.mu.Lock()
	stayer.sent = nil
	stayer.mu.Unlock()

	req.NoError(f.coordinator.OnLeave(context.Background(), "conn-a", room.ID))

	_, ok := f.hub.RoomOf("conn-a")
	req.False(ok)
	req.Nil(f.directory.membership(t, user.ID))
	req.Empty(leaver.events(t))
	req.Empty(stayer.events(t))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	user := f.addUser("tok", "alice")
	room := f.addRoom("general")
	f.connect(t, "conn-1", "tok")
	req.NoError(f.coordinator.OnJoin(context.Background(), "conn-1", room.ID))

	f.coordinator.OnDisconnect(context.Background(), "conn-1")
	f.coordinator.OnDisconnect(context.Background(), "conn-1")

	_, err := f.table.IdentityOf("conn-1")
	req.ErrorIs(err, domain.ErrNotConnected)
	_, ok := f.hub.RoomOf("conn-1")
	req.False(ok)

	// Membership survives the disconnect for the next reconnect.
	stored := f.directory.membership(t, user.ID)
	req.NotNil(stored)
	req.Equal(room.ID, *stored)
}

func TestDisconnectDoesNotDisturbOtherConnectionsOfSameIdentity(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	user := f.addUser("tok", "alice")
	room := f.addRoom("general")
	f.connect(t, "phone", "tok")
	laptop := f.connect(t, "laptop", "tok")
	req.NoError(f.coordinator.OnJoin(context.Background(), "phone", room.ID))
	req.NoError(f.coordinator.OnJoin(context.Background(), "laptop", room.ID))

	f.coordinator.OnDisconnect(context.Background(), "phone")

	got, err := f.table.IdentityOf("laptop")
	req.NoError(err)
	req.Equal(user.ID, got)
	roomID, ok := f.hub.RoomOf("laptop")
	req.True(ok)
	req.Equal(room.ID.String(), roomID)

	laptop.mu.Lock()
	laptop.sent = nil
	laptop.mu.Unlock()
	f.hub.Publish(context.Background(), room.ID.String(), domain.OutboundEvent{Event: domain.EventMessage, Data: "still here"})
	req.Len(laptop.events(t), 1)
}

func TestLastOccupantLeaveClearsRoster(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	f.addUser("tok-a", "alice")
	bob := f.addUser("tok-b", "bob")
	room := f.addRoom("general")
	f.connect(t, "conn-a", "tok-a")
	f.connect(t, "conn-b", "tok-b")
	req.NoError(f.coordinator.OnJoin(context.Background(), "conn-a", room.ID))
	req.NoError(f.coordinator.OnJoin(context.Background(), "conn-b", room.ID))

	req.NoError(f.coordinator.OnLeave(context.Background(), "conn-a", room.ID))

	// One occupant remains: the roster key stays, minus the leaver.
	req.False(f.roster.wasCleared(room.ID.String()))
	online, err := f.roster.Online(context.Background(), room.ID.String())
	req.NoError(err)
	req.Equal([]string{bob.ID.String()}, online)

	req.NoError(f.coordinator.OnLeave(context.Background(), "conn-b", room.ID))
	req.True(f.roster.wasCleared(room.ID.String()))
}

func TestLastOccupantDisconnectClearsRoster(t *testing.T) {
	req := require.New(t)
	f := newFixture(1)
	f.addUser("tok", "alice")
	room := f.addRoom("general")
	f.connect(t, "conn-1", "tok")
	req.NoError(f.coordinator.OnJoin(context.Background(), "conn-1", room.ID))

	f.coordinator.OnDisconnect(context.Background(), "conn-1")

	req.True(f.roster.wasCleared(room.ID.String()))
	online, err := f.roster.Online(context.Background(), room.ID.String())
	req.NoError(err)
	req.Empty(online)
}
