package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain"
)

// Memory is an in-process Repository with the same closed-room checks as the
// Postgres one. It also serves user lookups for sender identity.
type Memory struct {
	mu       sync.Mutex
	seq      int
	clock    time.Time
	users    map[string]domain.User
	rooms    map[string]domain.ChatRoom
	messages []domain.ChatMessage
	avail    map[string]domain.AgentAvailability

	failReads  bool
	failWrites bool
}

func NewMemory(users ...domain.User) *Memory {
	r := &Memory{
		clock: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		users: make(map[string]domain.User),
		rooms: make(map[string]domain.ChatRoom),
		avail: make(map[string]domain.AgentAvailability),
	}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

// AddUser registers a user for identity joins and GetByID.
func (r *Memory) AddUser(u domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

// Sync upserts a user by id, keeping names already known.
func (r *Memory) Sync(_ context.Context, u domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writeErr(); err != nil {
		return nil, err
	}
	if existing, ok := r.users[u.ID]; ok {
		existing.Email = u.Email
		existing.Role = u.Role
		u = existing
	}
	r.users[u.ID] = u
	return &u, nil
}

func (r *Memory) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

var errBackendDown = errors.New("chat memory: backend unavailable")

func (r *Memory) nextID(prefix string) string {
	r.seq++
	return fmt.Sprintf("%s-%d", prefix, r.seq)
}

func (r *Memory) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *Memory) readErr() error {
	if r.failReads {
		return errBackendDown
	}
	return nil
}

func (r *Memory) writeErr() error {
	if r.failWrites {
		return errBackendDown
	}
	return nil
}

func (r *Memory) CreateRoom(_ context.Context, in CreateRoomInput) (*domain.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writeErr(); err != nil {
		return nil, err
	}
	now := r.tick()
	room := domain.ChatRoom{
		ID:         r.nextID("room"),
		CustomerID: in.CustomerID,
		Status:     domain.RoomStatusWaiting,
		Priority:   in.Priority,
		Subject:    in.Subject,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.rooms[room.ID] = room
	return &room, nil
}

func (r *Memory) GetRoom(_ context.Context, id string) (*domain.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.readErr(); err != nil {
		return nil, err
	}
	room, ok := r.rooms[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &room, nil
}

func (r *Memory) ListRoomsForUser(_ context.Context, userID string) ([]domain.ChatRoom, error) {
	return r.listRooms(func(room domain.ChatRoom) bool { return room.HasParticipant(userID) })
}

func (r *Memory) ListRoomsByStatus(_ context.Context, status domain.RoomStatus) ([]domain.ChatRoom, error) {
	return r.listRooms(func(room domain.ChatRoom) bool { return room.Status == status })
}

func (r *Memory) listRooms(keep func(domain.ChatRoom) bool) ([]domain.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.readErr(); err != nil {
		return nil, err
	}
	var out []domain.ChatRoom
	for _, room := range r.rooms {
		if keep(room) {
			out = append(out, room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *Memory) ListMessages(_ context.Context, roomID string) ([]domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.readErr(); err != nil {
		return nil, err
	}
	var out []domain.ChatMessage
	for _, m := range r.messages {
		if m.RoomID == roomID {
			out = append(out, r.withSender(m))
		}
	}
	return out, nil
}

func (r *Memory) GetMessage(_ context.Context, id string) (*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.readErr(); err != nil {
		return nil, err
	}
	for _, m := range r.messages {
		if m.ID == id {
			msg := r.withSender(m)
			return &msg, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *Memory) withSender(m domain.ChatMessage) domain.ChatMessage {
	if u, ok := r.users[m.SenderID]; ok {
		id := u.Identity()
		m.Sender = &id
	}
	return m
}

func (r *Memory) InsertMessage(_ context.Context, in InsertMessageInput) (*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writeErr(); err != nil {
		return nil, err
	}
	room, ok := r.rooms[in.RoomID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if room.IsClosed() {
		return nil, domain.ErrRoomClosed
	}
	msg := r.insertLocked(in)
	room.UpdatedAt = msg.CreatedAt
	r.rooms[room.ID] = room
	out := r.withSender(msg)
	return &out, nil
}

func (r *Memory) insertLocked(in InsertMessageInput) domain.ChatMessage {
	msgType := in.MessageType
	if msgType == "" {
		msgType = domain.MessageTypeText
	}
	msg := domain.ChatMessage{
		ID:          r.nextID("msg"),
		RoomID:      in.RoomID,
		SenderID:    in.SenderID,
		Message:     in.Message,
		MessageType: msgType,
		FileURL:     in.FileURL,
		CreatedAt:   r.tick(),
	}
	r.messages = append(r.messages, msg)
	return msg
}

func (r *Memory) MarkRead(_ context.Context, roomID, readerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writeErr(); err != nil {
		return 0, err
	}
	var n int64
	for i, m := range r.messages {
		if m.RoomID == roomID && m.SenderID != readerID && !m.IsRead {
			r.messages[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (r *Memory) CountUnread(_ context.Context, roomID, readerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.readErr(); err != nil {
		return 0, err
	}
	n := 0
	for _, m := range r.messages {
		if m.RoomID == roomID && m.SenderID != readerID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (r *Memory) AssignAgent(_ context.Context, roomID, agentID string) (*domain.ChatRoom, *domain.ChatMessage, error) {
	return r.transition(roomID, agentID, domain.SystemMessageAgentJoined, func(room *domain.ChatRoom, _ time.Time) {
		room.AgentID = &agentID
		room.Status = domain.RoomStatusActive
	})
}

func (r *Memory) Close(_ context.Context, roomID, actorID string) (*domain.ChatRoom, *domain.ChatMessage, error) {
	return r.transition(roomID, actorID, domain.SystemMessageChatClosed, func(room *domain.ChatRoom, now time.Time) {
		room.Status = domain.RoomStatusClosed
		room.ClosedAt = &now
	})
}

func (r *Memory) transition(roomID, senderID, text string, mutate func(*domain.ChatRoom, time.Time)) (*domain.ChatRoom, *domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writeErr(); err != nil {
		return nil, nil, err
	}
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	if room.IsClosed() {
		return nil, nil, domain.ErrRoomClosed
	}
	now := r.tick()
	mutate(&room, now)
	room.UpdatedAt = now
	r.rooms[roomID] = room
	msg := r.withSender(r.insertLocked(InsertMessageInput{
		RoomID:      roomID,
		SenderID:    senderID,
		Message:     text,
		MessageType: domain.MessageTypeSystem,
	}))
	return &room, &msg, nil
}

func (r *Memory) UpsertAvailability(_ context.Context, in AvailabilityInput) (*domain.AgentAvailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writeErr(); err != nil {
		return nil, err
	}
	a := domain.AgentAvailability{
		UserID:        in.UserID,
		IsAvailable:   in.IsAvailable,
		StatusMessage: in.StatusMessage,
		UpdatedAt:     r.tick(),
	}
	if u, ok := r.users[in.UserID]; ok {
		id := u.Identity()
		a.Agent = &id
	}
	r.avail[in.UserID] = a
	return &a, nil
}

func (r *Memory) ListAvailability(_ context.Context) ([]domain.AgentAvailability, error) {
	return r.listAvailability(false)
}

func (r *Memory) ListAvailableAgents(_ context.Context) ([]domain.AgentAvailability, error) {
	return r.listAvailability(true)
}

func (r *Memory) listAvailability(onlyAvailable bool) ([]domain.AgentAvailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.readErr(); err != nil {
		return nil, err
	}
	var out []domain.AgentAvailability
	for _, a := range r.avail {
		if onlyAvailable && !a.IsAvailable {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// FailReads makes every read return a backend error until reset.
func (r *Memory) FailReads(v bool) {
	r.mu.Lock()
	r.failReads = v
	r.mu.Unlock()
}

// FailWrites makes every write return a backend error until reset.
func (r *Memory) FailWrites(v bool) {
	r.mu.Lock()
	r.failWrites = v
	r.mu.Unlock()
}
