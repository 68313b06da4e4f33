package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/realtime"
	chatrepo "storefront/internal/repository/chat"
)

// Actor is the authenticated caller of a chat operation.
type Actor struct {
	ID   string
	Role domain.Role
}

type userReader interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Service runs support chat operations against the relational store and
// announces every confirmed write on the room's realtime channel.
//
// Reads never fail on backend errors: they log and return an empty result.
// Authorization and lookup failures are still reported.
type Service struct {
	repo   chatrepo.Repository
	users  userReader
	broker realtime.Broker
	logger *log.Logger
}

func New(repo chatrepo.Repository, users userReader, broker realtime.Broker, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{repo: repo, users: users, broker: broker, logger: logger}
}

func (s *Service) CreateChatRoom(ctx context.Context, actor Actor, subject *string, priority domain.Priority) (*domain.ChatRoom, error) {
	if actor.ID == "" {
		return nil, domain.ErrForbidden
	}
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: priority %q", domain.ErrInvalidInput, priority)
	}
	if subject != nil {
		trimmed := strings.TrimSpace(*subject)
		if trimmed == "" {
			subject = nil
		} else {
			subject = &trimmed
		}
	}
	return s.repo.CreateRoom(ctx, chatrepo.CreateRoomInput{
		CustomerID: actor.ID,
		Subject:    subject,
		Priority:   priority,
	})
}

// GetUserChatRooms lists rooms where userID is the customer or the agent,
// most recently active first.
func (s *Service) GetUserChatRooms(ctx context.Context, userID string) []domain.ChatRoom {
	rooms, err := s.repo.ListRoomsForUser(ctx, userID)
	if err != nil {
		s.logger.Printf("chat service: list rooms user_id=%s error=%v", userID, err)
		return []domain.ChatRoom{}
	}
	return nonNil(rooms)
}

// GetRoomsByStatus is the staff queue view, e.g. all waiting rooms.
func (s *Service) GetRoomsByStatus(ctx context.Context, actor Actor, status domain.RoomStatus) ([]domain.ChatRoom, error) {
	if !actor.Role.IsStaff() {
		return nil, domain.ErrForbidden
	}
	rooms, err := s.repo.ListRoomsByStatus(ctx, status)
	if err != nil {
		s.logger.Printf("chat service: list rooms status=%s error=%v", status, err)
		return []domain.ChatRoom{}, nil
	}
	return nonNil(rooms), nil
}

func (s *Service) GetRoom(ctx context.Context, actor Actor, roomID string) (*domain.ChatRoom, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, room) {
		return nil, domain.ErrForbidden
	}
	return room, nil
}

// GetRoomMessages returns the room's messages oldest first with sender identity.
func (s *Service) GetRoomMessages(ctx context.Context, actor Actor, roomID string) ([]domain.ChatMessage, error) {
	if _, err := s.GetRoom(ctx, actor, roomID); err != nil {
		if errors.Is(err, domain.ErrForbidden) || errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		s.logger.Printf("chat service: messages room_id=%s error=%v", roomID, err)
		return []domain.ChatMessage{}, nil
	}
	messages, err := s.repo.ListMessages(ctx, roomID)
	if err != nil {
		s.logger.Printf("chat service: messages room_id=%s error=%v", roomID, err)
		return []domain.ChatMessage{}, nil
	}
	return nonNil(messages), nil
}

type SendInput struct {
	Text        string
	MessageType domain.MessageType
	FileURL     *string
}

// SendMessage appends a message and bumps the room's updatedAt. Closed rooms
// reject with domain.ErrRoomClosed and are left unchanged.
func (s *Service) SendMessage(ctx context.Context, actor Actor, roomID string, in SendInput) (*domain.ChatMessage, error) {
	msgType := in.MessageType
	if msgType == "" {
		msgType = domain.MessageTypeText
	}
	if !msgType.Valid() || msgType == domain.MessageTypeSystem {
		return nil, fmt.Errorf("%w: message type %q", domain.ErrInvalidInput, msgType)
	}
	text := strings.TrimSpace(in.Text)
	hasFile := in.FileURL != nil && strings.TrimSpace(*in.FileURL) != ""
	if text == "" && !hasFile {
		return nil, fmt.Errorf("%w: empty message", domain.ErrInvalidInput)
	}
	if (msgType == domain.MessageTypeImage || msgType == domain.MessageTypeFile) && !hasFile {
		return nil, fmt.Errorf("%w: %s message requires fileUrl", domain.ErrInvalidInput, msgType)
	}

	room, err := s.GetRoom(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}
	if room.IsClosed() {
		return nil, domain.ErrRoomClosed
	}

	msg, err := s.repo.InsertMessage(ctx, chatrepo.InsertMessageInput{
		RoomID:      roomID,
		SenderID:    actor.ID,
		Message:     text,
		MessageType: msgType,
		FileURL:     in.FileURL,
	})
	if err != nil {
		s.logger.Printf("chat service: send room_id=%s sender_id=%s error=%v", roomID, actor.ID, err)
		return nil, err
	}
	s.publishMessage(ctx, msg)
	return msg, nil
}

// MarkMessagesAsRead marks every unread message in the room not authored by
// the actor. It returns how many rows changed.
func (s *Service) MarkMessagesAsRead(ctx context.Context, actor Actor, roomID string) (int64, error) {
	if _, err := s.GetRoom(ctx, actor, roomID); err != nil {
		return 0, err
	}
	n, err := s.repo.MarkRead(ctx, roomID, actor.ID)
	if err != nil {
		s.logger.Printf("chat service: mark read room_id=%s reader_id=%s error=%v", roomID, actor.ID, err)
		return 0, err
	}
	return n, nil
}

// UnreadCount counts messages in the room the actor did not author and has not read.
func (s *Service) UnreadCount(ctx context.Context, actor Actor, roomID string) (int, error) {
	if _, err := s.GetRoom(ctx, actor, roomID); err != nil {
		if errors.Is(err, domain.ErrForbidden) || errors.Is(err, domain.ErrNotFound) {
			return 0, err
		}
		return 0, nil
	}
	n, err := s.repo.CountUnread(ctx, roomID, actor.ID)
	if err != nil {
		s.logger.Printf("chat service: unread room_id=%s user_id=%s error=%v", roomID, actor.ID, err)
		return 0, nil
	}
	return n, nil
}

// AssignAgentToRoom moves a waiting or active room to active under agentID
// and appends the join system message. An empty agentID assigns the actor.
func (s *Service) AssignAgentToRoom(ctx context.Context, actor Actor, roomID, agentID string) (*domain.ChatRoom, error) {
	if !actor.Role.IsStaff() {
		return nil, domain.ErrForbidden
	}
	if agentID == "" {
		agentID = actor.ID
	}
	if s.users != nil && agentID != actor.ID {
		agent, err := s.users.GetByID(ctx, agentID)
		if err != nil {
			return nil, err
		}
		if !agent.Role.IsStaff() {
			return nil, fmt.Errorf("%w: user %s is not an agent", domain.ErrInvalidInput, agentID)
		}
	}

	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.IsClosed() {
		return nil, domain.ErrRoomClosed
	}

	room, msg, err := s.repo.AssignAgent(ctx, roomID, agentID)
	if err != nil {
		s.logger.Printf("chat service: assign room_id=%s agent_id=%s error=%v", roomID, agentID, err)
		return nil, err
	}
	s.logger.Printf("chat service: assigned room_id=%s agent_id=%s", roomID, agentID)
	s.publishRoom(ctx, room.ID)
	s.publishMessage(ctx, msg)
	return room, nil
}

// CloseChatRoom closes the room and appends the closing system message.
// Closing a waiting room is allowed; closing twice is ErrRoomClosed.
func (s *Service) CloseChatRoom(ctx context.Context, actor Actor, roomID string) (*domain.ChatRoom, error) {
	room, err := s.GetRoom(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}
	if room.IsClosed() {
		return nil, domain.ErrRoomClosed
	}

	room, msg, err := s.repo.Close(ctx, roomID, actor.ID)
	if err != nil {
		s.logger.Printf("chat service: close room_id=%s error=%v", roomID, err)
		return nil, err
	}
	s.logger.Printf("chat service: closed room_id=%s by=%s", roomID, actor.ID)
	s.publishRoom(ctx, room.ID)
	s.publishMessage(ctx, msg)
	return room, nil
}

func (s *Service) UpdateAgentAvailability(ctx context.Context, actor Actor, isAvailable bool, statusMessage *string) (*domain.AgentAvailability, error) {
	if !actor.Role.IsStaff() {
		return nil, domain.ErrForbidden
	}
	return s.repo.UpsertAvailability(ctx, chatrepo.AvailabilityInput{
		UserID:        actor.ID,
		IsAvailable:   isAvailable,
		StatusMessage: statusMessage,
	})
}

func (s *Service) GetAgentAvailability(ctx context.Context) []domain.AgentAvailability {
	rows, err := s.repo.ListAvailability(ctx)
	if err != nil {
		s.logger.Printf("chat service: list availability error=%v", err)
		return []domain.AgentAvailability{}
	}
	return nonNil(rows)
}

func (s *Service) GetAvailableAgents(ctx context.Context) []domain.AgentAvailability {
	rows, err := s.repo.ListAvailableAgents(ctx)
	if err != nil {
		s.logger.Printf("chat service: list available agents error=%v", err)
		return []domain.AgentAvailability{}
	}
	return nonNil(rows)
}

// NewSession starts a per-client session for actor. The caller must Close it.
func (s *Service) NewSession(actor Actor) *Session {
	return newSession(s, actor)
}

func (s *Service) publishMessage(ctx context.Context, msg *domain.ChatMessage) {
	s.publish(ctx, msg.RoomID, realtime.Event{
		Event:  realtime.EventInsert,
		Table:  realtime.TableMessages,
		ID:     msg.ID,
		RoomID: msg.RoomID,
	})
}

func (s *Service) publishRoom(ctx context.Context, roomID string) {
	s.publish(ctx, roomID, realtime.Event{
		Event: realtime.EventUpdate,
		Table: realtime.TableRooms,
		ID:    roomID,
	})
}

// publish failures are logged only; the write already committed and the poll
// backstop will pick it up.
func (s *Service) publish(ctx context.Context, roomID string, e realtime.Event) {
	if s.broker == nil {
		return
	}
	payload, err := e.Encode()
	if err != nil {
		s.logger.Printf("chat service: encode event room_id=%s error=%v", roomID, err)
		return
	}
	if err := s.broker.Publish(ctx, realtime.RoomChannel(roomID), payload); err != nil {
		s.logger.Printf("chat service: publish room_id=%s event=%s error=%v", roomID, e.Event, err)
	}
}

func canAccess(actor Actor, room *domain.ChatRoom) bool {
	return room.HasParticipant(actor.ID) || actor.Role.IsStaff()
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
