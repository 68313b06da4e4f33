package chat

import (
	"context"

	"storefront/internal/domain"
)

type CreateRoomInput struct {
	CustomerID string
	Subject    *string
	Priority   domain.Priority
}

type InsertMessageInput struct {
	RoomID      string
	SenderID    string
	Message     string
	MessageType domain.MessageType
	FileURL     *string
}

type AvailabilityInput struct {
	UserID        string
	IsAvailable   bool
	StatusMessage *string
}

// Repository is the relational store behind support chat. Room transitions
// (AssignAgent, Close) and message inserts fail with domain.ErrRoomClosed once
// the room is closed.
type Repository interface {
	CreateRoom(ctx context.Context, in CreateRoomInput) (*domain.ChatRoom, error)
	GetRoom(ctx context.Context, id string) (*domain.ChatRoom, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]domain.ChatRoom, error)
	ListRoomsByStatus(ctx context.Context, status domain.RoomStatus) ([]domain.ChatRoom, error)

	ListMessages(ctx context.Context, roomID string) ([]domain.ChatMessage, error)
	GetMessage(ctx context.Context, id string) (*domain.ChatMessage, error)
	InsertMessage(ctx context.Context, in InsertMessageInput) (*domain.ChatMessage, error)
	MarkRead(ctx context.Context, roomID, readerID string) (int64, error)
	CountUnread(ctx context.Context, roomID, readerID string) (int, error)

	AssignAgent(ctx context.Context, roomID, agentID string) (*domain.ChatRoom, *domain.ChatMessage, error)
	Close(ctx context.Context, roomID, actorID string) (*domain.ChatRoom, *domain.ChatMessage, error)

	UpsertAvailability(ctx context.Context, in AvailabilityInput) (*domain.AgentAvailability, error)
	ListAvailability(ctx context.Context) ([]domain.AgentAvailability, error)
	ListAvailableAgents(ctx context.Context) ([]domain.AgentAvailability, error)
}
