package domain

import "time"

type RoomStatus string

const (
	RoomStatusWaiting RoomStatus = "waiting"
	RoomStatusActive  RoomStatus = "active"
	RoomStatusClosed  RoomStatus = "closed"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

const (
	SystemMessageAgentJoined = "Agent has joined the chat"
	SystemMessageChatClosed  = "Chat has been closed"
)

// ChatRoom is a customer support conversation. CustomerID never changes after
// creation and closed is terminal.
type ChatRoom struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customerId"`
	AgentID    *string    `json:"agentId"`
	Status     RoomStatus `json:"status"`
	Priority   Priority   `json:"priority"`
	Subject    *string    `json:"subject,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ClosedAt   *time.Time `json:"closedAt,omitempty"`
}

func (r ChatRoom) IsClosed() bool {
	return r.Status == RoomStatusClosed
}

// HasParticipant reports whether userID is the room's customer or assigned agent.
func (r ChatRoom) HasParticipant(userID string) bool {
	if r.CustomerID == userID {
		return true
	}
	return r.AgentID != nil && *r.AgentID == userID
}

// ChatMessage belongs to exactly one room. System messages carry no
// meaningful sender for display.
type ChatMessage struct {
	ID          string        `json:"id"`
	RoomID      string        `json:"roomId"`
	SenderID    string        `json:"senderId"`
	Message     string        `json:"message"`
	MessageType MessageType   `json:"messageType"`
	FileURL     *string       `json:"fileUrl,omitempty"`
	IsRead      bool          `json:"isRead"`
	CreatedAt   time.Time     `json:"createdAt"`
	Sender      *UserIdentity `json:"sender,omitempty"`
}

// AgentAvailability is one row per agent, last write wins.
type AgentAvailability struct {
	UserID        string        `json:"userId"`
	IsAvailable   bool          `json:"isAvailable"`
	StatusMessage *string       `json:"statusMessage,omitempty"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	Agent         *UserIdentity `json:"agent,omitempty"`
}
