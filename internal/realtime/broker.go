// Package realtime carries row-change notifications between the API nodes and
// the clients watching a chat room.
package realtime

import (
	"context"
	"encoding/json"
)

const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"

	TableMessages = "chat_messages"
	TableRooms    = "chat_rooms"
)

// Event is a bare change notification. Consumers re-read the row by ID since
// the payload carries no row data.
type Event struct {
	Event  string `json:"event"`
	Table  string `json:"table"`
	ID     string `json:"id"`
	RoomID string `json:"room_id,omitempty"`
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func DecodeEvent(payload []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(payload, &e)
	return e, err
}

// RoomChannel names the channel that carries all events of one room.
func RoomChannel(roomID string) string {
	return "chat:room:" + roomID
}

type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription delivers payloads in publish order until Close. C is closed
// once the subscription ends. Close is idempotent.
type Subscription interface {
	C() <-chan []byte
	Close() error
}
