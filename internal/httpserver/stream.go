package httpserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"storefront/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type streamFrame struct {
	Type    string              `json:"type"`
	Message *domain.ChatMessage `json:"message,omitempty"`
	Room    *domain.ChatRoom    `json:"room,omitempty"`
}

// streamHandler pushes a room's messages and status changes over a websocket.
// Each connection owns one chat session; history is sent first, then live
// pushes, with periodic polling filling any gaps.
func streamHandler(logger *log.Logger, svc chatService, pollInterval time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		roomID := c.Param("id")
		room, err := svc.GetRoom(c.Request.Context(), actor, roomID)
		if err != nil {
			writeError(c, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Printf("chat stream: upgrade room_id=%s error=%v", roomID, err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		session := svc.NewSession(actor)
		defer session.Close()

		frames := make(chan streamFrame, 32)
		frames <- streamFrame{Type: "room", Room: room}
		enqueue := func(f streamFrame) {
			select {
			case frames <- f:
			case <-ctx.Done():
			}
		}
		if err := session.SubscribeToRoomMessages(ctx, roomID, func(m domain.ChatMessage) {
			enqueue(streamFrame{Type: "message", Message: &m})
		}); err != nil {
			logger.Printf("chat stream: subscribe room_id=%s error=%v", roomID, err)
			return
		}
		if err := session.SubscribeToRoomUpdates(ctx, roomID, func(r domain.ChatRoom) {
			enqueue(streamFrame{Type: "room", Room: &r})
		}); err != nil {
			logger.Printf("chat stream: subscribe updates room_id=%s error=%v", roomID, err)
			return
		}

		go readPump(conn, cancel)
		session.PollOnce(ctx)
		go session.Poll(ctx, pollInterval)

		logger.Printf("chat stream: open room_id=%s user_id=%s", roomID, actor.ID)
		writePump(ctx, conn, frames)
		logger.Printf("chat stream: closed room_id=%s user_id=%s", roomID, actor.ID)
	}
}

// readPump discards client frames and cancels the stream when the peer goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, frames <-chan streamFrame) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case f := <-frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
