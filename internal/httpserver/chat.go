package httpserver

import (
	"net/http"

	"storefront/internal/domain"
	chatsvc "storefront/internal/service/chat"

	"github.com/gin-gonic/gin"
)

type createRoomRequest struct {
	Subject  *string         `json:"subject"`
	Priority domain.Priority `json:"priority"`
}

type sendMessageRequest struct {
	Message     string             `json:"message"`
	MessageType domain.MessageType `json:"messageType"`
	FileURL     *string            `json:"fileUrl"`
}

type assignRequest struct {
	AgentID string `json:"agentId"`
}

type availabilityRequest struct {
	IsAvailable   *bool   `json:"isAvailable" binding:"required"`
	StatusMessage *string `json:"statusMessage"`
}

func createRoomHandler(svc chatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRoomRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				abortJSON(c, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		room, err := svc.CreateChatRoom(c.Request.Context(), actorFrom(c), req.Subject, req.Priority)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, room)
	}
}

// listRoomsHandler returns the caller's rooms, or with ?status= the staff
// queue for that status.
func listRoomsHandler(svc chatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		if status := c.Query("status"); status != "" {
			rooms, err := svc.GetRoomsByStatus(c.Request.Context(), actor, domain.RoomStatus(status))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"results": rooms})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": svc.GetUserChatRooms(c.Request.Context(), actor.ID)})
	}
}

func getRoomHandler(svc chatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		room, err := svc.GetRoom(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, room)
	}
}

func listMessagesHandler(svc chatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		msgs, err := svc.GetRoomMessages(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": msgs})
	}
}

func sendMessageHandler(svc chatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortJSON(c, http.StatusBadRequest, "invalid request body")
			return
		}
		msg, err := svc.SendMessage(c.Request.Context(), actorFrom(c), c.Param("id"), chatsvc.SendInput{
			Text:        req.Message,
			MessageType: req.MessageType,
			FileURL:     req.FileURL,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	}
}

func markReadHandler(svc chatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svc.MarkMessagesAsRead(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"marked": n})
	}
}

func unreadHandler(svc chatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svc.UnreadCount(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"unread": n})
	}
}

func assignHandler(svc chatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req assignRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				abortJSON(c, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		room, err := svc.AssignAgentToRoom(c.Request.Context(), actorFrom(c), c.Param("id"), req.AgentID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, room)
	}
}

func closeRoomHandler(svc chatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		room, err := svc.CloseChatRoom(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, room)
	}
}

func updateAvailabilityHandler(svc chatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req availabilityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortJSON(c, http.StatusBadRequest, "isAvailable required")
			return
		}
		a, err := svc.UpdateAgentAvailability(c.Request.Context(), actorFrom(c), *req.IsAvailable, req.StatusMessage)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

func agentAvailabilityHandler(svc chatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"results": svc.GetAgentAvailability(c.Request.Context())})
	}
}

func availableAgentsHandler(svc chatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"results": svc.GetAvailableAgents(c.Request.Context())})
	}
}
