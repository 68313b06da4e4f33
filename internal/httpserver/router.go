package httpserver

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"storefront/internal/auth"
	"storefront/internal/domain"
	cartsvc "storefront/internal/service/cart"
	chatsvc "storefront/internal/service/chat"
	"storefront/internal/service/checkout"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type productService interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
}

type cartRegistry interface {
	Open(ctx context.Context, owner string) (*cartsvc.Engine, func())
}

type checkoutService interface {
	Checkout(ctx context.Context, userID string, cart checkout.Cart) (*domain.Order, error)
}

type chatService interface {
	CreateChatRoom(ctx context.Context, actor chatsvc.Actor, subject *string, priority domain.Priority) (*domain.ChatRoom, error)
	GetUserChatRooms(ctx context.Context, userID string) []domain.ChatRoom
	GetRoomsByStatus(ctx context.Context, actor chatsvc.Actor, status domain.RoomStatus) ([]domain.ChatRoom, error)
	GetRoom(ctx context.Context, actor chatsvc.Actor, roomID string) (*domain.ChatRoom, error)
	GetRoomMessages(ctx context.Context, actor chatsvc.Actor, roomID string) ([]domain.ChatMessage, error)
	SendMessage(ctx context.Context, actor chatsvc.Actor, roomID string, in chatsvc.SendInput) (*domain.ChatMessage, error)
	MarkMessagesAsRead(ctx context.Context, actor chatsvc.Actor, roomID string) (int64, error)
	UnreadCount(ctx context.Context, actor chatsvc.Actor, roomID string) (int, error)
	AssignAgentToRoom(ctx context.Context, actor chatsvc.Actor, roomID, agentID string) (*domain.ChatRoom, error)
	CloseChatRoom(ctx context.Context, actor chatsvc.Actor, roomID string) (*domain.ChatRoom, error)
	UpdateAgentAvailability(ctx context.Context, actor chatsvc.Actor, isAvailable bool, statusMessage *string) (*domain.AgentAvailability, error)
	GetAgentAvailability(ctx context.Context) []domain.AgentAvailability
	GetAvailableAgents(ctx context.Context) []domain.AgentAvailability
	NewSession(actor chatsvc.Actor) *chatsvc.Session
}

type identityStore interface {
	Sync(ctx context.Context, u domain.User) (*domain.User, error)
}

type tokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Deps groups the services the router dispatches to.
type Deps struct {
	ProductSvc  productService
	Carts       cartRegistry
	CheckoutSvc checkoutService
	ChatSvc     chatService
	Verifier    tokenVerifier
	Users       identityStore
	Redis       *redis.Client

	CORSAllowedOrigins    []string
	ChatSendRatePerMinute int
	ChatPollInterval      time.Duration
}

const identityCacheSize = 10000

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if deps.ProductSvc == nil || deps.Carts == nil || deps.CheckoutSvc == nil || deps.ChatSvc == nil || deps.Verifier == nil {
		return nil, errors.New("httpserver: missing dependency")
	}
	if deps.ChatPollInterval <= 0 {
		deps.ChatPollInterval = 30 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	router.Use(cors.New(corsConfig(deps.CORSAllowedOrigins)))

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db, deps.Redis))

	identities := newIdentitySync(deps.Users, identityCacheSize)
	optionalAuth := authMiddleware(deps.Verifier, identities, false)
	requireAuth := authMiddleware(deps.Verifier, identities, true)
	staffOnly := requireRole(domain.RoleAgent, domain.RoleAdmin)

	router.GET("/products", listProductsHandler(deps.ProductSvc))
	router.GET("/products/:id", getProductHandler(deps.ProductSvc))

	cart := router.Group("/cart", optionalAuth, cartOwnerMiddleware())
	cart.GET("", getCartHandler(deps.Carts))
	cart.POST("/items", addCartItemHandler(deps.Carts, deps.ProductSvc))
	cart.PATCH("/items/:productId", updateCartItemHandler(deps.Carts))
	cart.DELETE("/items/:productId", removeCartItemHandler(deps.Carts))
	cart.GET("/items/:productId/quantity", cartItemQuantityHandler(deps.Carts))
	cart.DELETE("", clearCartHandler(deps.Carts))
	cart.POST("/toggle", toggleCartHandler(deps.Carts))
	cart.POST("/close", closeCartHandler(deps.Carts))
	cart.POST("/checkout", requireAuth, checkoutHandler(deps.Carts, deps.CheckoutSvc))

	limiter := newRateLimiter(deps.ChatSendRatePerMinute, time.Minute)
	chat := router.Group("/chat", requireAuth)
	chat.POST("/rooms", createRoomHandler(deps.ChatSvc))
	chat.GET("/rooms", listRoomsHandler(deps.ChatSvc))
	chat.GET("/rooms/:id", getRoomHandler(deps.ChatSvc))
	chat.GET("/rooms/:id/messages", listMessagesHandler(deps.ChatSvc))
	chat.POST("/rooms/:id/messages", limiter.middleware(), sendMessageHandler(deps.ChatSvc))
	chat.POST("/rooms/:id/read", markReadHandler(deps.ChatSvc))
	chat.GET("/rooms/:id/unread", unreadHandler(deps.ChatSvc))
	chat.POST("/rooms/:id/assign", staffOnly, assignHandler(deps.ChatSvc))
	chat.POST("/rooms/:id/close", closeRoomHandler(deps.ChatSvc))
	chat.GET("/rooms/:id/stream", streamHandler(logger, deps.ChatSvc, deps.ChatPollInterval))
	chat.PUT("/agents/me/availability", staffOnly, updateAvailabilityHandler(deps.ChatSvc))
	chat.GET("/agents/availability", agentAvailabilityHandler(deps.ChatSvc))
	chat.GET("/agents/available", availableAgentsHandler(deps.ChatSvc))

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", cartSessionHeader},
		ExposeHeaders:    []string{cartSessionHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
