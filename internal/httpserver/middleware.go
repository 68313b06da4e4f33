package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"storefront/internal/auth"
	"storefront/internal/domain"
	chatsvc "storefront/internal/service/chat"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	ctxUserID    = "user_id"
	ctxUserRole  = "user_role"
	ctxCartOwner = "cart_owner"

	ctxCartSessionNew = "cart_session_new"

	cartSessionHeader = "X-Cart-Session"
)

// authMiddleware reads a bearer token from the Authorization header, or from
// access_token for websocket upgrades where browsers cannot set headers.
// When required is false a missing token passes through anonymously.
func authMiddleware(verifier tokenVerifier, identities *identitySync, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				abortJSON(c, http.StatusUnauthorized, "invalid authorization header format")
				return
			}
			token = parts[1]
		} else if q := c.Query("access_token"); q != "" {
			token = q
		}

		if token == "" {
			if required {
				abortJSON(c, http.StatusUnauthorized, "authorization required")
				return
			}
			c.Next()
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if err := identities.ensure(c.Request.Context(), claims); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				abortJSON(c, http.StatusConflict, "email already belongs to another user")
				return
			}
			_ = c.Error(err)
			abortJSON(c, http.StatusServiceUnavailable, "identity store unavailable")
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUserRole, claims.Role)
		c.Next()
	}
}

// identitySync mirrors verified token claims into the users table that chat
// and order rows reference. Claims already written are remembered so steady
// traffic does not write on every request.
type identitySync struct {
	users identityStore

	mu   sync.Mutex
	seen map[string]struct{}
	max  int
}

func newIdentitySync(users identityStore, max int) *identitySync {
	return &identitySync{users: users, seen: make(map[string]struct{}), max: max}
}

func (s *identitySync) ensure(ctx context.Context, claims *auth.Claims) error {
	if s == nil || s.users == nil {
		return nil
	}
	key := claims.UserID + "|" + strings.ToLower(claims.Email) + "|" + string(claims.Role)
	s.mu.Lock()
	_, ok := s.seen[key]
	s.mu.Unlock()
	if ok {
		return nil
	}

	if _, err := s.users.Sync(ctx, domain.User{ID: claims.UserID, Email: claims.Email, Role: claims.Role}); err != nil {
		return err
	}

	s.mu.Lock()
	if len(s.seen) >= s.max {
		s.seen = make(map[string]struct{})
	}
	s.seen[key] = struct{}{}
	s.mu.Unlock()
	return nil
}

func requireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(ctxUserRole)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		abortJSON(c, http.StatusForbidden, "insufficient role")
	}
}

// cartOwnerMiddleware resolves whose cart a request addresses: the signed-in
// user, else the X-Cart-Session id, else a freshly minted session id that is
// echoed back for the client to keep.
func cartOwnerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetString(ctxUserID); userID != "" {
			c.Set(ctxCartOwner, "user:"+userID)
			c.Next()
			return
		}
		session := strings.TrimSpace(c.GetHeader(cartSessionHeader))
		if _, err := uuid.Parse(session); err != nil {
			session = uuid.NewString()
			c.Set(ctxCartSessionNew, true)
		}
		c.Header(cartSessionHeader, session)
		c.Set(ctxCartOwner, "anon:"+session)
		c.Next()
	}
}

func actorFrom(c *gin.Context) chatsvc.Actor {
	role, _ := c.Get(ctxUserRole)
	r, _ := role.(domain.Role)
	return chatsvc.Actor{ID: c.GetString(ctxUserID), Role: r}
}

// rateLimiter keeps one token bucket per user.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newRateLimiter(perWindow int, window time.Duration) *rateLimiter {
	if perWindow <= 0 {
		return &rateLimiter{limit: rate.Inf}
	}
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perWindow) / window.Seconds()),
		burst:    perWindow,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	if rl.limit == rate.Inf {
		return true
	}
	rl.mu.Lock()
	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[key] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(ctxUserID)
		if key == "" {
			key = c.ClientIP()
		}
		if !rl.allow(key) {
			abortJSON(c, http.StatusTooManyRequests, "too many messages, slow down")
			return
		}
		c.Next()
	}
}
