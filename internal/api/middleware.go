package api

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/cosmetics-store/internal/auth"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/safar/cosmetics-store/internal/models"
	"github.com/safar/cosmetics-store/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	principalKey = "principal"
	profileKey   = "profile"
)

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).Milliseconds(),
			"ip":       c.ClientIP(),
		}
		if p := principal(c); p != nil {
			fields["uid"] = p.UID
		}
		logrus.WithFields(fields).Info("request processed")
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	// Browsers cannot set headers on a websocket upgrade.
	return c.Query("access_token")
}

func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}

		p, err := s.auth.Verify(c.Request.Context(), token)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// profileRequired loads the caller's profile. An identity without one is
// signed in but cannot use the store.
func (s *Server) profileRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principal(c)
		user, err := store.GetUser(c.Request.Context(), s.db, p.UID)
		if errors.Is(err, database.ErrProfileNotFound) {
			abortWithError(c, http.StatusForbidden, "profile_required", "create a profile first")
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(profileKey, user)
		c.Next()
	}
}

func sellerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if u := profile(c); u == nil || u.Role != models.RoleSeller {
			abortWithError(c, http.StatusForbidden, "permission_denied", "seller account required")
			return
		}
		c.Next()
	}
}

func principal(c *gin.Context) *auth.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*auth.Principal)
	return p
}

func profile(c *gin.Context) *models.User {
	v, ok := c.Get(profileKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per key, evicting idle keys lazily.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	idle     time.Duration
}

func newRateLimiter(r rate.Limit, burst int) *rateLimiter {
	return &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    burst,
		idle:     3 * time.Minute,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for k, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idle {
			delete(rl.visitors, k)
		}
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

// middleware limits per signed-in user, falling back to the client IP.
func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if p := principal(c); p != nil {
			key = p.UID.String()
		}

		if !rl.allow(key) {
			abortWithError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, try again later")
			return
		}
		c.Next()
	}
}
