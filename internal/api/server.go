// Package api exposes the store over HTTP with gin, plus a websocket that
// streams the live cart and unread count of the signed-in user.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/safar/cosmetics-store/internal/auth"
	"github.com/safar/cosmetics-store/internal/cart"
	"github.com/safar/cosmetics-store/internal/config"
	"github.com/safar/cosmetics-store/internal/copywriter"
	"github.com/safar/cosmetics-store/internal/messaging"
	"github.com/safar/cosmetics-store/internal/session"
	"golang.org/x/time/rate"
)

type CopyGenerator interface {
	Generate(ctx context.Context, in copywriter.Input) (*copywriter.Output, error)
}

type Deps struct {
	DB         *sql.DB
	Auth       *auth.Service
	Carts      *cart.Service
	Messages   *messaging.Service
	Copy       CopyGenerator
	Server     config.ServerConfig
	CopyPerMin int
}

type Server struct {
	db       *sql.DB
	auth     *auth.Service
	carts    *cart.Service
	messages *messaging.Service
	copy     CopyGenerator
	origins  []string

	copyLimiter *rateLimiter
	upgrader    websocket.Upgrader
}

func NewServer(deps Deps) *Server {
	perMin := deps.CopyPerMin
	if perMin <= 0 {
		perMin = 10
	}

	s := &Server{
		db:          deps.DB,
		auth:        deps.Auth,
		carts:       deps.Carts,
		messages:    deps.Messages,
		copy:        deps.Copy,
		origins:     deps.Server.AllowedOrigins,
		copyLimiter: newRateLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// newSession wires a session to the services of this server.
func (s *Server) newSession() *session.Session {
	return session.New(session.Deps{
		Profiles:   session.StoreProfiles{DB: s.db},
		Carts:      s.carts,
		Unread:     s.messages,
		Identities: s.auth,
	})
}

func (s *Server) allowAllOrigins() bool {
	return len(s.origins) == 0 || slices.Contains(s.origins, "*")
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.allowAllOrigins() || slices.Contains(s.origins, origin)
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if s.allowAllOrigins() {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.origins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	r.POST("/auth/register", s.register)
	r.POST("/auth/login", s.login)

	r.GET("/products", s.listProducts)
	r.GET("/products/:id", s.getProduct)
	r.GET("/products/:id/reviews", s.listReviews)

	signedIn := r.Group("", s.authRequired())
	signedIn.POST("/auth/logout", s.logout)
	signedIn.GET("/me", s.me)
	signedIn.POST("/me/profile", s.createProfile)
	signedIn.DELETE("/me", s.deleteAccount)
	signedIn.GET("/live", s.live)

	member := signedIn.Group("", s.profileRequired())
	member.POST("/products/:id/reviews", s.addReview)

	member.GET("/cart", s.getCart)
	member.POST("/cart/items", s.addCartItem)
	member.PATCH("/cart/items/:id", s.updateCartItem)
	member.DELETE("/cart/items/:id", s.removeCartItem)
	member.DELETE("/cart", s.clearCart)

	member.POST("/orders", s.placeOrder)
	member.GET("/orders", s.listOrders)
	member.GET("/orders/:id", s.getOrder)
	member.GET("/orders/:id/messages", s.listMessages)
	member.POST("/orders/:id/messages", s.sendMessage)
	member.POST("/orders/:id/messages/read", s.markRead)
	member.GET("/messages/unread", s.unreadCount)

	seller := member.Group("", sellerRequired())
	seller.POST("/products", s.createProduct)
	seller.PATCH("/products/:id", s.updateProduct)
	seller.DELETE("/products/:id", s.deleteProduct)
	seller.PATCH("/orders/:id/status", s.updateOrderStatus)
	seller.POST("/copy/generate", s.copyLimiter.middleware(), s.generateCopy)

	return r
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, http.StatusBadRequest, "invalid_input", "invalid id")
		return 0, false
	}
	return id, true
}

func intQuery(c *gin.Context, key string, def, max int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return false
	}
	return true
}
