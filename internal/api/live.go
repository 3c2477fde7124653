package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type liveEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// live upgrades to a websocket and streams session state, the cart and
// the unread count until the client goes away. Each connection owns its
// own session, so closing the socket releases both subscriptions.
func (s *Server) live(c *gin.Context) {
	p := principal(c)
	log := logrus.WithFields(logrus.Fields{"component": "live", "uid": p.UID})

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := s.newSession()
	defer sess.SignOut()

	states, stopStates := sess.Watch()
	defer stopStates()

	if err := sess.SignIn(ctx, p); err != nil {
		log.WithError(err).Error("live sign-in failed")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "sign-in failed"),
			time.Now().Add(writeWait))
		return
	}

	// The reader only drains control frames; a read error means the
	// client is gone.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	carts := sess.CartUpdates()
	unread := sess.UnreadUpdates()

	send := func(ev liveEvent) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			log.WithError(err).Debug("websocket write failed")
			return false
		}
		return true
	}

	log.Info("live feed connected")
	defer log.Info("live feed disconnected")

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if !send(liveEvent{Type: "session", Data: st}) {
				return
			}
		case cart, ok := <-carts:
			if !ok {
				carts = nil
				continue
			}
			if !send(liveEvent{Type: "cart", Data: cart}) {
				return
			}
		case n, ok := <-unread:
			if !ok {
				unread = nil
				continue
			}
			if !send(liveEvent{Type: "unread", Data: n}) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
