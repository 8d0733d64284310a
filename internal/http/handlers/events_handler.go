package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/flashback-dashboard/internal/http/middleware"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// Browsers cannot set X-User-ID on a WebSocket handshake; the stream is
// read-only and scoped by user, so any origin may subscribe.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Events godoc
// @ID          streamEvents
// @Summary     Stream dashboard events
// @Description Upgrades to a WebSocket and streams feed, action state, history and notification events as JSON text frames.
// @Tags        Events
//
// @Param       X-User-ID  header  string  false "User ID" example(mod-1)
// @Param       user_id    query   string  false "User ID for browser clients" example(mod-1)
//
// @Success     101  {object} services.Event
// @Failure     503  {object} handlers.ErrorResponse "Event stream disabled"
// @Router      /events [get]
func (h *Handlers) Events(c *gin.Context) {
	if h.events == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "event stream disabled")
		return
	}
	uid := middleware.UserID(c)
	if q := strings.TrimSpace(c.Query("user_id")); q != "" && c.GetHeader(middleware.HeaderUserID) == "" {
		uid = q
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the client.
		middleware.LoggerFrom(c).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := h.events.Subscribe(uid)
	defer cancel()

	// The client never sends data; reading surfaces its close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
