package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dataponto/dataponto-backend/live"
	"github.com/dataponto/dataponto-backend/middlewares"
	"github.com/dataponto/dataponto-backend/services"
)

const defaultView = "/dashboard"

type LiveController struct {
	Hub           *live.Hub
	Notifications *services.NotificationCenter
	upgrader      websocket.Upgrader
	baseCtx       context.Context
}

// NewLiveController ties session lifetimes to ctx; cancelling it stops the
// pollers of every open session.
func NewLiveController(ctx context.Context, hub *live.Hub, center *services.NotificationCenter, origins []string) *LiveController {
	return &LiveController{
		Hub:           hub,
		Notifications: center,
		baseCtx:       ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// Connect -> websocket endpoint; notifications stay armed while it is open
func (lc *LiveController) Connect(c *gin.Context) {
	userID := c.GetString(middlewares.ContextUserID)
	if userID == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := lc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	session := lc.Hub.Register(ws, userID)
	defer lc.Hub.Unregister(session)
	session.SetView(c.DefaultQuery("view", defaultView))

	notifications := c.Query("notifications") != "off"
	session.Send(live.Message{Event: live.EventReady, Data: gin.H{
		"session_id":    session.ID,
		"notifications": notifications,
	}})

	if notifications {
		ctx, cancel := context.WithCancel(lc.baseCtx)
		teardown := lc.Notifications.Enable(ctx, userID, session)
		defer func() {
			teardown()
			cancel()
		}()
	}

	session.ReadLoop()
}
