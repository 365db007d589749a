package handler

import (
	"fmt"
	"io"
	"strconv"
	"time"

	ginsse "github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/p2hgit/p2h_api/internal/middleware"
	"github.com/p2hgit/p2h_api/internal/sse"
	"github.com/p2hgit/p2h_api/internal/utils"
)

const ssePingInterval = 30 * time.Second

// SSEHandler streams booking events to the admin console.
type SSEHandler struct {
	hub    *sse.Hub
	admins middleware.AdminStatusChecker
}

// NewSSEHandler creates a new SSEHandler. admins may be nil.
func NewSSEHandler(hub *sse.Hub, admins middleware.AdminStatusChecker) *SSEHandler {
	return &SSEHandler{hub: hub, admins: admins}
}

// Stream handles GET /v1/admin/sse?token=<jwt>
// EventSource cannot send an Authorization header, so the JWT rides in the query.
func (h *SSEHandler) Stream(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		utils.Error(c, 401, "UNAUTHORIZED", "Missing token query parameter")
		return
	}
	claims, err := utils.ValidateJWT(token)
	if err != nil {
		utils.Error(c, 401, "INVALID_TOKEN", "Invalid or expired token")
		return
	}
	if h.admins != nil {
		active, err := h.admins.IsAdminActive(c.Request.Context(), claims.UserID)
		if err != nil || !active {
			utils.Error(c, 403, "ACCOUNT_INACTIVE", "Account is inactive")
			return
		}
	}

	clientID := fmt.Sprintf("admin-%d-%d", claims.UserID, time.Now().UnixNano())
	client := h.hub.Register(clientID, lastEventID(c))
	defer h.hub.Unregister(clientID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Render(-1, ginsse.Event{
		Event: "connected",
		Retry: 5000,
		Data:  gin.H{"clientId": clientID, "timestamp": utils.NowISO()},
	})
	c.Writer.Flush()
	log.Info().Str("client_id", clientID).Int("admin_id", claims.UserID).Msg("Admin SSE stream started")

	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client.Events:
			if !ok {
				return false
			}
			c.Render(-1, ginsse.Event{
				Id:    strconv.FormatUint(msg.Seq, 10),
				Event: "booking",
				Data:  string(msg.Data),
			})
			return true
		case <-ping.C:
			c.SSEvent("ping", gin.H{"timestamp": utils.NowISO()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// lastEventID reads the resume point from the EventSource header, or from
// the query string for clients that reconnect manually.
func lastEventID(c *gin.Context) uint64 {
	raw := c.GetHeader("Last-Event-ID")
	if raw == "" {
		raw = c.Query("lastEventId")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
