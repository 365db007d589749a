package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/p2hgit/p2h_api/internal/utils"
)

var startTime = time.Now()

// Pinger is anything that can report reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RedisPinger matches cache.RedisClient.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health endpoint.
type HealthHandler struct {
	db    Pinger
	redis RedisPinger
}

// NewHealthHandler creates a new HealthHandler. redis may be nil.
func NewHealthHandler(db Pinger, redis RedisPinger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// GetHealth responds with database and Redis status.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "connected"
	if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "disconnected"
	}

	redisStatus := "disabled"
	if h.redis != nil {
		redisStatus = "connected"
		if err := h.redis.Ping(ctx); err != nil {
			redisStatus = "disconnected"
		}
	}

	if dbStatus != "connected" {
		utils.Error(c, 503, "UNHEALTHY", "Database unreachable")
		return
	}

	utils.Success(c, 200, "Service is healthy", gin.H{
		"status":   "healthy",
		"version":  "1.0.0",
		"uptime":   int(time.Since(startTime).Seconds()),
		"database": dbStatus,
		"redis":    redisStatus,
	})
}
