package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// quietPaths are polled by probes and the checkout page; they log at debug.
var quietPaths = map[string]bool{
	"/v1/health":          true,
	"/v1/payments/status": true,
}

// LoggingMiddleware tags each request with a request_id (reusing an
// upstream X-Request-Id when present) and logs one line per response.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.New().String()[:8]
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-Id", requestID)

		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		level := zerolog.InfoLevel
		switch {
		case status >= 500:
			level = zerolog.ErrorLevel
		case status == 401 || status == 403 || status == 429:
			level = zerolog.WarnLevel
		case quietPaths[path] && status < 400:
			level = zerolog.DebugLevel
		}

		evt := log.WithLevel(level).
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("route", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP())
		if adminID := c.GetInt("admin_id"); adminID != 0 {
			evt = evt.Int("admin_id", adminID)
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}
		evt.Msg("HTTP Request")
	}
}
