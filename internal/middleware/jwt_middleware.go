package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/p2hgit/p2h_api/internal/utils"
)

// AdminStatusChecker reports whether an admin account may still sign in.
type AdminStatusChecker interface {
	IsAdminActive(ctx context.Context, id int) (bool, error)
}

type JWTMiddleware struct {
	admins AdminStatusChecker
}

func NewJWTMiddleware(admins AdminStatusChecker) *JWTMiddleware {
	return &JWTMiddleware{admins: admins}
}

func (m *JWTMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.Error(c, 401, "UNAUTHORIZED", "Missing authorization header")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			utils.Error(c, 401, "UNAUTHORIZED", "Invalid authorization header")
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(parts[1])
		if err != nil {
			utils.Error(c, 401, "INVALID_TOKEN", "Invalid or expired token")
			c.Abort()
			return
		}

		if m.admins != nil {
			active, err := m.admins.IsAdminActive(c.Request.Context(), claims.UserID)
			if err != nil {
				log.Error().Err(err).Int("admin_id", claims.UserID).Msg("Failed to check admin status")
				utils.Error(c, 500, "INTERNAL_ERROR", "Failed to verify account")
				c.Abort()
				return
			}
			if !active {
				utils.Error(c, 403, "ACCOUNT_INACTIVE", "Account is inactive")
				c.Abort()
				return
			}
		}

		c.Set("admin_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Next()
	}
}

// AdminEmail returns the authenticated admin's email.
func AdminEmail(c *gin.Context) string {
	return c.GetString("email")
}
