package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dataponto/dataponto-backend/utils"
)

// Context keys set by the auth middlewares.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// AuthMiddleware accepts a Bearer access token and stores the viewer
// identity in the context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.AbortWithError(c, http.StatusUnauthorized, errors.New("Authorization header missing"))
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			utils.AbortWithError(c, http.StatusUnauthorized, errors.New("invalid authorization format"))
			return
		}

		claims, err := utils.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			utils.AbortWithError(c, http.StatusUnauthorized, errors.New("Invalid or expired token"))
			return
		}

		c.Set(ContextUserID, claims.UserID())
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}
