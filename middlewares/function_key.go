package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Roles carried by the function keys.
const (
	RoleAnon        = "anon"
	RoleServiceRole = "service_role"
)

// FunctionKeyMiddleware authorizes the function endpoints with the anon or
// service-role key, sent in the apikey header or as a Bearer token. It
// answers with the {error} shape those endpoints use.
func FunctionKeyMiddleware(anonKey, serviceRoleKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("apikey")
		if key == "" {
			key = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}

		switch {
		case key != "" && matches(key, serviceRoleKey):
			c.Set(ContextRole, RoleServiceRole)
		case key != "" && matches(key, anonKey):
			c.Set(ContextRole, RoleAnon)
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}
		c.Next()
	}
}

func matches(given, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
}
