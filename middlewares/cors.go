package middlewares

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddlewares allows the browser client's origins and the headers the
// hosted client library sends.
func CORSMiddlewares(origins []string) gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type"},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = origins
		conf.AllowCredentials = true
	}
	return cors.New(conf)
}
