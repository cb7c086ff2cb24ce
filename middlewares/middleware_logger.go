package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dataponto/dataponto-backend/utils"
)

const RequestIDHeader = "X-Request-ID"

func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		status := c.Writer.Status()
		entry := utils.Info(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"status":     status,
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		})
		if userID := c.GetString(ContextUserID); userID != "" {
			entry = entry.WithField("user_id", userID)
		}
		// never log query strings, the websocket token travels there
		if status >= 500 {
			entry.Warn(path)
			return
		}
		entry.Info(path)
	}
}
