package authgin

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	RequestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"
)

// RequestID reuses an inbound X-Request-Id or assigns a new one, echoes it
// on the response and stores it for log entries.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func requestLog(c *gin.Context, log logrus.FieldLogger) logrus.FieldLogger {
	id := c.GetString(requestIDKey)
	if id == "" {
		id = c.GetHeader(RequestIDHeader)
	}
	if id == "" {
		return log
	}
	return log.WithField("request_id", id)
}
