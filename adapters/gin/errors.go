package authgin

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", `Bearer realm="oidcgate"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func serverErr(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func tooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"statusCode": http.StatusTooManyRequests,
		"error":      http.StatusText(http.StatusTooManyRequests),
		"message":    "rate limit exceeded",
	})
}

func unsupportedMedia(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
		"statusCode": http.StatusUnsupportedMediaType,
		"error":      http.StatusText(http.StatusUnsupportedMediaType),
		"message":    "content-type must be application/x-www-form-urlencoded or application/json",
	})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"statusCode": http.StatusBadRequest,
		"error":      http.StatusText(http.StatusBadRequest),
		"message":    msg,
	})
}
