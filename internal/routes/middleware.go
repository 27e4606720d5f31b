package routes

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const applePassPrefix = "ApplePass "

// RequireApplePass gates the authenticated PassKit operations. Apple's
// protocol expects the 401 to carry a WWW-Authenticate challenge naming the
// scheme so devices know what to present.
func RequireApplePass(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, applePassPrefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(auth, applePassPrefix)), []byte(token)) != 1 {
			c.Header("WWW-Authenticate", "ApplePass")
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// RequireAPIKey gates the internal ticket/booth endpoints.
func RequireAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("x-api-key")
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// RequestID tags every request with an id for log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("RequestID", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func securityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")

	// Disable caching; pass payloads and serial lists must always be fresh
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Next()
}
