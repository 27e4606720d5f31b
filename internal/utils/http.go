package utils

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

// UrlFor builds an absolute URL for a path on this server, honoring
// X-Forwarded-Proto when behind a proxy.
func UrlFor(c *gin.Context, path string) string {
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s%s", scheme, c.Request.Host, path)
}
