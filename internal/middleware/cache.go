package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore forbids any intermediary or browser caching. Applied to test
// content routes: question payloads must never survive in a cache an
// examinee could inspect after the attempt.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
