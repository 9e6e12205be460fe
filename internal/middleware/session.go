package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quizport/quizport-backend/internal/response"
	"github.com/quizport/quizport-backend/internal/service"
)

// CheckSingleDeviceSession validates the JWT's JTI against the active
// session in Redis. A mismatch means the session was reset or taken over
// on another device, and the request is rejected.
func CheckSingleDeviceSession(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if err := authService.ValidateStudentSession(c.Request.Context(), claims.StudentID, claims.ID); err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Next()
	}
}
