package middleware

import (
	"net/http"
	"strings"

	"planning-poker-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// SeatAuth validates the Bearer seat token and exposes the seat's
// participant ID and room code to handlers.
func SeatAuth(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		participantID, roomCode, err := tokens.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set("participant_id", participantID)
		c.Set("room_code", roomCode)
		c.Next()
	}
}
