package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"rtc-coordinator/pkg/response"
)

// UserIDHeader carries the caller identity set by the API gateway after authentication
const UserIDHeader = "X-User-ID"

const userIDKey = "user_id"

// GatewayIdentity resolves the caller from the gateway header and stores it
// in the Gin context as an int64 user id
func GatewayIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(UserIDHeader)
		if raw == "" {
			response.Unauthorized(c, UserIDHeader+" header required")
			c.Abort()
			return
		}

		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			response.Unauthorized(c, "Invalid "+UserIDHeader+" header")
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the caller identity set by GatewayIdentity
func UserID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(userIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := v.(int64)
	return userID, ok
}
