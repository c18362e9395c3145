package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cieplik206/dokumenty/pkg/logger"
)

// UserIDHeader carries the authenticated caller, set by the fronting proxy.
const UserIDHeader = "X-User-ID"

const userIDKey = "userID"

// Identity rejects requests without a valid caller id.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(UserIDHeader), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Missing or invalid " + UserIDHeader + " header.",
			})
			return
		}
		c.Set(userIDKey, id)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), id))
		c.Next()
	}
}

// UserID returns the caller id stored by Identity.
func UserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
