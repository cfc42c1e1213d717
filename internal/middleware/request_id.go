package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// RequestID tags every request with a correlation id, minting one when the
// client did not supply its own. The id is echoed in the response header and
// picked up by the request logger and recovery middleware.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(requestIDHeader, id)
		c.Writer.Header().Set(requestIDHeader, id)

		c.Next()
	}
}
