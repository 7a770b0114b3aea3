package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with an id, reusing the caller's when sent,
// and logs failed requests with it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Header(RequestIDHeader, id)

		c.Next()

		if status := c.Writer.Status(); status >= 500 {
			log.Error().
				Str("request_id", id).
				Str("method", c.Request.Method).
				Str("path", c.FullPath()).
				Int("status", status).
				Strs("errors", c.Errors.Errors()).
				Msg("Request failed")
		}
	}
}
