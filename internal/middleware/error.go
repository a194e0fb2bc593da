package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/therapy-scheduler/internal/handler"
)

// ErrorHandler renders the last error recorded by a handler as the error
// envelope. Server errors never expose their cause.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		lastErr := c.Errors.Last()
		status := handler.StatusOf(lastErr.Err)

		event := log.Warn()
		if status >= 500 {
			event = log.Error()
		}
		event.Err(lastErr.Err).
			Str("request_id", c.GetString(ContextRequestID)).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Int("status", status).
			Msg("Request error")

		if c.Writer.Written() {
			return
		}
		c.JSON(status, handler.NewErrorResponse(handler.MessageOf(lastErr.Err)))
	}
}
