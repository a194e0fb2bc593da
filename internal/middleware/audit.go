package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/therapy-scheduler/internal/service/audit"
)

// AuditActor attaches the caller's team membership to the request context so
// audit rows written by the handler name who acted. Runs after Authenticate.
func AuditActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if caller, err := CallerFromContext(c); err == nil && caller.TherapistID != nil {
			c.Request = c.Request.WithContext(audit.WithActor(c.Request.Context(), caller.TherapistID))
		}
		c.Next()
	}
}
