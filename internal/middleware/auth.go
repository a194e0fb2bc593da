package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/therapy-scheduler/internal/handler"
	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/service/rbac"
	"github.com/jwalitptl/therapy-scheduler/pkg/auth"
)

const ContextCaller = "caller"

var errNoCaller = errors.New("no authenticated caller")

type AuthMiddleware struct {
	jwtService auth.JWTService
}

func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// Authenticate verifies the bearer token and stores the caller in context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			return
		}

		claims, err := m.jwtService.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			return
		}

		c.Set(ContextCaller, claims.Caller())
		c.Next()
	}
}

// RequireCapability rejects callers whose role lacks capability.
func (m *AuthMiddleware) RequireCapability(capability model.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := CallerFromContext(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
			return
		}

		if !rbac.Can(caller.Role, capability) {
			c.AbortWithStatusJSON(http.StatusForbidden, handler.NewErrorResponse("permission denied"))
			return
		}

		c.Next()
	}
}

// CallerFromContext returns the caller set by Authenticate.
func CallerFromContext(c *gin.Context) (model.Caller, error) {
	v, ok := c.Get(ContextCaller)
	if !ok {
		return model.Caller{}, errNoCaller
	}
	caller, ok := v.(model.Caller)
	if !ok {
		return model.Caller{}, errNoCaller
	}
	return caller, nil
}
