package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/therapy-scheduler/internal/handler/health"
	"github.com/jwalitptl/therapy-scheduler/internal/middleware"
	"github.com/jwalitptl/therapy-scheduler/pkg/auth"
)

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

type echoHandler struct{}

func (echoHandler) RegisterRoutes(r *gin.RouterGroup, _ *middleware.AuthMiddleware) {
	r.GET("/echo", func(c *gin.Context) { c.Status(http.StatusOK) })
}

func newTestRouter() *Router {
	r := NewRouter(
		middleware.NewAuthMiddleware(auth.NewJWTService("secret", "test")),
		health.NewHandler(okPinger{}, nil),
		nil,
		RouterConfig{Mode: gin.TestMode, CORSConfig: middleware.DefaultCORSConfig(nil)},
		echoHandler{},
	)
	r.Setup()
	return r
}

func TestHealthIsPublic(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter().Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.0", w.Header().Get("X-API-Version"))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
}

func TestHandlersRequireAuthentication(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter().Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/echo", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
