package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/therapy-scheduler/internal/handler/health"
	promhandler "github.com/jwalitptl/therapy-scheduler/internal/handler/prometheus"
	"github.com/jwalitptl/therapy-scheduler/internal/middleware"
)

// Handler registers routes that need an authenticated caller.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup, *middleware.AuthMiddleware)
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	health   *health.Handler
	handlers []Handler
}

type RouterConfig struct {
	Mode             string
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORSConfig       middleware.CORSConfig
	MaxBodySize      int64
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	healthH *health.Handler,
	metricsH *promhandler.Handler,
	config RouterConfig,
	handlers ...Handler,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = middleware.DefaultMaxBodySize
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		health:   healthH,
		handlers: handlers,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.SecurityHeaders(),
		middleware.CORS(config.CORSConfig),
	)
	if metricsH != nil {
		engine.Use(metricsH.Middleware())
	}
	if config.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}
	engine.Use(
		middleware.SizeLimit(config.MaxBodySize),
		middleware.ErrorHandler(),
	)

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.health.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(
		r.auth.Authenticate(),
		middleware.AuditActor(),
	)
	for _, h := range r.handlers {
		h.RegisterRoutes(protected, r.auth)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
