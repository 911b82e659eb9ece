package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/eventrelay/internal/handler/prometheus"
	"github.com/jwalitptl/eventrelay/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine    *gin.Engine
	auth      *middleware.AuthMiddleware
	limiter   *middleware.RateLimiter
	metrics   *prometheus.Handler
	health    Handler
	tenanted  []Handler
	known     func(id string) bool
	rateLimit bool
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	RequestTimeout   time.Duration
	MetricsPath      string
}

// NewRouter mounts health unauthenticated and every tenanted handler behind
// auth, tenant routing and the per-tenant rate limit.
func NewRouter(
	auth *middleware.AuthMiddleware,
	metrics *prometheus.Handler,
	health Handler,
	known func(id string) bool,
	config RouterConfig,
	tenanted ...Handler,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}

	r := &Router{
		engine:    engine,
		auth:      auth,
		metrics:   metrics,
		health:    health,
		tenanted:  tenanted,
		known:     known,
		rateLimit: config.RateLimitEnabled,
		limiter: middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		}),
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		metrics.Middleware(),
		middleware.Timeout(config.RequestTimeout),
	)

	if config.MetricsPath != "" {
		engine.GET(config.MetricsPath, metrics.Handler())
	}
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
		middleware.Tenant(r.known),
		middleware.SizeLimit(middleware.DefaultMaxBodySize),
	)
	if r.rateLimit {
		protected.Use(r.limiter.RateLimit())
	}
	for _, h := range r.tenanted {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
