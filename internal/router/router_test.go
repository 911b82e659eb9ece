package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/eventrelay/internal/handler/health"
	"github.com/jwalitptl/eventrelay/internal/handler/prometheus"
	"github.com/jwalitptl/eventrelay/internal/middleware"
	"github.com/jwalitptl/eventrelay/internal/tenant"
	"github.com/jwalitptl/eventrelay/pkg/auth"
)

type whoami struct{}

func (whoami) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/whoami", func(c *gin.Context) {
		id, _ := tenant.FromContext(c.Request.Context())
		c.String(http.StatusOK, id)
	})
}

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

func newTestRouter(t *testing.T) (*Router, string) {
	t.Helper()
	jwt := auth.NewJWTService("secret", time.Hour)
	token, err := jwt.GenerateToken("ops", nil)
	require.NoError(t, err)

	r := NewRouter(
		middleware.NewAuthMiddleware(jwt),
		prometheus.New("test", prom.NewRegistry()),
		health.NewHandler(map[string]health.Pinger{"default": okPinger{}}),
		func(id string) bool { return id == "default" },
		RouterConfig{RateLimitEnabled: true, RateLimit: rate.Inf, RateBurst: 1, MetricsPath: "/metrics"},
		whoami{},
	)
	r.Setup()
	return r, token
}

func serve(r *Router, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, req)
	return w
}

func TestRouter_HealthIsPublic(t *testing.T) {
	r, _ := newTestRouter(t)

	w := serve(r, "/api/v1/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.0", w.Header().Get("X-API-Version"))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
}

func TestRouter_ProtectedRoutes(t *testing.T) {
	r, token := newTestRouter(t)

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/api/v1/whoami", nil).Code)

	w := serve(r, "/api/v1/whoami", map[string]string{
		"Authorization":   "Bearer " + token,
		tenant.HeaderName: "default",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "default", w.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	r, _ := newTestRouter(t)
	serve(r, "/api/v1/health/live", nil)

	w := serve(r, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
}
