package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/eventrelay/internal/tenant"
	"github.com/jwalitptl/eventrelay/pkg/auth"
)

func engine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		id, _ := tenant.FromContext(c.Request.Context())
		c.String(http.StatusOK, id)
	})
	r.GET("/panic", func(*gin.Context) { panic("boom") })
	r.POST("/body", func(c *gin.Context) {
		var v map[string]interface{}
		if err := c.ShouldBindJSON(&v); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})
	return r
}

func get(r *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func known(id string) bool { return id == "default" || id == "other" }

func TestAuthenticateAndTenant(t *testing.T) {
	jwt := auth.NewJWTService("secret", time.Hour)
	r := engine(NewAuthMiddleware(jwt).Authenticate(), Tenant(known))

	token, err := jwt.GenerateToken("ops", []string{"default"})
	require.NoError(t, err)
	bearer := "Bearer " + token

	w := get(r, "/ping", map[string]string{"Authorization": bearer, tenant.HeaderName: "default"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "default", w.Body.String())

	w = get(r, "/ping", map[string]string{"Authorization": bearer, tenant.HeaderName: "other"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = get(r, "/ping", map[string]string{tenant.HeaderName: "default"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(r, "/ping", map[string]string{"Authorization": "Token abc", tenant.HeaderName: "default"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(r, "/ping", map[string]string{"Authorization": "Bearer nope", tenant.HeaderName: "default"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTenant_HeaderRequiredAndKnown(t *testing.T) {
	r := engine(Tenant(known))

	assert.Equal(t, http.StatusBadRequest, get(r, "/ping", nil).Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/ping", map[string]string{tenant.HeaderName: "ghost"}).Code)
	assert.Equal(t, http.StatusOK, get(r, "/ping", map[string]string{tenant.HeaderName: "other"}).Code)
}

func TestRateLimit_PerTenant(t *testing.T) {
	r := engine(Tenant(known), NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 1}).RateLimit())

	a := map[string]string{tenant.HeaderName: "default"}
	b := map[string]string{tenant.HeaderName: "other"}
	assert.Equal(t, http.StatusOK, get(r, "/ping", a).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/ping", a).Code)
	assert.Equal(t, http.StatusOK, get(r, "/ping", b).Code)
}

func TestRequestID(t *testing.T) {
	r := engine(RequestID())

	w := get(r, "/ping", map[string]string{HeaderXRequestID: "abc"})
	assert.Equal(t, "abc", w.Header().Get(HeaderXRequestID))

	w = get(r, "/ping", nil)
	assert.NotEmpty(t, w.Header().Get(HeaderXRequestID))
}

func TestRecovery(t *testing.T) {
	r := engine(RequestID(), Logger(), Recovery())

	w := get(r, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestSizeLimit(t *testing.T) {
	r := engine(SizeLimit(16))

	req := httptest.NewRequest(http.MethodPost, "/body", strings.NewReader(`{"a":"0123456789abcdef"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/body", strings.NewReader(`{"a":1}`))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTimeout_SetsDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Timeout(time.Minute))
	r.GET("/deadline", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		c.Status(http.StatusNoContent)
	})
	assert.Equal(t, http.StatusNoContent, get(r, "/deadline", nil).Code)
}
