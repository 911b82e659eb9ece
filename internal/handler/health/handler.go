package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	dbs     map[string]Pinger
	timeout time.Duration
}

// NewHandler checks every tenant database on readiness.
func NewHandler(dbs map[string]Pinger) *Handler {
	return &Handler{
		dbs:     dbs,
		timeout: 2 * time.Second,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var down []string
	for id, db := range h.dbs {
		if err := db.PingContext(ctx); err != nil {
			down = append(down, id)
		}
	}
	if len(down) > 0 {
		sort.Strings(down)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"reason":  "Database connection failed",
			"tenants": down,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}
