package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwalitptl/eventrelay/internal/handler/health"
	"github.com/jwalitptl/eventrelay/internal/middleware"
	"github.com/jwalitptl/eventrelay/internal/tenant"
	"github.com/jwalitptl/eventrelay/pkg/worker"
)

// Pingers returns the database of every scheduled tenant.
func Pingers(registry *tenant.Registry, scheduled worker.StaticTenants) map[string]health.Pinger {
	dbs := make(map[string]health.Pinger, len(scheduled))
	for _, wt := range scheduled {
		t, err := registry.Get(wt.ID)
		if err != nil {
			continue
		}
		dbs[t.ID] = t.DB
	}
	return dbs
}

// NewMonitoringHandler serves the worker's metrics, liveness and readiness.
// Readiness fails while any of dbs cannot be pinged.
func NewMonitoringHandler(metricsPath string, registry *prometheus.Registry, dbs map[string]health.Pinger) http.Handler {
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery())
	engine.GET(metricsPath, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	health.NewHandler(dbs).RegisterRoutes(&engine.RouterGroup)
	return engine
}
