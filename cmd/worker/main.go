package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/eventrelay/config"
	"github.com/jwalitptl/eventrelay/internal/app"
	"github.com/jwalitptl/eventrelay/pkg/logger"
	"github.com/jwalitptl/eventrelay/pkg/metrics"
	"github.com/jwalitptl/eventrelay/pkg/worker"
)

func setupMonitoring(cfg *config.Config, handler http.Handler, logger *logger.Logger) *http.Server {
	srv := &http.Server{Addr: cfg.Monitoring.MetricsAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Monitoring server failed")
		}
	}()
	return srv
}

func workerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
}

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := app.NewLogger(cfg).WithFields(map[string]interface{}{"worker_id": workerID()})
	log.Logger = logger.ZL

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry, tenants, err := app.OpenTenants(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "Failed to open tenants")
	}
	defer registry.Close()

	transport, err := app.NewTransport(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "Failed to create transport")
	}
	defer transport.Close()

	locker, closeLocker, err := app.NewLocker(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "Failed to create job lock")
	}
	defer closeLocker()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("eventrelay", promRegistry)
	srv := setupMonitoring(cfg, app.NewMonitoringHandler(cfg.Monitoring.MetricsPath, promRegistry, app.Pingers(registry, tenants)), logger)

	jobs := app.NewJobs(cfg, transport, locker, logger, m)
	scheduler := worker.NewScheduler(tenants, locker, cfg.Scheduler.ToSchedulerConfig(), logger, m)

	// Runs left behind by a crashed process are failed before anything new starts.
	if err := scheduler.RunOnce(ctx, jobs.Recovery); err != nil {
		logger.Error(err, "Startup recovery failed")
	}

	scheduler.Add(jobs.Dispatcher, cfg.Outbox.PollInterval)
	scheduler.Add(jobs.Purger, cfg.Purge.Interval)
	scheduler.Add(jobs.Recovery, cfg.Recovery.Interval)

	logger.Info("Worker started", "tenants", len(tenants), "transport", cfg.Transport.Kind)
	scheduler.Start(ctx)
	logger.Info("Shutting down...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Monitoring server forced to shutdown")
	}
}
