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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/eventrelay/config"
	"github.com/jwalitptl/eventrelay/internal/app"
	eventconfigHandler "github.com/jwalitptl/eventrelay/internal/handler/eventconfig"
	"github.com/jwalitptl/eventrelay/internal/handler/health"
	"github.com/jwalitptl/eventrelay/internal/handler/jobs"
	promHandler "github.com/jwalitptl/eventrelay/internal/handler/prometheus"
	"github.com/jwalitptl/eventrelay/internal/middleware"
	"github.com/jwalitptl/eventrelay/internal/router"
	"github.com/jwalitptl/eventrelay/internal/tenant"
	"github.com/jwalitptl/eventrelay/pkg/auth"
	"github.com/jwalitptl/eventrelay/pkg/event"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret is required by the admin API")
	}

	logger := app.NewLogger(cfg)
	log.Logger = logger.ZL

	// Initialize tenant databases
	registry, err := tenant.Open(context.Background(), cfg, event.DefaultCatalog(), logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to tenant databases")
	}
	defer registry.Close()

	pingers := make(map[string]health.Pinger)
	for _, id := range registry.IDs() {
		t, _ := registry.Get(id)
		pingers[id] = t.DB
	}

	partitioners := make(map[string]string)
	for _, j := range cfg.Recovery.ToRecoveryConfig().Jobs {
		partitioners[j.Name] = j.PartitionerStep
	}

	// Initialize handlers
	configHandler := eventconfigHandler.NewHandler(func(id string) (eventconfigHandler.ConfigService, error) {
		t, err := registry.Get(id)
		if err != nil {
			return nil, err
		}
		return t.Configs, nil
	})
	jobHandler := jobs.NewHandler(func(id string) (jobs.Stores, error) {
		t, err := registry.Get(id)
		if err != nil {
			return jobs.Stores{}, err
		}
		threshold := t.Settings.StuckRetryThreshold
		if threshold <= 0 {
			threshold = cfg.Recovery.RetryThreshold
		}
		return jobs.Stores{Ledger: t.Repos.Jobs, Params: t.Repos.JobParameters, RetryThreshold: threshold}, nil
	}, partitioners)

	// Setup router
	r := router.NewRouter(
		middleware.NewAuthMiddleware(auth.NewJWTService(cfg.JWT.Secret, time.Hour)),
		promHandler.New("eventrelay_api", prometheus.NewRegistry()),
		health.NewHandler(pingers),
		func(id string) bool {
			_, err := registry.Get(id)
			return err == nil
		},
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			MetricsPath:      cfg.Monitoring.MetricsPath,
		},
		configHandler,
		jobHandler,
	)
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Strs("tenants", registry.IDs()).Msg("admin API started")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
