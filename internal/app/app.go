// Package app wires configuration into the long-lived components shared by the
// worker, the admin API and relayctl.
package app

import (
	"context"
	"errors"
	"fmt"

	goredislib "github.com/redis/go-redis/v9"

	"github.com/jwalitptl/eventrelay/config"
	"github.com/jwalitptl/eventrelay/internal/service/eventconfig"
	"github.com/jwalitptl/eventrelay/internal/tenant"
	"github.com/jwalitptl/eventrelay/pkg/circuitbreaker"
	"github.com/jwalitptl/eventrelay/pkg/event"
	"github.com/jwalitptl/eventrelay/pkg/lock"
	"github.com/jwalitptl/eventrelay/pkg/logger"
	"github.com/jwalitptl/eventrelay/pkg/message"
	"github.com/jwalitptl/eventrelay/pkg/messaging"
	"github.com/jwalitptl/eventrelay/pkg/messaging/kafka"
	"github.com/jwalitptl/eventrelay/pkg/messaging/redis"
	"github.com/jwalitptl/eventrelay/pkg/metrics"
	"github.com/jwalitptl/eventrelay/pkg/worker"
)

// ErrNoValidTenant is returned when every tenant failed configuration validation.
var ErrNoValidTenant = errors.New("no tenant passed external event configuration validation")

func NewLogger(cfg *config.Config) *logger.Logger {
	return logger.NewLogger(cfg.Log.ToLoggerConfig())
}

// NewTransport connects the configured transport behind a circuit breaker.
func NewTransport(ctx context.Context, cfg *config.Config, log *logger.Logger) (messaging.Transport, error) {
	var (
		t   messaging.Transport
		err error
	)
	switch cfg.Transport.Kind {
	case "kafka":
		t, err = kafka.NewProducer(cfg.Transport.ToKafkaConfig(), log)
	case "redis":
		var client *goredislib.Client
		client, err = redis.NewClient(ctx, cfg.Transport.ToRedisConfig())
		if err == nil {
			t, err = redis.NewStreamTransport(client, cfg.Transport.ToRedisConfig(), log)
		}
	default:
		err = fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s transport: %w", cfg.Transport.Kind, err)
	}

	settings := cfg.Transport.ToBreakerSettings()
	settings.Logger = log
	return messaging.WithBreaker(t, circuitbreaker.NewCircuitBreaker(settings)), nil
}

// NewLocker returns the in-process guard over the redsync lease, or over no
// lease at all when lock.redis_url is empty. The returned func closes the
// Redis client.
func NewLocker(ctx context.Context, cfg *config.Config, log *logger.Logger) (lock.Locker, func() error, error) {
	if cfg.Lock.RedisURL == "" {
		log.Warn("No lock Redis configured, assuming a single worker process")
		return lock.NewLocalLocker(nil), func() error { return nil }, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{URL: cfg.Lock.RedisURL})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect lock redis: %w", err)
	}
	return lock.NewLocalLocker(lock.NewRedisLocker(client, cfg.Lock.Expiry)), client.Close, nil
}

// Jobs are the three scheduled jobs of the relay.
type Jobs struct {
	Dispatcher *worker.Dispatcher
	Purger     *worker.Purger
	Recovery   *worker.Recovery
}

func NewJobs(cfg *config.Config, transport messaging.Transport, locker lock.Locker, log *logger.Logger, m *metrics.Metrics) *Jobs {
	return &Jobs{
		Dispatcher: worker.NewDispatcher(transport, message.NewRegistry(), cfg.Outbox.ToDispatcherConfig(), log, m),
		Purger:     worker.NewPurger(cfg.Purge.ToPurgerConfig(), log, m),
		Recovery:   worker.NewRecovery(locker, cfg.Recovery.ToRecoveryConfig(), log, m),
	}
}

// OpenTenants connects every tenant and returns the registry together with the
// tenants whose external event configuration is complete.
func OpenTenants(ctx context.Context, cfg *config.Config, log *logger.Logger) (*tenant.Registry, worker.StaticTenants, error) {
	registry, err := tenant.Open(ctx, cfg, event.DefaultCatalog(), log)
	if err != nil {
		return nil, nil, err
	}

	valid, _ := eventconfig.ValidateAll(ctx, registry.ConfigServices(), log)
	if len(valid) == 0 {
		registry.Close()
		return nil, nil, ErrNoValidTenant
	}
	tenants, err := registry.WorkerTenants(valid...)
	if err != nil {
		registry.Close()
		return nil, nil, err
	}
	return registry, tenants, nil
}
