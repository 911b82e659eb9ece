package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/eventrelay/config"
	"github.com/jwalitptl/eventrelay/pkg/lock"
	"github.com/jwalitptl/eventrelay/pkg/logger"
	"github.com/jwalitptl/eventrelay/pkg/messaging"
	"github.com/jwalitptl/eventrelay/pkg/metrics"
	"github.com/jwalitptl/eventrelay/pkg/worker"
)

func redisConfig(url string) *config.Config {
	return &config.Config{
		Outbox:   config.OutboxConfig{BatchSize: 10},
		Purge:    config.PurgeConfig{DaysCriteria: 2},
		Recovery: config.RecoveryConfig{RetryThreshold: 3},
		Transport: config.TransportConfig{
			Kind:       "redis",
			RedisURL:   url,
			Stream:     "external-events",
			AckTimeout: time.Second,
		},
		Lock: config.LockConfig{RedisURL: url, Expiry: time.Second},
	}
}

func TestNewTransport_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := redisConfig("redis://" + mr.Addr())

	tr, err := NewTransport(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer tr.Close()

	require.NoError(t, tr.SendEvents(context.Background(), map[messaging.PartitionKey][][]byte{
		messaging.NoAggregatePartition: {[]byte("a")},
	}))
	client := goredislib.NewClient(&goredislib.Options{Addr: mr.Addr()})
	defer client.Close()
	n, err := client.XLen(context.Background(), "external-events").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNewTransport_Unknown(t *testing.T) {
	cfg := redisConfig("")
	cfg.Transport.Kind = "carrier-pigeon"
	_, err := NewTransport(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

func TestNewLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	locker, closeFn, err := NewLocker(ctx, redisConfig("redis://"+mr.Addr()), logger.Nop())
	require.NoError(t, err)
	defer closeFn()

	lease, err := locker.TryLock(ctx, lock.Key("default", worker.JobSendEvents))
	require.NoError(t, err)
	assert.True(t, mr.Exists(lock.Key("default", worker.JobSendEvents)))
	require.NoError(t, lease.Unlock(ctx))

	local, closeLocal, err := NewLocker(ctx, redisConfig(""), logger.Nop())
	require.NoError(t, err)
	assert.NoError(t, closeLocal())
	_, err = local.TryLock(ctx, "k")
	assert.NoError(t, err)
}

func TestNewJobs(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := redisConfig("redis://" + mr.Addr())
	tr, err := NewTransport(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer tr.Close()

	jobs := NewJobs(cfg, tr, lock.NoopLocker{}, logger.Nop(), metrics.New("test", nil))
	assert.Equal(t, worker.JobSendEvents, jobs.Dispatcher.Name())
	assert.Equal(t, worker.JobPurgeEvents, jobs.Purger.Name())
	assert.Equal(t, worker.JobRecoverRuns, jobs.Recovery.Name())
}
