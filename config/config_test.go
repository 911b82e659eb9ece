package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/eventrelay/pkg/logger"
	"github.com/jwalitptl/eventrelay/pkg/worker"
)

const minimal = `
database:
  dsn: postgres://localhost/relay
tenants:
  - id: default
  - id: acme
    dsn: postgres://localhost/acme
    batch_size: 500
    purge_days_criteria: 7
recovery:
  jobs:
    - name: LOAN_COB
      partitioner_step: LOAN_COB_PARTITIONER
transport:
  brokers:
    - localhost:9092
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_DefaultsAndTenants(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 2, cfg.Purge.DaysCriteria)
	assert.Equal(t, 30*time.Second, cfg.Transport.AckTimeout)

	assert.Equal(t, "postgres://localhost/relay", cfg.TenantDSN("default"))
	assert.Equal(t, "postgres://localhost/acme", cfg.TenantDSN("acme"))
	assert.Equal(t, worker.TenantSettings{BatchSize: 500, PurgeDaysCriteria: 7}, cfg.TenantSettings("acme"))
	assert.Equal(t, worker.TenantSettings{}, cfg.TenantSettings("default"))
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("EVENTRELAY_DATABASE_DSN", "postgres://env/relay")
	t.Setenv("EVENTRELAY_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("EVENTRELAY_JWT_SECRET", "s3cret")

	cfg, err := LoadConfig(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/relay", cfg.Database.DSN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Transport.Brokers)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no tenants", "database:\n  dsn: x\n"},
		{"no dsn", "tenants:\n  - id: default\n"},
		{"duplicate tenant", "database:\n  dsn: x\ntenants:\n  - id: a\n  - id: a\n"},
		{"bad driver", "database:\n  dsn: x\n  driver: oracle\ntenants:\n  - id: a\ntransport:\n  brokers: [k:9092]\n"},
		{"kafka without brokers", "database:\n  dsn: x\ntenants:\n  - id: a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestToRecoveryConfig_AddsRelayJobs(t *testing.T) {
	c := RecoveryConfig{
		RetryThreshold: 3,
		Jobs:           []RecoveryJobConfig{{Name: "LOAN_COB", PartitionerStep: "P"}, {Name: worker.JobSendEvents}},
	}

	got := c.ToRecoveryConfig()
	assert.Equal(t, []worker.RecoveryJob{
		{Name: "LOAN_COB", PartitionerStep: "P"},
		{Name: worker.JobSendEvents},
		{Name: worker.JobPurgeEvents},
	}, got.Jobs)
}

func TestTransportConversions(t *testing.T) {
	c := TransportConfig{Kind: "redis", RedisURL: "redis://x", Stream: "s", AckTimeout: time.Second, Breaker: BreakerConfig{ConsecutiveFailures: 3}}

	assert.Equal(t, "s", c.ToRedisConfig().Stream)
	assert.Equal(t, time.Second, c.ToKafkaConfig().AckTimeout)
	assert.Equal(t, "transport-redis", c.ToBreakerSettings().Name)
	assert.Equal(t, 3, c.ToBreakerSettings().ConsecutiveFailures)
}

func TestToLoggerConfig(t *testing.T) {
	c := LogConfig{Level: "debug", Format: "console"}
	lc := c.ToLoggerConfig()
	assert.Equal(t, logger.DebugLevel, lc.Level)
	assert.True(t, lc.Console)

	assert.Equal(t, logger.InfoLevel, (&LogConfig{Format: "json"}).ToLoggerConfig().Level)
}
