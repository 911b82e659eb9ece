package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/eventrelay/pkg/circuitbreaker"
	"github.com/jwalitptl/eventrelay/pkg/logger"
	"github.com/jwalitptl/eventrelay/pkg/messaging/kafka"
	"github.com/jwalitptl/eventrelay/pkg/messaging/redis"
	"github.com/jwalitptl/eventrelay/pkg/validator"
	"github.com/jwalitptl/eventrelay/pkg/worker"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Tenants    []TenantConfig   `mapstructure:"tenants" validate:"required,min=1,dive"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	Purge      PurgeConfig      `mapstructure:"purge"`
	Recovery   RecoveryConfig   `mapstructure:"recovery"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Lock       LockConfig       `mapstructure:"lock"`
	Log        LogConfig        `mapstructure:"log"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres mysql"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// TenantConfig describes one tenant database. Zero settings use the global defaults.
type TenantConfig struct {
	ID                  string `mapstructure:"id" validate:"required"`
	DSN                 string `mapstructure:"dsn"`
	BatchSize           int    `mapstructure:"batch_size" validate:"min=0"`
	PurgeDaysCriteria   int    `mapstructure:"purge_days_criteria" validate:"min=0"`
	StuckRetryThreshold int    `mapstructure:"stuck_retry_threshold" validate:"min=0"`
}

type OutboxConfig struct {
	BatchSize    int           `mapstructure:"batch_size" validate:"min=1"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	Source       string        `mapstructure:"source"`
}

type PurgeConfig struct {
	Interval     time.Duration `mapstructure:"interval" validate:"gt=0"`
	DaysCriteria int           `mapstructure:"days_criteria" validate:"min=1"`
}

type RecoveryJobConfig struct {
	Name            string `mapstructure:"name" validate:"required"`
	PartitionerStep string `mapstructure:"partitioner_step"`
}

type RecoveryConfig struct {
	Interval       time.Duration       `mapstructure:"interval" validate:"gt=0"`
	RetryThreshold int                 `mapstructure:"retry_threshold" validate:"min=1"`
	GracePeriod    time.Duration       `mapstructure:"grace_period" validate:"min=0"`
	Jobs           []RecoveryJobConfig `mapstructure:"jobs" validate:"dive"`
}

type SchedulerConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency" validate:"min=1"`
}

type BreakerConfig struct {
	ConsecutiveFailures int           `mapstructure:"consecutive_failures"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

type TransportConfig struct {
	Kind         string        `mapstructure:"kind" validate:"oneof=kafka redis"`
	AckTimeout   time.Duration `mapstructure:"ack_timeout" validate:"gt=0"`
	Brokers      []string      `mapstructure:"brokers" validate:"required_if=Kind kafka"`
	Topic        string        `mapstructure:"topic" validate:"required_if=Kind kafka"`
	ClientID     string        `mapstructure:"client_id"`
	KafkaVersion string        `mapstructure:"kafka_version"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RedisURL     string        `mapstructure:"redis_url" validate:"required_if=Kind redis"`
	Stream       string        `mapstructure:"stream" validate:"required_if=Kind redis"`
	StreamMaxLen int64         `mapstructure:"stream_max_len"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	Breaker      BreakerConfig `mapstructure:"breaker"`
}

// LockConfig enables the distributed tick lease. An empty RedisURL means a
// single worker process.
type LockConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	Expiry   time.Duration `mapstructure:"expiry"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type MonitoringConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// env holds the secrets and endpoints that deployments pass as EVENTRELAY_* variables.
type env struct {
	DatabaseDriver string   `envconfig:"DATABASE_DRIVER"`
	DatabaseDSN    string   `envconfig:"DATABASE_DSN"`
	KafkaBrokers   []string `envconfig:"KAFKA_BROKERS"`
	RedisURL       string   `envconfig:"REDIS_URL"`
	LockRedisURL   string   `envconfig:"LOCK_REDIS_URL"`
	JWTSecret      string   `envconfig:"JWT_SECRET"`
	LogLevel       string   `envconfig:"LOG_LEVEL"`
	ServerPort     int      `envconfig:"SERVER_PORT"`
}

const EnvPrefix = "EVENTRELAY"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.connect_timeout", "30s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", "10s")
	v.SetDefault("outbox.source", "eventrelay")
	v.SetDefault("purge.interval", "24h")
	v.SetDefault("purge.days_criteria", 2)
	v.SetDefault("recovery.interval", "5m")
	v.SetDefault("recovery.retry_threshold", 3)
	v.SetDefault("recovery.grace_period", "30m")
	v.SetDefault("scheduler.max_concurrency", 4)
	v.SetDefault("transport.kind", "kafka")
	v.SetDefault("transport.ack_timeout", "30s")
	v.SetDefault("transport.topic", "external-events")
	v.SetDefault("transport.client_id", "eventrelay")
	v.SetDefault("transport.stream", "external-events")
	v.SetDefault("transport.breaker.consecutive_failures", 5)
	v.SetDefault("transport.breaker.timeout", "30s")
	v.SetDefault("lock.expiry", "2m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("monitoring.metrics_addr", ":9090")
	v.SetDefault("monitoring.metrics_path", "/metrics")
}

// LoadConfig reads path, or config.yml from the usual locations when path is
// empty, overlays EVENTRELAY_* variables and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")           // current directory
		v.AddConfigPath("./config")    // config subdirectory
		v.AddConfigPath("/app")        // container root directory
		v.AddConfigPath("/app/config") // container config directory
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() error {
	var e env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if e.DatabaseDriver != "" {
		c.Database.Driver = e.DatabaseDriver
	}
	if e.DatabaseDSN != "" {
		c.Database.DSN = e.DatabaseDSN
	}
	if len(e.KafkaBrokers) > 0 {
		c.Transport.Brokers = e.KafkaBrokers
	}
	if e.RedisURL != "" {
		c.Transport.RedisURL = e.RedisURL
	}
	if e.LockRedisURL != "" {
		c.Lock.RedisURL = e.LockRedisURL
	}
	if e.JWTSecret != "" {
		c.JWT.Secret = e.JWTSecret
	}
	if e.LogLevel != "" {
		c.Log.Level = e.LogLevel
	}
	if e.ServerPort != 0 {
		c.Server.Port = e.ServerPort
	}
	return nil
}

// Validate checks struct tags and that every tenant has a database to talk to.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %s: %w", validator.Describe(err), err)
	}

	seen := make(map[string]struct{}, len(c.Tenants))
	for _, t := range c.Tenants {
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("invalid config: tenant %s is listed twice", t.ID)
		}
		seen[t.ID] = struct{}{}
		if c.TenantDSN(t.ID) == "" {
			return fmt.Errorf("invalid config: tenant %s has no dsn and database.dsn is empty", t.ID)
		}
	}
	return nil
}

func (c *Config) Tenant(id string) (TenantConfig, bool) {
	for _, t := range c.Tenants {
		if t.ID == id {
			return t, true
		}
	}
	return TenantConfig{}, false
}

// TenantDSN is the tenant's own DSN, falling back to database.dsn.
func (c *Config) TenantDSN(id string) string {
	if t, ok := c.Tenant(id); ok && t.DSN != "" {
		return t.DSN
	}
	return c.Database.DSN
}

func (c *Config) TenantSettings(id string) worker.TenantSettings {
	t, _ := c.Tenant(id)
	return worker.TenantSettings{
		BatchSize:           t.BatchSize,
		PurgeDaysCriteria:   t.PurgeDaysCriteria,
		StuckRetryThreshold: t.StuckRetryThreshold,
	}
}

func (c *OutboxConfig) ToDispatcherConfig() worker.DispatcherConfig {
	return worker.DispatcherConfig{
		BatchSize: c.BatchSize,
		Source:    c.Source,
	}
}

func (c *PurgeConfig) ToPurgerConfig() worker.PurgerConfig {
	return worker.PurgerConfig{
		PurgeDaysCriteria: c.DaysCriteria,
	}
}

// ToRecoveryConfig covers the configured jobs plus the relay's own jobs.
func (c *RecoveryConfig) ToRecoveryConfig() worker.RecoveryConfig {
	jobs := make([]worker.RecoveryJob, 0, len(c.Jobs)+2)
	seen := make(map[string]struct{})
	for _, j := range c.Jobs {
		jobs = append(jobs, worker.RecoveryJob{Name: j.Name, PartitionerStep: j.PartitionerStep})
		seen[j.Name] = struct{}{}
	}
	for _, name := range []string{worker.JobSendEvents, worker.JobPurgeEvents} {
		if _, ok := seen[name]; !ok {
			jobs = append(jobs, worker.RecoveryJob{Name: name})
		}
	}

	return worker.RecoveryConfig{
		RetryThreshold: c.RetryThreshold,
		GracePeriod:    c.GracePeriod,
		Jobs:           jobs,
	}
}

func (c *SchedulerConfig) ToSchedulerConfig() worker.SchedulerConfig {
	return worker.SchedulerConfig{MaxConcurrency: c.MaxConcurrency}
}

func (c *TransportConfig) ToKafkaConfig() kafka.Config {
	return kafka.Config{
		Brokers:    c.Brokers,
		Topic:      c.Topic,
		ClientID:   c.ClientID,
		Version:    c.KafkaVersion,
		AckTimeout: c.AckTimeout,
		MaxRetries: c.MaxRetries,
	}
}

func (c *TransportConfig) ToRedisConfig() redis.Config {
	return redis.Config{
		URL:          c.RedisURL,
		Stream:       c.Stream,
		MaxLen:       c.StreamMaxLen,
		AckTimeout:   c.AckTimeout,
		MaxRetries:   c.MaxRetries,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *TransportConfig) ToBreakerSettings() circuitbreaker.Settings {
	return circuitbreaker.Settings{
		Name:                "transport-" + strings.ToLower(c.Kind),
		Timeout:             c.Breaker.Timeout,
		ConsecutiveFailures: c.Breaker.ConsecutiveFailures,
	}
}

func (c *LogConfig) ToLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      logger.ParseLevel(c.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    c.Format == "console",
	}
}
