package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/eventrelay/pkg/logger"
	"github.com/jwalitptl/eventrelay/pkg/messaging"
)

type Config struct {
	URL          string
	Stream       string
	MaxLen       int64
	AckTimeout   time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
}

// StreamTransport appends every payload to one Redis stream. A batch goes out as a
// single pipeline in partition order, so entries of one partition keep their order.
type StreamTransport struct {
	client     *redis.Client
	stream     string
	maxLen     int64
	ackTimeout time.Duration
	logger     *logger.Logger
}

// NewClient builds a pooled client from cfg and checks the connection.
func NewClient(ctx context.Context, config Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pooling
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.RetryBackoff > 0 {
		opts.MinRetryBackoff = config.RetryBackoff
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewStreamTransport(client *redis.Client, config Config, log *logger.Logger) (*StreamTransport, error) {
	if config.Stream == "" {
		return nil, fmt.Errorf("redis: stream name is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &StreamTransport{
		client:     client,
		stream:     config.Stream,
		maxLen:     config.MaxLen,
		ackTimeout: config.AckTimeout,
		logger:     log,
	}, nil
}

func (t *StreamTransport) SendEvents(ctx context.Context, batch map[messaging.PartitionKey][][]byte) error {
	if len(batch) == 0 {
		return nil
	}

	err := messaging.WithAckTimeout(ctx, t.ackTimeout, func(ctx context.Context) error {
		_, err := t.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, key := range messaging.SortedKeys(batch) {
				partition := strconv.FormatInt(int64(key), 10)
				for _, payload := range batch[key] {
					args := &redis.XAddArgs{
						Stream: t.stream,
						Values: []interface{}{"partition", partition, "payload", payload},
					}
					if t.maxLen > 0 {
						args.MaxLen = t.maxLen
						args.Approx = true
					}
					pipe.XAdd(ctx, args)
				}
			}
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("redis: failed to append to stream %s: %w", t.stream, err)
	}

	t.logger.Debug("Published external events", "stream", t.stream, "messages", messaging.PayloadCount(batch))
	return nil
}

func (t *StreamTransport) Close() error {
	return t.client.Close()
}
