package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/jwalitptl/eventrelay/pkg/logger"
	"github.com/jwalitptl/eventrelay/pkg/messaging"
)

type Config struct {
	Brokers    []string
	Topic      string
	ClientID   string
	Version    string
	AckTimeout time.Duration
	MaxRetries int
}

// Producer publishes each partition as keyed Kafka messages so that one
// aggregate always lands on one Kafka partition, in order.
type Producer struct {
	producer   sarama.SyncProducer
	topic      string
	ackTimeout time.Duration
	logger     *logger.Logger
}

var saramaLoggerOnce sync.Once

// NewSaramaConfig returns the producer settings used for external events.
func NewSaramaConfig(cfg Config) (*sarama.Config, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.Retry.Max = cfg.MaxRetries
	// one in-flight request per broker keeps retries from reordering a partition
	config.Net.MaxOpenRequests = 1
	if cfg.AckTimeout > 0 {
		config.Producer.Timeout = cfg.AckTimeout
	}
	if cfg.ClientID != "" {
		config.ClientID = cfg.ClientID
	}
	if cfg.Version != "" {
		v, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid kafka version %q: %w", cfg.Version, err)
		}
		config.Version = v
	}
	return config, nil
}

func NewProducer(cfg Config, log *logger.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	if log == nil {
		log = logger.Nop()
	}

	config, err := NewSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	saramaLoggerOnce.Do(func() {
		sarama.Logger = logger.SaramaAdapter{L: log}
	})

	p, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("error creating producer: %w", err)
	}
	return NewProducerWith(p, cfg, log), nil
}

// NewProducerWith wraps an existing sync producer.
func NewProducerWith(p sarama.SyncProducer, cfg Config, log *logger.Logger) *Producer {
	if log == nil {
		log = logger.Nop()
	}
	return &Producer{
		producer:   p,
		topic:      cfg.Topic,
		ackTimeout: cfg.AckTimeout,
		logger:     log,
	}
}

func (p *Producer) SendEvents(ctx context.Context, batch map[messaging.PartitionKey][][]byte) error {
	if len(batch) == 0 {
		return nil
	}

	msgs := make([]*sarama.ProducerMessage, 0, messaging.PayloadCount(batch))
	for _, key := range messaging.SortedKeys(batch) {
		k := strconv.FormatInt(int64(key), 10)
		for _, payload := range batch[key] {
			msgs = append(msgs, &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(k),
				Value: sarama.ByteEncoder(payload),
			})
		}
	}

	err := messaging.WithAckTimeout(ctx, p.ackTimeout, func(context.Context) error {
		return p.producer.SendMessages(msgs)
	})
	if err != nil {
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) && len(perrs) > 0 {
			return fmt.Errorf("kafka: %d of %d messages failed, first: %w", len(perrs), len(msgs), perrs[0].Err)
		}
		return fmt.Errorf("kafka: %w", err)
	}

	p.logger.Debug("Published external events", "topic", p.topic, "messages", len(msgs), "partitions", len(batch))
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
