package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/eventrelay/pkg/logger"
	"github.com/jwalitptl/eventrelay/pkg/message"
	"github.com/jwalitptl/eventrelay/pkg/messaging"
	"github.com/jwalitptl/eventrelay/pkg/metrics"
)

type DispatcherConfig struct {
	BatchSize int
	// Source is stamped on every envelope.
	Source string
}

// DispatchResult summarizes one dispatcher tick.
type DispatchResult struct {
	Read       int
	Sent       int
	Partitions int
	SendFailed bool
	// Skipped holds rows whose payload could not be built. They stay PENDING.
	Skipped []int64
}

// Dispatcher moves pending outbox rows to the transport and marks them sent.
type Dispatcher struct {
	transport messaging.Transport
	builders  *message.Registry
	config    DispatcherConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewDispatcher(
	transport messaging.Transport,
	builders *message.Registry,
	config DispatcherConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Dispatcher {
	if transport == nil {
		panic("transport is required")
	}
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if builders == nil {
		builders = message.NewRegistry()
	}

	return &Dispatcher{
		transport: transport,
		builders:  builders,
		config:    config,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (d *Dispatcher) Name() string {
	return JobSendEvents
}

func (d *Dispatcher) Tick(ctx context.Context, t *Tenant) error {
	result, err := d.Dispatch(ctx, t)
	if err != nil {
		return err
	}
	if result.Read > 0 {
		d.logger.Debug("Dispatched external events",
			"tenant", t.ID,
			"read", result.Read,
			"sent", result.Sent,
			"partitions", result.Partitions,
			"send_failed", result.SendFailed)
	}
	return nil
}

// Dispatch runs one READ, SEND, MARK cycle. Rows are marked only after the
// transport acknowledged the whole batch; a rejected or timed out send leaves
// them PENDING for the next tick and is not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, t *Tenant) (DispatchResult, error) {
	timer := prometheus.NewTimer(d.metrics.DispatchDuration)
	defer timer.ObserveDuration()

	var result DispatchResult

	rows, err := t.Outbox.FindPending(ctx, pick(t.Settings.BatchSize, d.config.BatchSize))
	if err != nil {
		d.metrics.DatabaseOperations.WithLabelValues("find_pending_events", "error").Inc()
		return result, fmt.Errorf("failed to read pending events: %w", err)
	}
	d.metrics.DatabaseOperations.WithLabelValues("find_pending_events", "success").Inc()
	d.metrics.BatchSize.Observe(float64(len(rows)))

	result.Read = len(rows)
	if len(rows) == 0 {
		return result, nil
	}

	mc := message.Context{TenantID: t.ID, Source: d.config.Source}
	batch := make(map[messaging.PartitionKey][][]byte)
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		msgs, err := d.builders.Build(mc, row)
		if err != nil {
			d.logger.Error(err, "Failed to build external event",
				"tenant", t.ID,
				"event_id", row.ID,
				"event_type", row.Type)
			result.Skipped = append(result.Skipped, row.ID)
			continue
		}
		key := messaging.PartitionFor(row.AggregateRootID)
		for _, m := range msgs {
			batch[key] = append(batch[key], m.Bytes)
		}
		ids = append(ids, row.ID)
	}
	if len(ids) == 0 {
		return result, nil
	}
	result.Partitions = len(batch)

	if messaging.PayloadCount(batch) > 0 {
		if err := d.transport.SendEvents(ctx, batch); err != nil {
			result.SendFailed = true
			d.metrics.SendFailures.WithLabelValues(t.ID).Inc()
			d.logger.Error(err, "Failed to send external events",
				"tenant", t.ID,
				"events", len(ids),
				"partitions", len(batch))
			return result, nil
		}
		d.metrics.EventsSent.WithLabelValues(t.ID).Add(float64(messaging.PayloadCount(batch)))
	}

	if err := t.Outbox.MarkSent(ctx, ids, d.now().UTC()); err != nil {
		d.metrics.DatabaseOperations.WithLabelValues("mark_events_sent", "error").Inc()
		return result, fmt.Errorf("failed to mark %d events sent: %w", len(ids), err)
	}
	d.metrics.DatabaseOperations.WithLabelValues("mark_events_sent", "success").Inc()
	result.Sent = len(ids)

	return result, nil
}
