package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/eventrelay/pkg/logger"
	"github.com/jwalitptl/eventrelay/pkg/metrics"
)

type PurgerConfig struct {
	PurgeDaysCriteria int
}

// Purger deletes SENT rows older than the retention window, measured from the
// tenant's business date.
type Purger struct {
	config  PurgerConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewPurger(config PurgerConfig, logger *logger.Logger, metrics *metrics.Metrics) *Purger {
	if config.PurgeDaysCriteria <= 0 {
		panic("PurgeDaysCriteria must be greater than 0")
	}
	return &Purger{
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *Purger) Name() string {
	return JobPurgeEvents
}

// Tick never fails; a failed purge is logged and retried on the next tick.
func (p *Purger) Tick(ctx context.Context, t *Tenant) error {
	cutoff, deleted, err := p.Purge(ctx, t)
	if err != nil {
		p.metrics.PurgeFailures.WithLabelValues(t.ID).Inc()
		p.logger.Error(err, "Failed to purge external events", "tenant", t.ID)
		return nil
	}
	p.logger.Info("Purged external events",
		"tenant", t.ID,
		"cutoff", cutoff.Format("2006-01-02"),
		"deleted", deleted)
	return nil
}

// Purge returns the cutoff used and the number of rows deleted.
func (p *Purger) Purge(ctx context.Context, t *Tenant) (time.Time, int64, error) {
	businessDate, err := t.Dates.Current(ctx)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("failed to read business date: %w", err)
	}

	cutoff := Cutoff(businessDate, pick(t.Settings.PurgeDaysCriteria, p.config.PurgeDaysCriteria))
	deleted, err := t.Outbox.DeleteSentOlderThan(ctx, cutoff)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("delete_sent_events", "error").Inc()
		return cutoff, 0, err
	}
	p.metrics.DatabaseOperations.WithLabelValues("delete_sent_events", "success").Inc()
	p.metrics.EventsPurged.WithLabelValues(t.ID).Add(float64(deleted))
	return cutoff, deleted, nil
}

// Cutoff is businessDate minus days calendar days.
func Cutoff(businessDate time.Time, days int) time.Time {
	y, m, d := businessDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)
}
