// Package event raises domain events: it runs the bus listeners and writes
// the external outbox row inside the caller's transaction.
package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/eventrelay/internal/model"
	"github.com/jwalitptl/eventrelay/internal/repository"
	"github.com/jwalitptl/eventrelay/pkg/event"
	"github.com/jwalitptl/eventrelay/pkg/logger"
	"github.com/jwalitptl/eventrelay/pkg/message"
)

// BusinessEvent is a domain event with its already serialized payload.
type BusinessEvent struct {
	Type            string
	AggregateRootID *int64
	SchemaRef       string
	Payload         []byte
	// Entities are handed to bus listeners.
	Entities map[string]interface{}
}

type ConfigLookup interface {
	IsEnabled(ctx context.Context, eventType string) (bool, error)
}

type Service struct {
	bus     *event.Bus
	outbox  repository.OutboxRepository
	configs ConfigLookup
	dates   repository.BusinessDateRepository
	catalog *event.Catalog
	logger  *logger.Logger
}

func NewService(
	bus *event.Bus,
	outbox repository.OutboxRepository,
	configs ConfigLookup,
	dates repository.BusinessDateRepository,
	catalog *event.Catalog,
	logger *logger.Logger,
) *Service {
	if catalog == nil {
		catalog = event.DefaultCatalog()
	}
	return &Service{
		bus:     bus,
		outbox:  outbox,
		configs: configs,
		dates:   dates,
		catalog: catalog,
		logger:  logger,
	}
}

// Raise notifies pre listeners, writes the outbox row through tx when the type
// is enabled, then notifies post listeners. Any listener error aborts the raise.
// While recording is active on ctx the row is deferred to StopRecording.
func (s *Service) Raise(ctx context.Context, tx sqlx.ExtContext, evt BusinessEvent) error {
	if err := s.bus.Notify(ctx, evt.Type, event.PhasePre, evt.Entities); err != nil {
		return err
	}

	enabled, err := s.configs.IsEnabled(ctx, evt.Type)
	if err != nil {
		return err
	}
	if enabled {
		if rec := recorderFrom(ctx); rec != nil {
			rec.add(evt)
		} else if err := s.append(ctx, tx, evt); err != nil {
			return err
		}
	} else {
		s.logger.Debug("External event type disabled, not recorded", "event_type", evt.Type)
	}

	return s.bus.Notify(ctx, evt.Type, event.PhasePost, evt.Entities)
}

func (s *Service) append(ctx context.Context, tx sqlx.ExtContext, evt BusinessEvent) error {
	businessDate, err := s.dates.Current(ctx)
	if err != nil {
		return fmt.Errorf("failed to read business date: %w", err)
	}

	row := &model.OutboxEvent{
		Type:            evt.Type,
		Category:        event.CategoryOf(s.catalog, evt.Type),
		AggregateRootID: evt.AggregateRootID,
		BusinessDate:    businessDate,
		SchemaRef:       evt.SchemaRef,
		Payload:         evt.Payload,
	}
	return s.outbox.Append(ctx, tx, row)
}

type recorderKey struct{}

type recorder struct {
	mu     sync.Mutex
	events []BusinessEvent
}

func (r *recorder) add(evt BusinessEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) drain() []BusinessEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.events
	r.events = nil
	return events
}

func recorderFrom(ctx context.Context) *recorder {
	rec, _ := ctx.Value(recorderKey{}).(*recorder)
	return rec
}

// StartRecording returns a context under which raised events are collected
// instead of written one row each.
func (s *Service) StartRecording(ctx context.Context) context.Context {
	return context.WithValue(ctx, recorderKey{}, &recorder{})
}

// StopRecording writes what was collected on ctx: one bulk row per aggregate
// root, or a plain row when a root raised a single event. Roots keep the order
// in which they first raised.
func (s *Service) StopRecording(ctx context.Context, tx sqlx.ExtContext) error {
	rec := recorderFrom(ctx)
	if rec == nil {
		return fmt.Errorf("external event recording was not started")
	}

	groups, order := groupByRoot(rec.drain())
	for _, key := range order {
		events := groups[key]
		if len(events) == 1 {
			if err := s.append(ctx, tx, events[0]); err != nil {
				return err
			}
			continue
		}

		items := make([]model.BulkItem, 0, len(events))
		for i, e := range events {
			items = append(items, model.BulkItem{
				ID:        int64(i + 1),
				Type:      e.Type,
				Category:  event.CategoryOf(s.catalog, e.Type),
				SchemaRef: e.SchemaRef,
				Data:      e.Payload,
			})
		}
		payload, err := message.EncodeBulkItems(items)
		if err != nil {
			return fmt.Errorf("failed to encode bulk event: %w", err)
		}
		bulk := BusinessEvent{
			Type:            event.BulkEventType,
			AggregateRootID: events[0].AggregateRootID,
			SchemaRef:       "BulkMessagePayloadV1",
			Payload:         payload,
		}
		if err := s.append(ctx, tx, bulk); err != nil {
			return err
		}
	}
	return nil
}

type rootKey struct {
	set bool
	id  int64
}

func groupByRoot(events []BusinessEvent) (map[rootKey][]BusinessEvent, []rootKey) {
	groups := make(map[rootKey][]BusinessEvent)
	var order []rootKey
	for _, e := range events {
		var k rootKey
		if e.AggregateRootID != nil {
			k = rootKey{set: true, id: *e.AggregateRootID}
		}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}
	return groups, order
}
