// Package message turns outbox rows into the byte payloads handed to a transport.
package message

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/jwalitptl/eventrelay/internal/model"
	"github.com/jwalitptl/eventrelay/pkg/event"
)

// Message is one serialized payload produced from an outbox row.
type Message struct {
	ID       string
	Type     string
	Category string
	Bytes    []byte
}

// Envelope is the wire format of every external event.
type Envelope struct {
	ID              string    `json:"id"`
	Source          string    `json:"source"`
	Type            string    `json:"type"`
	Category        string    `json:"category"`
	CreatedAt       time.Time `json:"createdAt"`
	BusinessDate    string    `json:"businessDate"`
	TenantID        string    `json:"tenantId"`
	IdempotencyKey  string    `json:"idempotencyKey"`
	AggregateRootID *int64    `json:"aggregateRootId,omitempty"`
	DataSchema      string    `json:"dataschema"`
	Data            []byte    `json:"data"`
}

// Context carries the per-tenant values stamped on every envelope.
type Context struct {
	TenantID string
	Source   string
}

// Builder produces one or more messages from a row.
type Builder interface {
	Build(mc Context, row *model.OutboxEvent) ([]Message, error)
}

type BuilderFunc func(mc Context, row *model.OutboxEvent) ([]Message, error)

func (f BuilderFunc) Build(mc Context, row *model.OutboxEvent) ([]Message, error) {
	return f(mc, row)
}

// EnvelopeBuilder wraps the row's payload unchanged in an Envelope.
type EnvelopeBuilder struct{}

func (EnvelopeBuilder) Build(mc Context, row *model.OutboxEvent) ([]Message, error) {
	env := newEnvelope(mc, row)
	env.ID = strconv.FormatInt(row.ID, 10)
	env.Type = row.Type
	env.Category = row.Category
	env.IdempotencyKey = row.IdempotencyKey
	env.DataSchema = row.SchemaRef
	env.Data = row.Payload

	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %d: %w", row.ID, err)
	}
	return []Message{{ID: env.ID, Type: env.Type, Category: env.Category, Bytes: b}}, nil
}

// BulkBuilder expands a bulk row into one envelope per contained item. Items keep
// the parent's timestamps and aggregate root but get their own identity.
type BulkBuilder struct{}

func (BulkBuilder) Build(mc Context, row *model.OutboxEvent) ([]Message, error) {
	var items []model.BulkItem
	if err := json.Unmarshal(row.Payload, &items); err != nil {
		return nil, fmt.Errorf("failed to decode bulk event %d: %w", row.ID, err)
	}

	msgs := make([]Message, 0, len(items))
	for i, item := range items {
		env := newEnvelope(mc, row)
		env.ID = fmt.Sprintf("%d-%d", row.ID, i)
		env.Type = item.Type
		env.Category = item.Category
		env.IdempotencyKey = fmt.Sprintf("%s-%d", row.IdempotencyKey, i)
		env.DataSchema = item.SchemaRef
		env.Data = item.Data

		b, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("failed to encode item %d of bulk event %d: %w", i, row.ID, err)
		}
		msgs = append(msgs, Message{ID: env.ID, Type: env.Type, Category: env.Category, Bytes: b})
	}
	return msgs, nil
}

func newEnvelope(mc Context, row *model.OutboxEvent) Envelope {
	return Envelope{
		Source:          mc.Source,
		CreatedAt:       row.CreatedAt.UTC(),
		BusinessDate:    row.BusinessDate.Format(model.BusinessDateLayout),
		TenantID:        mc.TenantID,
		AggregateRootID: row.AggregateRootID,
	}
}

type builderKey struct {
	eventType string
	category  string
	schemaRef string
}

// Registry resolves the builder for a row by (type, category, schema), then by
// type alone, then falls back to EnvelopeBuilder.
type Registry struct {
	mu       sync.RWMutex
	exact    map[builderKey]Builder
	byType   map[string]Builder
	fallback Builder
}

// NewRegistry returns a registry with the bulk wrapper already registered.
func NewRegistry() *Registry {
	r := &Registry{
		exact:    make(map[builderKey]Builder),
		byType:   make(map[string]Builder),
		fallback: EnvelopeBuilder{},
	}
	r.RegisterType(event.BulkEventType, BulkBuilder{})
	return r
}

func (r *Registry) Register(eventType, category, schemaRef string, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact[builderKey{eventType, category, schemaRef}] = b
}

func (r *Registry) RegisterType(eventType string, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[eventType] = b
}

func (r *Registry) Resolve(eventType, category, schemaRef string) Builder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.exact[builderKey{eventType, category, schemaRef}]; ok {
		return b
	}
	if b, ok := r.byType[eventType]; ok {
		return b
	}
	return r.fallback
}

// Build resolves the row's builder and runs it.
func (r *Registry) Build(mc Context, row *model.OutboxEvent) ([]Message, error) {
	return r.Resolve(row.Type, row.Category, row.SchemaRef).Build(mc, row)
}

// EncodeBulkItems is the payload encoding BulkBuilder reads back.
func EncodeBulkItems(items []model.BulkItem) ([]byte, error) {
	return json.Marshal(items)
}
