package message

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/eventrelay/internal/model"
	"github.com/jwalitptl/eventrelay/pkg/event"
)

var mc = Context{TenantID: "default", Source: "eventrelay"}

func row(id int64, eventType string, payload []byte) *model.OutboxEvent {
	root := int64(77)
	return &model.OutboxEvent{
		ID:              id,
		Type:            eventType,
		Category:        "Loan",
		IdempotencyKey:  "key-" + eventType,
		AggregateRootID: &root,
		BusinessDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:       time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		SchemaRef:       "LoanAccountDataV1",
		Payload:         payload,
	}
}

func TestEnvelopeBuilder(t *testing.T) {
	msgs, err := NewRegistry().Build(mc, row(5, "LoanApprovedBusinessEvent", []byte(`{"id":77}`)))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "5", msgs[0].ID)

	var env Envelope
	require.NoError(t, json.Unmarshal(msgs[0].Bytes, &env))
	assert.Equal(t, "LoanApprovedBusinessEvent", env.Type)
	assert.Equal(t, "2024-03-01", env.BusinessDate)
	assert.Equal(t, "default", env.TenantID)
	assert.Equal(t, "key-LoanApprovedBusinessEvent", env.IdempotencyKey)
	assert.Equal(t, []byte(`{"id":77}`), env.Data)
	require.NotNil(t, env.AggregateRootID)
	assert.Equal(t, int64(77), *env.AggregateRootID)
}

func TestBulkBuilder_ExpandsItemsWithParentMetadata(t *testing.T) {
	payload, err := EncodeBulkItems([]model.BulkItem{
		{ID: 1, Type: "LoanBalanceChangedBusinessEvent", Category: "Loan", SchemaRef: "A", Data: []byte("a")},
		{ID: 2, Type: "LoanTransactionMakeRepaymentPostBusinessEvent", Category: "LoanTransaction", SchemaRef: "B", Data: []byte("b")},
	})
	require.NoError(t, err)

	msgs, err := NewRegistry().Build(mc, row(9, event.BulkEventType, payload))
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "9-0", msgs[0].ID)
	assert.Equal(t, "LoanBalanceChangedBusinessEvent", msgs[0].Type)
	assert.Equal(t, "9-1", msgs[1].ID)
	assert.Equal(t, "LoanTransaction", msgs[1].Category)

	var env Envelope
	require.NoError(t, json.Unmarshal(msgs[1].Bytes, &env))
	assert.Equal(t, "key-BulkBusinessEvent-1", env.IdempotencyKey)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC), env.CreatedAt)
	assert.Equal(t, "2024-03-01", env.BusinessDate)
	assert.Equal(t, "B", env.DataSchema)
	require.NotNil(t, env.AggregateRootID)
	assert.Equal(t, int64(77), *env.AggregateRootID)
}

func TestBulkBuilder_BadPayload(t *testing.T) {
	_, err := NewRegistry().Build(mc, row(9, event.BulkEventType, []byte("not json")))
	assert.Error(t, err)
}

func TestRegistryResolveOrder(t *testing.T) {
	r := NewRegistry()
	exact := BuilderFunc(func(Context, *model.OutboxEvent) ([]Message, error) { return []Message{{ID: "exact"}}, nil })
	typed := BuilderFunc(func(Context, *model.OutboxEvent) ([]Message, error) { return []Message{{ID: "typed"}}, nil })
	r.Register("LoanCreatedBusinessEvent", "Loan", "V2", exact)
	r.RegisterType("LoanCreatedBusinessEvent", typed)

	got, _ := r.Resolve("LoanCreatedBusinessEvent", "Loan", "V2").Build(mc, nil)
	assert.Equal(t, "exact", got[0].ID)
	got, _ = r.Resolve("LoanCreatedBusinessEvent", "Loan", "V1").Build(mc, nil)
	assert.Equal(t, "typed", got[0].ID)
	assert.IsType(t, EnvelopeBuilder{}, r.Resolve("ClientCreateBusinessEvent", "Client", "V1"))
	assert.IsType(t, BulkBuilder{}, r.Resolve(event.BulkEventType, "Bulk", ""))
}
