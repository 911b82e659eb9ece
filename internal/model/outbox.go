package model

import (
	"time"
)

type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "PENDING"
	OutboxStatusSent    OutboxStatus = "SENT"
)

// CanTransitionTo reports whether a row in status s may move to next.
// Rows only ever move from PENDING to SENT.
func (s OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	return s == OutboxStatusPending && next == OutboxStatusSent
}

func (s OutboxStatus) IsValid() bool {
	return s == OutboxStatusPending || s == OutboxStatusSent
}

// OutboxEvent is a domain event waiting for (or already done with) external delivery.
type OutboxEvent struct {
	ID              int64        `db:"id" json:"id"`
	Type            string       `db:"type" json:"type"`
	Category        string       `db:"category" json:"category"`
	IdempotencyKey  string       `db:"idempotency_key" json:"idempotency_key"`
	AggregateRootID *int64       `db:"aggregate_root_id" json:"aggregate_root_id,omitempty"`
	BusinessDate    time.Time    `db:"business_date" json:"business_date"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	SchemaRef       string       `db:"schema_ref" json:"schema_ref"`
	Payload         []byte       `db:"data" json:"data"`
	Status          OutboxStatus `db:"status" json:"status"`
	SentAt          *time.Time   `db:"sent_at" json:"sent_at,omitempty"`
}

// BulkItem is one entry of a BulkBusinessEvent payload.
type BulkItem struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Category  string `json:"category"`
	SchemaRef string `json:"schema"`
	Data      []byte `json:"data"`
}
