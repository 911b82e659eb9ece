package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/eventrelay/internal/model"
	"github.com/jwalitptl/eventrelay/internal/repository"
	"github.com/jwalitptl/eventrelay/internal/repository/dialect"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Append(ctx context.Context, q sqlx.ExtContext, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Type == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if q == nil {
		q = r.db
	}

	if event.IdempotencyKey == "" {
		event.IdempotencyKey = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.Status = model.OutboxStatusPending
	event.SentAt = nil

	query := `
		INSERT INTO external_event (
			type, category, idempotency_key, aggregate_root_id, business_date,
			created_at, schema_ref, data, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.insertID(ctx, q, "id", query,
		event.Type,
		event.Category,
		event.IdempotencyKey,
		event.AggregateRootID,
		event.BusinessDate,
		event.CreatedAt,
		event.SchemaRef,
		event.Payload,
		event.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to append outbox event: %w", err)
	}
	event.ID = id
	return nil
}

func (r *outboxRepository) FindPending(ctx context.Context, pageSize int) ([]*model.OutboxEvent, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}

	query := r.db.Rebind(`
		SELECT id, type, category, idempotency_key, aggregate_root_id, business_date,
			created_at, schema_ref, data, status, sent_at
		FROM external_event
		WHERE status = ?
		ORDER BY id ASC
		LIMIT ?
	`)

	var events []*model.OutboxEvent
	if err := r.db.SelectContext(ctx, &events, query, model.OutboxStatusPending, pageSize); err != nil {
		return nil, fmt.Errorf("failed to read pending outbox events: %w", err)
	}
	return events, nil
}

// MarkSent flips the given rows to SENT in one statement. Rows already SENT are left untouched.
func (r *outboxRepository) MarkSent(ctx context.Context, ids []int64, sentAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	var (
		query string
		args  []interface{}
	)
	if r.dialect == dialect.Postgres {
		query = `
			UPDATE external_event
			SET status = $1, sent_at = $2
			WHERE status = $3 AND id = ANY($4)
		`
		args = []interface{}{model.OutboxStatusSent, sentAt, model.OutboxStatusPending, pq.Array(ids)}
	} else {
		q, inArgs, err := sqlx.In(`
			UPDATE external_event
			SET status = ?, sent_at = ?
			WHERE status = ? AND id IN (?)
		`, model.OutboxStatusSent, sentAt, model.OutboxStatusPending, ids)
		if err != nil {
			return fmt.Errorf("failed to build mark-sent query: %w", err)
		}
		query, args = r.db.Rebind(q), inArgs
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark outbox events sent: %w", err)
	}
	return nil
}

func (r *outboxRepository) DeleteSentOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := r.db.Rebind(`
		DELETE FROM external_event
		WHERE status = ?
		AND business_date < ?
	`)
	result, err := r.db.ExecContext(ctx, query, model.OutboxStatusSent, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sent events: %w", err)
	}

	return result.RowsAffected()
}

func (r *outboxRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	query := r.db.Rebind(`SELECT COUNT(*) FROM external_event WHERE status = ?`)
	if err := r.db.GetContext(ctx, &count, query, model.OutboxStatusPending); err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}
	return count, nil
}
