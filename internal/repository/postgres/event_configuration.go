package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/eventrelay/internal/model"
	"github.com/jwalitptl/eventrelay/internal/repository"
	"github.com/jwalitptl/eventrelay/internal/repository/dialect"
	apperrors "github.com/jwalitptl/eventrelay/pkg/errors"
)

type eventConfigurationRepository struct {
	BaseRepository
}

func NewEventConfigurationRepository(base BaseRepository) repository.EventConfigurationRepository {
	return &eventConfigurationRepository{base}
}

func (r *eventConfigurationRepository) Get(ctx context.Context, eventType string) (*model.EventTypeConfiguration, error) {
	var cfg model.EventTypeConfiguration
	query := r.db.Rebind(`SELECT type, enabled FROM external_event_configuration WHERE type = ?`)
	err := r.db.GetContext(ctx, &cfg, query, eventType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound(fmt.Sprintf("external event configuration %q", eventType), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event configuration: %w", err)
	}
	return &cfg, nil
}

func (r *eventConfigurationRepository) List(ctx context.Context) ([]*model.EventTypeConfiguration, error) {
	var cfgs []*model.EventTypeConfiguration
	if err := r.db.SelectContext(ctx, &cfgs, `SELECT type, enabled FROM external_event_configuration ORDER BY type`); err != nil {
		return nil, fmt.Errorf("failed to list event configurations: %w", err)
	}
	return cfgs, nil
}

// SetMany applies all changes in one transaction. Any unknown type aborts the whole
// batch with a not-found error naming it. Only entries whose value actually changed
// are returned.
func (r *eventConfigurationRepository) SetMany(ctx context.Context, changes map[string]bool) (map[string]bool, error) {
	changed := make(map[string]bool)
	if len(changes) == 0 {
		return changed, nil
	}

	// deterministic order so the first unknown type reported is stable
	types := make([]string, 0, len(changes))
	for t := range changes {
		types = append(types, t)
	}
	sort.Strings(types)

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		current := make(map[string]bool, len(types))
		rows, err := tx.QueryxContext(ctx, `SELECT type, enabled FROM external_event_configuration`)
		if err != nil {
			return fmt.Errorf("failed to load event configurations: %w", err)
		}
		for rows.Next() {
			var cfg model.EventTypeConfiguration
			if err := rows.StructScan(&cfg); err != nil {
				rows.Close()
				return err
			}
			current[cfg.Type] = cfg.Enabled
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, t := range types {
			if _, ok := current[t]; !ok {
				return apperrors.NotFound(fmt.Sprintf("external event configuration %q", t), nil)
			}
		}

		update := tx.Rebind(`UPDATE external_event_configuration SET enabled = ? WHERE type = ?`)
		for _, t := range types {
			enabled := changes[t]
			if current[t] == enabled {
				continue
			}
			if _, err := tx.ExecContext(ctx, update, enabled, t); err != nil {
				return fmt.Errorf("failed to update event configuration %q: %w", t, err)
			}
			changed[t] = enabled
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func (r *eventConfigurationRepository) Register(ctx context.Context, types []string) (int64, error) {
	if len(types) == 0 {
		return 0, nil
	}

	query := `INSERT INTO external_event_configuration (type, enabled) VALUES (?, FALSE) ON CONFLICT (type) DO NOTHING`
	if r.dialect == dialect.MySQL {
		query = `INSERT IGNORE INTO external_event_configuration (type, enabled) VALUES (?, FALSE)`
	}

	var added int64
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		stmt := tx.Rebind(query)
		for _, t := range types {
			res, err := tx.ExecContext(ctx, stmt, t)
			if err != nil {
				return fmt.Errorf("failed to register event type %q: %w", t, err)
			}
			n, _ := res.RowsAffected()
			added += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}
