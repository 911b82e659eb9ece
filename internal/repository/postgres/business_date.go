package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/eventrelay/internal/repository"
)

const businessDateType = "BUSINESS_DATE"

type businessDateRepository struct {
	BaseRepository
	now func() time.Time
}

func NewBusinessDateRepository(base BaseRepository) repository.BusinessDateRepository {
	return &businessDateRepository{BaseRepository: base, now: time.Now}
}

func (r *businessDateRepository) Current(ctx context.Context) (time.Time, error) {
	var date time.Time
	query := r.db.Rebind(`SELECT date FROM business_date WHERE type = ?`)
	err := r.db.GetContext(ctx, &date, query, businessDateType)
	if errors.Is(err, sql.ErrNoRows) {
		return truncateDay(r.now().UTC()), nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read business date: %w", err)
	}
	return truncateDay(date), nil
}

func (r *businessDateRepository) Set(ctx context.Context, date time.Time) error {
	date = truncateDay(date)
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE business_date SET date = ? WHERE type = ?`), date, businessDateType)
		if err != nil {
			return fmt.Errorf("failed to update business date: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO business_date (type, date) VALUES (?, ?)`), businessDateType, date); err != nil {
			return fmt.Errorf("failed to insert business date: %w", err)
		}
		return nil
	})
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
