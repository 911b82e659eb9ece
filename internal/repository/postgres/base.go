package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/eventrelay/internal/repository/dialect"
)

// BaseRepository provides common functionality for all repositories.
// Queries are written with ? placeholders and rebound for the connected engine.
type BaseRepository struct {
	db      *sqlx.DB
	dialect dialect.Name
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	name := dialect.FromDriver(db.DriverName())
	if name == dialect.Unknown {
		name = dialect.Postgres
	}
	return BaseRepository{db: db, dialect: name}
}

// NewBaseRepositoryWithDialect skips driver-name detection.
func NewBaseRepositoryWithDialect(db *sqlx.DB, name dialect.Name) BaseRepository {
	return BaseRepository{db: db, dialect: name}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

func (r *BaseRepository) Dialect() dialect.Name {
	return r.dialect
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// insertID runs an INSERT and returns the generated key of idColumn.
func (r *BaseRepository) insertID(ctx context.Context, q sqlx.ExtContext, idColumn, query string, args ...interface{}) (int64, error) {
	if r.dialect == dialect.MySQL {
		res, err := q.ExecContext(ctx, q.Rebind(query), args...)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}

	var id int64
	query = fmt.Sprintf("%s RETURNING %s", query, idColumn)
	if err := q.QueryRowxContext(ctx, q.Rebind(query), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
