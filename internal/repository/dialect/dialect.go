// Package dialect isolates the few queries whose shape differs between the
// supported relational engines.
package dialect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/eventrelay/internal/model"
	apperrors "github.com/jwalitptl/eventrelay/pkg/errors"
)

type Name string

const (
	Postgres Name = "postgresql"
	MySQL    Name = "mysql"
	Unknown  Name = ""
)

var ErrUnsupportedDialect = errors.New("unsupported database dialect")

// Lookup finds one value inside the custom parameter blob of a running job.
// A nil value with a nil error means no match.
type Lookup interface {
	LookupParameterValue(ctx context.Context, q sqlx.QueryerContext, query model.RunningJobQuery) (*string, error)
}

// FromDriver maps a database/sql driver name to a dialect.
func FromDriver(driver string) Name {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx", "cloudsqlpostgres":
		return Postgres
	case "mysql", "mariadb":
		return MySQL
	}
	return Unknown
}

// FromVersion maps the text returned by SELECT version() to a dialect.
func FromVersion(version string) Name {
	v := strings.ToLower(strings.TrimSpace(version))
	switch {
	case strings.Contains(v, "postgresql"):
		return Postgres
	case strings.Contains(v, "mariadb"), strings.Contains(v, "mysql"):
		return MySQL
	case v != "" && v[0] >= '0' && v[0] <= '9':
		// MySQL reports a bare version number.
		return MySQL
	}
	return Unknown
}

// Detect identifies the engine behind db, first by driver name, then by asking the server.
func Detect(ctx context.Context, db *sqlx.DB) (Name, error) {
	if name := FromDriver(db.DriverName()); name != Unknown {
		return name, nil
	}

	var version string
	if err := db.QueryRowxContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return Unknown, fmt.Errorf("failed to query database version: %w", err)
	}
	if name := FromVersion(version); name != Unknown {
		return name, nil
	}
	return Unknown, apperrors.Unsupported(fmt.Sprintf("database %q is not supported", version), ErrUnsupportedDialect)
}

// ForName returns the lookup adapter for a dialect.
func ForName(name Name) (Lookup, error) {
	switch name {
	case Postgres:
		return postgresLookup{}, nil
	case MySQL:
		return mysqlLookup{}, nil
	}
	return nil, apperrors.Unsupported(fmt.Sprintf("dialect %q is not supported", string(name)), ErrUnsupportedDialect)
}

// unsupported is used when detection was skipped or failed; every call errors.
type unsupported struct {
	name Name
}

func (u unsupported) LookupParameterValue(context.Context, sqlx.QueryerContext, model.RunningJobQuery) (*string, error) {
	return nil, apperrors.Unsupported(fmt.Sprintf("parameter lookup is not available for dialect %q", string(u.name)), ErrUnsupportedDialect)
}

// ForNameOrUnsupported never fails; an unknown dialect yields a Lookup whose
// every call returns ErrUnsupportedDialect.
func ForNameOrUnsupported(name Name) Lookup {
	l, err := ForName(name)
	if err != nil {
		return unsupported{name: name}
	}
	return l
}

func scanOptional(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (*string, error) {
	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var value *string
	if err := rows.Scan(&value); err != nil {
		return nil, err
	}
	return value, rows.Err()
}
