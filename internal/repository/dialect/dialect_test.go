package dialect

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/eventrelay/internal/model"
	apperrors "github.com/jwalitptl/eventrelay/pkg/errors"
)

func newMockDB(t *testing.T, driver string) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, driver), mock
}

func TestFromDriver(t *testing.T) {
	assert.Equal(t, Postgres, FromDriver("postgres"))
	assert.Equal(t, Postgres, FromDriver("pgx"))
	assert.Equal(t, MySQL, FromDriver("mysql"))
	assert.Equal(t, Unknown, FromDriver("sqlite3"))
}

func TestFromVersion(t *testing.T) {
	tests := []struct {
		version string
		want    Name
	}{
		{"PostgreSQL 16.2 on x86_64-pc-linux-gnu", Postgres},
		{"8.0.36", MySQL},
		{"10.11.6-MariaDB-1:10.11.6+maria~ubu2204", MySQL},
		{"SQLite 3.45", Unknown},
		{"", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, FromVersion(tt.version))
		})
	}
}

func TestDetect_ByDriverName(t *testing.T) {
	db, mock := newMockDB(t, "postgres")

	name, err := Detect(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, Postgres, name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDetect_FallsBackToVersionProbe(t *testing.T) {
	db, mock := newMockDB(t, "sqlmock")
	mock.ExpectQuery(`SELECT version\(\)`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("8.0.36"))

	name, err := Detect(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, MySQL, name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDetect_UnknownEngine(t *testing.T) {
	db, mock := newMockDB(t, "sqlmock")
	mock.ExpectQuery(`SELECT version\(\)`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("SQLite 3.45"))

	_, err := Detect(context.Background(), db)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedDialect)
	assert.Equal(t, apperrors.ErrUnsupported, apperrors.Code(err))
}

func TestPostgresLookup_UsesJSONArrayElements(t *testing.T) {
	db, mock := newMockDB(t, "postgres")
	mock.ExpectQuery(`json_array_elements`).
		WithArgs("LOAN_CLOSE_OF_BUSINESS", model.CustomJobParameterKey, "loanId", "42", model.JobParamBusinessDate).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("2024-03-01"))

	lookup, err := ForName(Postgres)
	require.NoError(t, err)

	value, err := lookup.LookupParameterValue(context.Background(), db, model.RunningJobQuery{
		JobName:          "LOAN_CLOSE_OF_BUSINESS",
		FilterParamName:  "loanId",
		FilterParamValue: "42",
	})
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "2024-03-01", *value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLLookup_UsesJSONTable(t *testing.T) {
	db, mock := newMockDB(t, "mysql")
	mock.ExpectQuery(`JSON_TABLE`).
		WithArgs("LOAN_CLOSE_OF_BUSINESS", model.CustomJobParameterKey, "loanId", "42", "cobDate").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	lookup, err := ForName(MySQL)
	require.NoError(t, err)

	value, err := lookup.LookupParameterValue(context.Background(), db, model.RunningJobQuery{
		JobName:          "LOAN_CLOSE_OF_BUSINESS",
		FilterParamName:  "loanId",
		FilterParamValue: "42",
		DateParamName:    "cobDate",
	})
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnsupportedLookup(t *testing.T) {
	_, err := ForName("oracle")
	require.ErrorIs(t, err, ErrUnsupportedDialect)

	value, err := ForNameOrUnsupported("oracle").LookupParameterValue(context.Background(), nil, model.RunningJobQuery{})
	assert.Nil(t, value)
	assert.ErrorIs(t, err, ErrUnsupportedDialect)
}
