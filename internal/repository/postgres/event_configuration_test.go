package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jwalitptl/eventrelay/pkg/errors"
)

func TestEventConfigurationGet(t *testing.T) {
	base, mock := newMockBase(t, "postgres")
	repo := NewEventConfigurationRepository(base)

	mock.ExpectQuery(`SELECT type, enabled FROM external_event_configuration WHERE type = \$1`).
		WithArgs("LoanApprovedBusinessEvent").
		WillReturnRows(sqlmock.NewRows([]string{"type", "enabled"}).AddRow("LoanApprovedBusinessEvent", true))

	cfg, err := repo.Get(context.Background(), "LoanApprovedBusinessEvent")
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventConfigurationGet_NotFound(t *testing.T) {
	base, mock := newMockBase(t, "postgres")
	repo := NewEventConfigurationRepository(base)

	mock.ExpectQuery(`FROM external_event_configuration`).
		WithArgs("NoSuchEvent").
		WillReturnRows(sqlmock.NewRows([]string{"type", "enabled"}))

	_, err := repo.Get(context.Background(), "NoSuchEvent")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "NoSuchEvent")
}

func TestEventConfigurationSetMany_ReturnsOnlyChanged(t *testing.T) {
	base, mock := newMockBase(t, "postgres")
	repo := NewEventConfigurationRepository(base)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT type, enabled FROM external_event_configuration`).
		WillReturnRows(sqlmock.NewRows([]string{"type", "enabled"}).
			AddRow("ClientCreateBusinessEvent", false).
			AddRow("LoanApprovedBusinessEvent", true))
	mock.ExpectExec(`UPDATE external_event_configuration SET enabled = \$1 WHERE type = \$2`).
		WithArgs(true, "ClientCreateBusinessEvent").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	changed, err := repo.SetMany(context.Background(), map[string]bool{
		"ClientCreateBusinessEvent": true,
		"LoanApprovedBusinessEvent": true,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"ClientCreateBusinessEvent": true}, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventConfigurationSetMany_UnknownTypeRollsBack(t *testing.T) {
	base, mock := newMockBase(t, "postgres")
	repo := NewEventConfigurationRepository(base)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT type, enabled FROM external_event_configuration`).
		WillReturnRows(sqlmock.NewRows([]string{"type", "enabled"}).AddRow("ClientCreateBusinessEvent", false))
	mock.ExpectRollback()

	_, err := repo.SetMany(context.Background(), map[string]bool{
		"ClientCreateBusinessEvent": true,
		"MadeUpBusinessEvent":       true,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "MadeUpBusinessEvent")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventConfigurationRegister(t *testing.T) {
	base, mock := newMockBase(t, "postgres")
	repo := NewEventConfigurationRepository(base)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO external_event_configuration .* ON CONFLICT \(type\) DO NOTHING`).
		WithArgs("A").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO external_event_configuration`).
		WithArgs("B").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	added, err := repo.Register(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), added)
	assert.NoError(t, mock.ExpectationsWereMet())
}
