package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/jwalitptl/eventrelay/internal/model"
	"github.com/jwalitptl/eventrelay/internal/repository"
	"github.com/jwalitptl/eventrelay/internal/repository/dialect"
	apperrors "github.com/jwalitptl/eventrelay/pkg/errors"
)

type customJobParameterRepository struct {
	BaseRepository
	lookup dialect.Lookup
}

// NewCustomJobParameterRepository binds the store to lookup for running-job queries.
// A nil lookup is resolved from the base repository's dialect.
func NewCustomJobParameterRepository(base BaseRepository, lookup dialect.Lookup) repository.CustomJobParameterRepository {
	if lookup == nil {
		lookup = dialect.ForNameOrUnsupported(base.dialect)
	}
	return &customJobParameterRepository{BaseRepository: base, lookup: lookup}
}

func (r *customJobParameterRepository) Save(ctx context.Context, params []model.JobParameter) (int64, error) {
	if params == nil {
		params = []model.JobParameter{}
	}
	blob, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("failed to encode job parameters: %w", err)
	}

	id, err := r.insertID(ctx, r.db, "id", `INSERT INTO batch_custom_job_parameters (parameter_json) VALUES (?)`, string(blob))
	if err != nil {
		return 0, fmt.Errorf("failed to save custom job parameters: %w", err)
	}
	return id, nil
}

func (r *customJobParameterRepository) FindByID(ctx context.Context, id int64) ([]model.JobParameter, error) {
	var row model.CustomJobParameter
	query := r.db.Rebind(`SELECT id, parameter_json FROM batch_custom_job_parameters WHERE id = ?`)
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound(fmt.Sprintf("custom job parameter %d", id), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get custom job parameters: %w", err)
	}

	var params []model.JobParameter
	if err := json.Unmarshal([]byte(row.ParameterJSON), &params); err != nil {
		return nil, fmt.Errorf("failed to decode custom job parameters %d: %w", id, err)
	}
	return params, nil
}

// BusinessDateOfRunningJob returns nil, nil when no running job matches.
func (r *customJobParameterRepository) BusinessDateOfRunningJob(ctx context.Context, q model.RunningJobQuery) (*time.Time, error) {
	value, err := r.lookup.LookupParameterValue(ctx, r.db, q)
	if err != nil {
		return nil, err
	}
	if value == nil || *value == "" {
		return nil, nil
	}

	date, err := time.Parse(model.BusinessDateLayout, *value)
	if err != nil {
		return nil, fmt.Errorf("invalid business date %q in job parameters: %w", *value, err)
	}
	return &date, nil
}
