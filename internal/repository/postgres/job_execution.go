package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/eventrelay/internal/model"
	"github.com/jwalitptl/eventrelay/internal/repository"
	apperrors "github.com/jwalitptl/eventrelay/pkg/errors"
)

type jobExecutionRepository struct {
	BaseRepository
}

func NewJobExecutionRepository(base BaseRepository) repository.JobExecutionRepository {
	return &jobExecutionRepository{base}
}

func (r *jobExecutionRepository) CreateInstance(ctx context.Context, jobName, jobKey string) (*model.JobInstance, error) {
	query := `INSERT INTO batch_job_instance (job_name, job_key) VALUES (?, ?)`
	id, err := r.insertID(ctx, r.db, "job_instance_id", query, jobName, jobKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create job instance: %w", err)
	}
	return &model.JobInstance{ID: id, JobName: jobName, JobKey: jobKey}, nil
}

// FindRestartableInstance returns the newest instance of jobName whose key starts
// with keyPrefix, that was force-failed by recovery and has not run since. Nil when none.
func (r *jobExecutionRepository) FindRestartableInstance(ctx context.Context, jobName, keyPrefix string) (*model.JobInstance, error) {
	query := r.db.Rebind(`
		SELECT bji.job_instance_id, bji.job_name, bji.job_key
		FROM batch_job_instance bji
		WHERE bji.job_name = ?
		AND bji.job_key LIKE ?
		AND EXISTS (
			SELECT 1 FROM batch_job_execution f
			WHERE f.job_instance_id = bji.job_instance_id
			AND f.status = 'FAILED'
			AND f.start_time IS NULL
		)
		AND NOT EXISTS (
			SELECT 1 FROM batch_job_execution o
			WHERE o.job_instance_id = bji.job_instance_id
			AND o.status IN ('COMPLETED', 'STARTING', 'STARTED')
		)
		ORDER BY bji.job_instance_id DESC
		LIMIT 1
	`)

	var inst model.JobInstance
	err := r.db.GetContext(ctx, &inst, query, jobName, keyPrefix+"%")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find restartable job instance: %w", err)
	}
	return &inst, nil
}

func (r *jobExecutionRepository) CreateExecution(ctx context.Context, instanceID int64, startTime time.Time) (*model.JobExecution, error) {
	query := `
		INSERT INTO batch_job_execution (job_instance_id, status, create_time, start_time)
		VALUES (?, ?, ?, ?)
	`
	id, err := r.insertID(ctx, r.db, "job_execution_id", query, instanceID, model.BatchStatusStarted, startTime, startTime)
	if err != nil {
		return nil, fmt.Errorf("failed to create job execution: %w", err)
	}

	start := startTime
	return &model.JobExecution{
		ID:         id,
		InstanceID: instanceID,
		Status:     model.BatchStatusStarted,
		CreateTime: startTime,
		StartTime:  &start,
	}, nil
}

func (r *jobExecutionRepository) GetExecution(ctx context.Context, executionID int64) (*model.JobExecution, error) {
	query := r.db.Rebind(`
		SELECT job_execution_id, job_instance_id, status, create_time, start_time, end_time, exit_message
		FROM batch_job_execution
		WHERE job_execution_id = ?
	`)

	var exec model.JobExecution
	err := r.db.GetContext(ctx, &exec, query, executionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound(fmt.Sprintf("job execution %d", executionID), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job execution: %w", err)
	}
	return &exec, nil
}

func (r *jobExecutionRepository) CompleteExecution(ctx context.Context, executionID int64, status model.BatchStatus, endTime time.Time, exitMessage *string) error {
	query := r.db.Rebind(`
		UPDATE batch_job_execution
		SET status = ?, end_time = ?, exit_message = ?
		WHERE job_execution_id = ?
	`)
	if _, err := r.db.ExecContext(ctx, query, status, endTime, exitMessage, executionID); err != nil {
		return fmt.Errorf("failed to complete job execution: %w", err)
	}
	return nil
}

func (r *jobExecutionRepository) CreateStep(ctx context.Context, executionID int64, stepName string, startTime time.Time) (*model.StepExecution, error) {
	query := `
		INSERT INTO batch_step_execution (job_execution_id, step_name, status, start_time)
		VALUES (?, ?, ?, ?)
	`
	id, err := r.insertID(ctx, r.db, "step_execution_id", query, executionID, stepName, model.BatchStatusStarted, startTime)
	if err != nil {
		return nil, fmt.Errorf("failed to create step execution: %w", err)
	}

	start := startTime
	return &model.StepExecution{
		ID:             id,
		JobExecutionID: executionID,
		StepName:       stepName,
		Status:         model.BatchStatusStarted,
		StartTime:      &start,
	}, nil
}

func (r *jobExecutionRepository) CompleteStep(ctx context.Context, stepID int64, status model.BatchStatus, endTime time.Time) error {
	query := r.db.Rebind(`UPDATE batch_step_execution SET status = ?, end_time = ? WHERE step_execution_id = ?`)
	if _, err := r.db.ExecContext(ctx, query, status, endTime, stepID); err != nil {
		return fmt.Errorf("failed to complete step execution: %w", err)
	}
	return nil
}

func (r *jobExecutionRepository) SaveExecutionParameter(ctx context.Context, param *model.JobExecutionParameter) error {
	query := r.db.Rebind(`
		INSERT INTO batch_job_execution_params (job_execution_id, parameter_name, parameter_value)
		VALUES (?, ?, ?)
	`)
	if _, err := r.db.ExecContext(ctx, query, param.JobExecutionID, param.ParameterName, param.ParameterValue); err != nil {
		return fmt.Errorf("failed to save job execution parameter: %w", err)
	}
	return nil
}

// An instance is stuck when it has a STARTED execution, no execution of it ever
// finished, and it has been attempted at most retryThreshold times.
const stuckExecutionsQuery = `
	SELECT bje.job_execution_id
	FROM batch_job_execution bje
	JOIN batch_job_instance bji ON bji.job_instance_id = bje.job_instance_id
	WHERE bje.status = 'STARTED'
	%s
	AND NOT EXISTS (
		SELECT 1 FROM batch_job_execution done
		WHERE done.job_instance_id = bji.job_instance_id
		AND done.status IN ('COMPLETED', 'FAILED', 'UNKNOWN')
	)
	AND (
		SELECT COUNT(*) FROM batch_job_execution attempts
		WHERE attempts.job_instance_id = bji.job_instance_id
	) <= ?
	ORDER BY bje.job_execution_id
`

func (r *jobExecutionRepository) FindStuckExecutionIDs(ctx context.Context, jobName string, retryThreshold int) ([]int64, error) {
	query := r.db.Rebind(fmt.Sprintf(stuckExecutionsQuery, "AND bji.job_name = ?"))

	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, jobName, retryThreshold); err != nil {
		return nil, fmt.Errorf("failed to find stuck job executions: %w", err)
	}
	return ids, nil
}

func (r *jobExecutionRepository) FindAllStuckExecutionIDs(ctx context.Context, retryThreshold int) ([]int64, error) {
	query := r.db.Rebind(fmt.Sprintf(stuckExecutionsQuery, ""))

	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, retryThreshold); err != nil {
		return nil, fmt.Errorf("failed to find stuck job executions: %w", err)
	}
	return ids, nil
}

// MarkExecutionFailed force-fails a running execution of jobName with both
// timestamps cleared, then every step of it except the partitioner. Executions
// of another job or already finished ones are NotFound and left untouched.
func (r *jobExecutionRepository) MarkExecutionFailed(ctx context.Context, jobName string, executionID int64, partitionerStepName string) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		exec := tx.Rebind(`
			UPDATE batch_job_execution
			SET status = ?, start_time = NULL, end_time = NULL
			WHERE job_execution_id = ?
			AND status IN ('STARTING', 'STARTED')
			AND job_instance_id IN (
				SELECT job_instance_id FROM batch_job_instance WHERE job_name = ?
			)
		`)
		res, err := tx.ExecContext(ctx, exec, model.BatchStatusFailed, executionID, jobName)
		if err != nil {
			return fmt.Errorf("failed to fail job execution: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to fail job execution: %w", err)
		}
		if n == 0 {
			return apperrors.NotFound(fmt.Sprintf("running execution %d of job %s", executionID, jobName), nil)
		}

		steps := tx.Rebind(`
			UPDATE batch_step_execution
			SET status = ?
			WHERE job_execution_id = ? AND step_name <> ?
		`)
		if _, err := tx.ExecContext(ctx, steps, model.BatchStatusFailed, executionID, partitionerStepName); err != nil {
			return fmt.Errorf("failed to fail step executions: %w", err)
		}
		return nil
	})
}

func (r *jobExecutionRepository) NotCompletedPartitionsCount(ctx context.Context, executionID int64, partitionerStepName string) (int64, error) {
	query := r.db.Rebind(`
		SELECT COUNT(*)
		FROM batch_step_execution
		WHERE job_execution_id = ?
		AND step_name <> ?
		AND status <> 'COMPLETED'
	`)

	var count int64
	if err := r.db.GetContext(ctx, &count, query, executionID, partitionerStepName); err != nil {
		return 0, fmt.Errorf("failed to count partitions: %w", err)
	}
	return count, nil
}
