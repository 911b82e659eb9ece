package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/eventrelay/internal/model"
)

// All repository interfaces in one file. Every implementation is bound to a single
// tenant's database, so none of the methods take a tenant argument.
type (
	// OutboxRepository is the external event outbox.
	OutboxRepository interface {
		// Append writes a PENDING row through q, normally the caller's transaction.
		Append(ctx context.Context, q sqlx.ExtContext, event *model.OutboxEvent) error
		FindPending(ctx context.Context, pageSize int) ([]*model.OutboxEvent, error)
		MarkSent(ctx context.Context, ids []int64, sentAt time.Time) error
		DeleteSentOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
		CountPending(ctx context.Context) (int64, error)
	}

	EventConfigurationRepository interface {
		Get(ctx context.Context, eventType string) (*model.EventTypeConfiguration, error)
		List(ctx context.Context) ([]*model.EventTypeConfiguration, error)
		SetMany(ctx context.Context, changes map[string]bool) (map[string]bool, error)
		// Register inserts missing types as disabled and returns how many were added.
		Register(ctx context.Context, types []string) (int64, error)
	}

	JobExecutionRepository interface {
		CreateInstance(ctx context.Context, jobName, jobKey string) (*model.JobInstance, error)
		FindRestartableInstance(ctx context.Context, jobName, keyPrefix string) (*model.JobInstance, error)
		CreateExecution(ctx context.Context, instanceID int64, startTime time.Time) (*model.JobExecution, error)
		GetExecution(ctx context.Context, executionID int64) (*model.JobExecution, error)
		CompleteExecution(ctx context.Context, executionID int64, status model.BatchStatus, endTime time.Time, exitMessage *string) error
		CreateStep(ctx context.Context, executionID int64, stepName string, startTime time.Time) (*model.StepExecution, error)
		CompleteStep(ctx context.Context, stepID int64, status model.BatchStatus, endTime time.Time) error
		SaveExecutionParameter(ctx context.Context, param *model.JobExecutionParameter) error

		FindStuckExecutionIDs(ctx context.Context, jobName string, retryThreshold int) ([]int64, error)
		FindAllStuckExecutionIDs(ctx context.Context, retryThreshold int) ([]int64, error)
		MarkExecutionFailed(ctx context.Context, jobName string, executionID int64, partitionerStepName string) error
		NotCompletedPartitionsCount(ctx context.Context, executionID int64, partitionerStepName string) (int64, error)
	}

	CustomJobParameterRepository interface {
		Save(ctx context.Context, params []model.JobParameter) (int64, error)
		FindByID(ctx context.Context, id int64) ([]model.JobParameter, error)
		BusinessDateOfRunningJob(ctx context.Context, q model.RunningJobQuery) (*time.Time, error)
	}

	BusinessDateRepository interface {
		// Current returns the tenant's business date, today (UTC) when none is stored.
		Current(ctx context.Context) (time.Time, error)
		Set(ctx context.Context, date time.Time) error
	}
)
