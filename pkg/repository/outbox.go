package repository

import (
	"context"
	"time"

	"github.com/jwalitptl/eventrelay/internal/model"
)

// The narrow views of the tenant stores that pkg/worker depends on. The
// implementations in internal/repository/postgres satisfy all of them.

type OutboxStore interface {
	FindPending(ctx context.Context, pageSize int) ([]*model.OutboxEvent, error)
	MarkSent(ctx context.Context, ids []int64, sentAt time.Time) error
}

type OutboxPurger interface {
	DeleteSentOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type BusinessDateSource interface {
	Current(ctx context.Context) (time.Time, error)
}

type JobLedger interface {
	CreateInstance(ctx context.Context, jobName, jobKey string) (*model.JobInstance, error)
	FindRestartableInstance(ctx context.Context, jobName, keyPrefix string) (*model.JobInstance, error)
	CreateExecution(ctx context.Context, instanceID int64, startTime time.Time) (*model.JobExecution, error)
	GetExecution(ctx context.Context, executionID int64) (*model.JobExecution, error)
	CompleteExecution(ctx context.Context, executionID int64, status model.BatchStatus, endTime time.Time, exitMessage *string) error
	CreateStep(ctx context.Context, executionID int64, stepName string, startTime time.Time) (*model.StepExecution, error)
	CompleteStep(ctx context.Context, stepID int64, status model.BatchStatus, endTime time.Time) error
	SaveExecutionParameter(ctx context.Context, param *model.JobExecutionParameter) error
	FindStuckExecutionIDs(ctx context.Context, jobName string, retryThreshold int) ([]int64, error)
	MarkExecutionFailed(ctx context.Context, jobName string, executionID int64, partitionerStepName string) error
	NotCompletedPartitionsCount(ctx context.Context, executionID int64, partitionerStepName string) (int64, error)
}

type JobParameterStore interface {
	Save(ctx context.Context, params []model.JobParameter) (int64, error)
	BusinessDateOfRunningJob(ctx context.Context, q model.RunningJobQuery) (*time.Time, error)
}

type Outbox interface {
	OutboxStore
	OutboxPurger
}
