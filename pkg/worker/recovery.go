package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/eventrelay/internal/model"
	"github.com/jwalitptl/eventrelay/pkg/lock"
	"github.com/jwalitptl/eventrelay/pkg/logger"
	"github.com/jwalitptl/eventrelay/pkg/metrics"
)

// RecoveryJob names a job whose stuck runs are recovered. PartitionerStep is
// empty for jobs without a partitioned step.
type RecoveryJob struct {
	Name            string
	PartitionerStep string
}

type RecoveryConfig struct {
	RetryThreshold int
	// GracePeriod protects partitioned runs whose workers are still active.
	GracePeriod time.Duration
	Jobs        []RecoveryJob
}

// Recovery force-fails job executions left STARTED by a node that died.
// It holds the job's lease while doing so, so a run that is still ticking
// anywhere is never touched.
type Recovery struct {
	locker  lock.Locker
	config  RecoveryConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRecovery(locker lock.Locker, config RecoveryConfig, logger *logger.Logger, metrics *metrics.Metrics) *Recovery {
	if config.RetryThreshold <= 0 {
		panic("RetryThreshold must be greater than 0")
	}
	if config.GracePeriod < 0 {
		panic("GracePeriod cannot be negative")
	}
	if locker == nil {
		locker = lock.NoopLocker{}
	}
	return &Recovery{
		locker:  locker,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (r *Recovery) Name() string {
	return JobRecoverRuns
}

func (r *Recovery) Tick(ctx context.Context, t *Tenant) error {
	_, err := r.Recover(ctx, t)
	return err
}

// Recover runs over every configured job and returns the execution ids it failed.
func (r *Recovery) Recover(ctx context.Context, t *Tenant) ([]int64, error) {
	var (
		recovered []int64
		errs      []error
	)
	for _, job := range r.config.Jobs {
		ids, err := r.RecoverJob(ctx, t, job)
		recovered = append(recovered, ids...)
		if err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.Name, err))
		}
	}
	return recovered, errors.Join(errs...)
}

func (r *Recovery) RecoverJob(ctx context.Context, t *Tenant, job RecoveryJob) ([]int64, error) {
	lease, err := r.locker.TryLock(ctx, lock.Key(t.ID, job.Name))
	if errors.Is(err, lock.ErrNotAcquired) {
		r.logger.Debug("Job is running, skipping recovery", "tenant", t.ID, "job", job.Name)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lease.Unlock(context.WithoutCancel(ctx)); err != nil {
			r.logger.Error(err, "Failed to release job lease", "tenant", t.ID, "job", job.Name)
		}
	}()

	threshold := pick(t.Settings.StuckRetryThreshold, r.config.RetryThreshold)
	ids, err := t.Ledger.FindStuckExecutionIDs(ctx, job.Name, threshold)
	if err != nil {
		r.metrics.DatabaseOperations.WithLabelValues("find_stuck_executions", "error").Inc()
		return nil, err
	}
	r.metrics.DatabaseOperations.WithLabelValues("find_stuck_executions", "success").Inc()

	var recovered []int64
	for _, id := range ids {
		if job.PartitionerStep != "" {
			active, err := r.partitionsActive(ctx, t, job, id)
			if err != nil {
				return recovered, err
			}
			if active {
				r.logger.Info("Partitions still running, leaving execution alone",
					"tenant", t.ID, "job", job.Name, "execution_id", id)
				continue
			}
		}

		r.logRunningBusinessDate(ctx, t, job.Name, id)

		if err := t.Ledger.MarkExecutionFailed(ctx, job.Name, id, job.PartitionerStep); err != nil {
			return recovered, fmt.Errorf("failed to fail execution %d: %w", id, err)
		}
		r.metrics.StuckRecovered.WithLabelValues(t.ID, job.Name).Inc()
		r.logger.Warn("Recovered stuck job execution",
			"tenant", t.ID, "job", job.Name, "execution_id", id)
		recovered = append(recovered, id)
	}
	return recovered, nil
}

func (r *Recovery) partitionsActive(ctx context.Context, t *Tenant, job RecoveryJob, executionID int64) (bool, error) {
	pending, err := t.Ledger.NotCompletedPartitionsCount(ctx, executionID, job.PartitionerStep)
	if err != nil {
		return false, err
	}
	if pending == 0 {
		return false, nil
	}

	exec, err := t.Ledger.GetExecution(ctx, executionID)
	if err != nil {
		return false, err
	}
	if exec.StartTime == nil {
		return false, nil
	}
	return r.now().Sub(*exec.StartTime) < r.config.GracePeriod, nil
}

func (r *Recovery) logRunningBusinessDate(ctx context.Context, t *Tenant, jobName string, executionID int64) {
	q := model.RunningJobQuery{
		JobName:          jobName,
		FilterParamName:  model.JobParamTenantID,
		FilterParamValue: t.ID,
	}.WithDefaults()

	date, err := t.Params.BusinessDateOfRunningJob(ctx, q)
	if err != nil {
		r.logger.Warn("Could not resolve business date of stuck run",
			"tenant", t.ID, "job", jobName, "execution_id", executionID, "error", err.Error())
		return
	}
	if date != nil {
		r.logger.Info("Stuck run business date",
			"tenant", t.ID, "job", jobName, "execution_id", executionID,
			"business_date", date.Format(model.BusinessDateLayout))
	}
}
