package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"

	"github.com/jwalitptl/eventrelay/internal/model"
	"github.com/jwalitptl/eventrelay/pkg/lock"
	"github.com/jwalitptl/eventrelay/pkg/logger"
	"github.com/jwalitptl/eventrelay/pkg/metrics"
)

// Job is one unit of scheduled work, run once per tenant per tick.
type Job interface {
	Name() string
	Tick(ctx context.Context, t *Tenant) error
}

type SchedulerConfig struct {
	// MaxConcurrency bounds how many tenants tick at once for one job.
	MaxConcurrency int
}

type schedule struct {
	job      Job
	interval time.Duration
}

// Scheduler runs jobs on fixed intervals for every tenant. Each tenant tick
// holds the (tenant, job) lease and is recorded in the tenant's job ledger.
type Scheduler struct {
	tenants   TenantSource
	locker    lock.Locker
	config    SchedulerConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
	schedules []schedule
	now       func() time.Time
}

func NewScheduler(
	tenants TenantSource,
	locker lock.Locker,
	config SchedulerConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Scheduler {
	if tenants == nil {
		panic("tenant source is required")
	}
	if config.MaxConcurrency <= 0 {
		panic("MaxConcurrency must be greater than 0")
	}
	if locker == nil {
		locker = lock.NoopLocker{}
	}

	return &Scheduler{
		tenants: tenants,
		locker:  locker,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Add registers job to run every interval once Start is called.
func (s *Scheduler) Add(job Job, interval time.Duration) {
	if interval <= 0 {
		panic(fmt.Sprintf("interval for %s must be greater than 0", job.Name()))
	}
	s.schedules = append(s.schedules, schedule{job: job, interval: interval})
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	var wg conc.WaitGroup
	for _, sch := range s.schedules {
		sch := sch
		wg.Go(func() { s.loop(ctx, sch) })
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, sch schedule) {
	ticker := time.NewTicker(sch.interval)
	defer ticker.Stop()

	s.logger.Info("Starting job", "job", sch.job.Name(), "interval", sch.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Shutting down job", "job", sch.job.Name())
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx, sch.job); err != nil {
				s.logger.Error(err, "Job tick failed", "job", sch.job.Name())
			}
		}
	}
}

// RunOnce ticks job for every tenant and joins their errors.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) error {
	p := pool.New().WithMaxGoroutines(s.config.MaxConcurrency).WithErrors()
	for _, t := range s.tenants.Tenants() {
		t := t
		p.Go(func() error {
			if err := s.Run(ctx, job, t); err != nil {
				return fmt.Errorf("tenant %s: %w", t.ID, err)
			}
			return nil
		})
	}
	return p.Wait()
}

// Run ticks job for a single tenant. A lease held elsewhere skips the tick
// without error.
func (s *Scheduler) Run(ctx context.Context, job Job, t *Tenant) error {
	lease, err := s.locker.TryLock(ctx, lock.Key(t.ID, job.Name()))
	if errors.Is(err, lock.ErrNotAcquired) {
		s.metrics.LockContention.WithLabelValues(job.Name()).Inc()
		s.logger.Debug("Job lease held elsewhere, skipping tick", "tenant", t.ID, "job", job.Name())
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to acquire lease: %w", err)
	}
	defer func() {
		if err := lease.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error(err, "Failed to release job lease", "tenant", t.ID, "job", job.Name())
		}
	}()

	r, err := s.begin(ctx, job, t)
	if err != nil {
		s.metrics.JobRuns.WithLabelValues(job.Name(), "error").Inc()
		return fmt.Errorf("failed to record job start: %w", err)
	}

	tickErr := safeTick(ctx, job, t)

	status := model.BatchStatusCompleted
	if tickErr != nil {
		status = model.BatchStatusFailed
	}
	s.finish(context.WithoutCancel(ctx), t, r, status, tickErr)
	s.metrics.JobRuns.WithLabelValues(job.Name(), string(status)).Inc()

	return tickErr
}

func safeTick(ctx context.Context, job Job, t *Tenant) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), rec)
		}
	}()
	return job.Tick(ctx, t)
}

type run struct {
	executionID int64
	stepID      int64
}

func (s *Scheduler) begin(ctx context.Context, job Job, t *Tenant) (*run, error) {
	businessDate, err := t.Dates.Current(ctx)
	if err != nil {
		return nil, err
	}

	paramID, err := t.Params.Save(ctx, []model.JobParameter{
		{ParameterName: model.JobParamTenantID, ParameterValue: t.ID},
		{ParameterName: model.JobParamBusinessDate, ParameterValue: businessDate.Format(model.BusinessDateLayout)},
	})
	if err != nil {
		return nil, err
	}

	prefix := t.ID + ":"
	inst, err := t.Ledger.FindRestartableInstance(ctx, job.Name(), prefix)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		inst, err = t.Ledger.CreateInstance(ctx, job.Name(), prefix+uuid.NewString())
		if err != nil {
			return nil, err
		}
	} else {
		s.logger.Info("Restarting recovered job instance", "tenant", t.ID, "job", job.Name(), "instance_id", inst.ID)
	}

	now := s.now().UTC()
	exec, err := t.Ledger.CreateExecution(ctx, inst.ID, now)
	if err != nil {
		return nil, err
	}

	param := &model.JobExecutionParameter{
		JobExecutionID: exec.ID,
		ParameterName:  model.CustomJobParameterKey,
		ParameterValue: strconv.FormatInt(paramID, 10),
	}
	if err := t.Ledger.SaveExecutionParameter(ctx, param); err != nil {
		s.abandon(ctx, t, exec.ID, err)
		return nil, err
	}

	step, err := t.Ledger.CreateStep(ctx, exec.ID, StepName(job.Name()), now)
	if err != nil {
		s.abandon(ctx, t, exec.ID, err)
		return nil, err
	}

	return &run{executionID: exec.ID, stepID: step.ID}, nil
}

func (s *Scheduler) abandon(ctx context.Context, t *Tenant, executionID int64, cause error) {
	msg := cause.Error()
	if err := t.Ledger.CompleteExecution(context.WithoutCancel(ctx), executionID, model.BatchStatusFailed, s.now().UTC(), &msg); err != nil {
		s.logger.Error(err, "Failed to abandon job execution", "tenant", t.ID, "execution_id", executionID)
	}
}

func (s *Scheduler) finish(ctx context.Context, t *Tenant, r *run, status model.BatchStatus, tickErr error) {
	end := s.now().UTC()
	if err := t.Ledger.CompleteStep(ctx, r.stepID, status, end); err != nil {
		s.logger.Error(err, "Failed to complete step execution", "tenant", t.ID, "step_id", r.stepID)
	}

	var exitMessage *string
	if tickErr != nil {
		msg := tickErr.Error()
		exitMessage = &msg
	}
	if err := t.Ledger.CompleteExecution(ctx, r.executionID, status, end, exitMessage); err != nil {
		s.logger.Error(err, "Failed to complete job execution", "tenant", t.ID, "execution_id", r.executionID)
	}
}

// StepName is the single step recorded for each run of jobName.
func StepName(jobName string) string {
	return jobName + "_STEP"
}
