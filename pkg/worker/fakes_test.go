package worker

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jwalitptl/eventrelay/internal/model"
	"github.com/jwalitptl/eventrelay/pkg/logger"
	"github.com/jwalitptl/eventrelay/pkg/messaging"
	"github.com/jwalitptl/eventrelay/pkg/metrics"
)

var errBoom = errors.New("boom")

func testMetrics() *metrics.Metrics {
	return metrics.New("test", nil)
}

type fakeOutbox struct {
	mu         sync.Mutex
	rows       []*model.OutboxEvent
	pageSizes  []int
	markCalls  [][]int64
	findErr    error
	markErr    error
	deleteErr  error
	cutoffs    []time.Time
	deleteRows int64
}

func (f *fakeOutbox) add(id int64, root *int64) {
	f.rows = append(f.rows, &model.OutboxEvent{
		ID:              id,
		Type:            "LoanApprovedBusinessEvent",
		Category:        "Loan",
		IdempotencyKey:  "k",
		AggregateRootID: root,
		BusinessDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:       time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		Payload:         []byte(`{}`),
		Status:          model.OutboxStatusPending,
	})
}

func (f *fakeOutbox) FindPending(_ context.Context, pageSize int) ([]*model.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageSizes = append(f.pageSizes, pageSize)
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []*model.OutboxEvent
	for _, r := range f.rows {
		if r.Status == model.OutboxStatusPending && len(out) < pageSize {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeOutbox) MarkSent(_ context.Context, ids []int64, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls = append(f.markCalls, append([]int64(nil), ids...))
	if f.markErr != nil {
		return f.markErr
	}
	for _, r := range f.rows {
		for _, id := range ids {
			if r.ID == id {
				r.Status = model.OutboxStatusSent
				at := sentAt
				r.SentAt = &at
			}
		}
	}
	return nil
}

func (f *fakeOutbox) DeleteSentOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleteRows, f.deleteErr
}

func (f *fakeOutbox) pending() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for _, r := range f.rows {
		if r.Status == model.OutboxStatusPending {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

type sendCall map[messaging.PartitionKey][][]byte

type fakeTransport struct {
	mu    sync.Mutex
	calls []sendCall
	err   error
}

func (f *fakeTransport) SendEvents(_ context.Context, batch map[messaging.PartitionKey][][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, batch)
	return f.err
}

func (f *fakeTransport) Close() error { return nil }

type fakeDates struct {
	date time.Time
	err  error
}

func (f fakeDates) Current(context.Context) (time.Time, error) {
	return f.date, f.err
}

type fakeParams struct {
	mu     sync.Mutex
	saved  [][]model.JobParameter
	date   *time.Time
	err    error
	nextID int64
}

func (f *fakeParams) Save(_ context.Context, params []model.JobParameter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, params)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeParams) BusinessDateOfRunningJob(context.Context, model.RunningJobQuery) (*time.Time, error) {
	return f.date, f.err
}

// fakeLedger keeps the job tables in memory and answers the stuck query the
// same way the SQL does.
type fakeLedger struct {
	mu         sync.Mutex
	instances  []*model.JobInstance
	executions []*model.JobExecution
	steps      []*model.StepExecution
	params     []*model.JobExecutionParameter
	notDone    int64
	failCreate error
}

func (f *fakeLedger) CreateInstance(_ context.Context, jobName, jobKey string) (*model.JobInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst := &model.JobInstance{ID: int64(len(f.instances) + 1), JobName: jobName, JobKey: jobKey}
	f.instances = append(f.instances, inst)
	return inst, nil
}

func (f *fakeLedger) FindRestartableInstance(_ context.Context, jobName, keyPrefix string) (*model.JobInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.instances) - 1; i >= 0; i-- {
		inst := f.instances[i]
		if inst.JobName != jobName || !strings.HasPrefix(inst.JobKey, keyPrefix) {
			continue
		}
		restartable, blocked := false, false
		for _, e := range f.executions {
			if e.InstanceID != inst.ID {
				continue
			}
			if e.Status == model.BatchStatusFailed && e.StartTime == nil {
				restartable = true
			}
			if e.Status == model.BatchStatusCompleted || e.Status.IsRunning() {
				blocked = true
			}
		}
		if restartable && !blocked {
			return inst, nil
		}
	}
	return nil, nil
}

func (f *fakeLedger) CreateExecution(_ context.Context, instanceID int64, startTime time.Time) (*model.JobExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	start := startTime
	exec := &model.JobExecution{
		ID:         int64(len(f.executions) + 1),
		InstanceID: instanceID,
		Status:     model.BatchStatusStarted,
		CreateTime: startTime,
		StartTime:  &start,
	}
	f.executions = append(f.executions, exec)
	return exec, nil
}

func (f *fakeLedger) GetExecution(_ context.Context, id int64) (*model.JobExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.executions {
		if e.ID == id {
			copied := *e
			return &copied, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeLedger) CompleteExecution(_ context.Context, id int64, status model.BatchStatus, endTime time.Time, exitMessage *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.executions {
		if e.ID == id {
			end := endTime
			e.Status, e.EndTime, e.ExitMessage = status, &end, exitMessage
		}
	}
	return nil
}

func (f *fakeLedger) CreateStep(_ context.Context, executionID int64, stepName string, startTime time.Time) (*model.StepExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := startTime
	step := &model.StepExecution{
		ID:             int64(len(f.steps) + 1),
		JobExecutionID: executionID,
		StepName:       stepName,
		Status:         model.BatchStatusStarted,
		StartTime:      &start,
	}
	f.steps = append(f.steps, step)
	return step, nil
}

func (f *fakeLedger) CompleteStep(_ context.Context, stepID int64, status model.BatchStatus, endTime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.steps {
		if s.ID == stepID {
			end := endTime
			s.Status, s.EndTime = status, &end
		}
	}
	return nil
}

func (f *fakeLedger) SaveExecutionParameter(_ context.Context, p *model.JobExecutionParameter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, p)
	return nil
}

func (f *fakeLedger) FindStuckExecutionIDs(_ context.Context, jobName string, threshold int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for _, inst := range f.instances {
		if inst.JobName != jobName {
			continue
		}
		var count int
		terminal := false
		var started []int64
		for _, e := range f.executions {
			if e.InstanceID != inst.ID {
				continue
			}
			count++
			if e.Status.IsTerminal() {
				terminal = true
			}
			if e.Status == model.BatchStatusStarted {
				started = append(started, e.ID)
			}
		}
		if !terminal && count <= threshold {
			ids = append(ids, started...)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeLedger) MarkExecutionFailed(_ context.Context, jobName string, id int64, partitionerStep string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var target *model.JobExecution
	for _, e := range f.executions {
		if e.ID == id && e.Status.IsRunning() && f.jobNameOf(e.InstanceID) == jobName {
			target = e
		}
	}
	if target == nil {
		return errors.New("not found")
	}
	target.Status, target.StartTime, target.EndTime = model.BatchStatusFailed, nil, nil
	for _, s := range f.steps {
		if s.JobExecutionID == id && s.StepName != partitionerStep {
			s.Status = model.BatchStatusFailed
		}
	}
	return nil
}

func (f *fakeLedger) jobNameOf(instanceID int64) string {
	for _, inst := range f.instances {
		if inst.ID == instanceID {
			return inst.JobName
		}
	}
	return ""
}

func (f *fakeLedger) NotCompletedPartitionsCount(context.Context, int64, string) (int64, error) {
	return f.notDone, nil
}

// seedStarted adds an instance of jobName with one STARTED execution and one
// STARTED step, as a node that died mid-run would leave it.
func (f *fakeLedger) seedStarted(jobName, key string, started time.Time, stepNames ...string) int64 {
	inst, _ := f.CreateInstance(context.Background(), jobName, key)
	exec, _ := f.CreateExecution(context.Background(), inst.ID, started)
	for _, name := range stepNames {
		_, _ = f.CreateStep(context.Background(), exec.ID, name, started)
	}
	return exec.ID
}

func (f *fakeLedger) execution(id int64) *model.JobExecution {
	e, _ := f.GetExecution(context.Background(), id)
	return e
}

func newTenant(id string) (*Tenant, *fakeOutbox, *fakeLedger, *fakeParams) {
	outbox := &fakeOutbox{}
	ledger := &fakeLedger{}
	params := &fakeParams{}
	return &Tenant{
		ID:     id,
		Outbox: outbox,
		Ledger: ledger,
		Params: params,
		Dates:  fakeDates{date: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
	}, outbox, ledger, params
}

var nopLogger = logger.Nop()
