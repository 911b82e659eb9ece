package model

import (
	"time"
)

// BatchStatus is the lifecycle state shared by job and step executions.
type BatchStatus string

const (
	BatchStatusStarting  BatchStatus = "STARTING"
	BatchStatusStarted   BatchStatus = "STARTED"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
	BatchStatusUnknown   BatchStatus = "UNKNOWN"
)

// IsTerminal reports whether an execution in this status has finished, one way or another.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusUnknown:
		return true
	}
	return false
}

func (s BatchStatus) IsRunning() bool {
	return s == BatchStatusStarting || s == BatchStatusStarted
}

type JobInstance struct {
	ID      int64  `db:"job_instance_id" json:"id"`
	JobName string `db:"job_name" json:"job_name"`
	JobKey  string `db:"job_key" json:"job_key"`
}

type JobExecution struct {
	ID          int64       `db:"job_execution_id" json:"id"`
	InstanceID  int64       `db:"job_instance_id" json:"instance_id"`
	Status      BatchStatus `db:"status" json:"status"`
	CreateTime  time.Time   `db:"create_time" json:"create_time"`
	StartTime   *time.Time  `db:"start_time" json:"start_time,omitempty"`
	EndTime     *time.Time  `db:"end_time" json:"end_time,omitempty"`
	ExitMessage *string     `db:"exit_message" json:"exit_message,omitempty"`
}

type StepExecution struct {
	ID             int64       `db:"step_execution_id" json:"id"`
	JobExecutionID int64       `db:"job_execution_id" json:"job_execution_id"`
	StepName       string      `db:"step_name" json:"step_name"`
	Status         BatchStatus `db:"status" json:"status"`
	StartTime      *time.Time  `db:"start_time" json:"start_time,omitempty"`
	EndTime        *time.Time  `db:"end_time" json:"end_time,omitempty"`
}
