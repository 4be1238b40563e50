// Package scheduler defines the contract the supervisor requires from any
// external workload manager, per spec.md §4.4.
package scheduler

import (
	"context"
	"time"
)

// TaskState is the scheduler-observed state of one array task.
type TaskState struct {
	Status   TaskStatus
	ExitCode int // meaningful only when Status is TaskFailed
}

type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskRunning
	TaskSucceeded
	TaskFailed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "PENDING"
	case TaskRunning:
		return "RUNNING"
	case TaskSucceeded:
		return "SUCCEEDED"
	case TaskFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ArrayJobID identifies one array submission with the external scheduler.
type ArrayJobID string

// StdioTemplate is a stdout/stderr destination template carrying the
// {array_job_id} and {task_id} placeholders spec.md §4.4 requires.
type StdioTemplate struct {
	Stdout string
	Stderr string
}

// SubmitRequest carries everything submit_array needs to schedule a batch
// of tasks: the launcher-script path, environment variables, the resource
// request, stdio destination templates, the work file (one parameter
// record per task, task i reads element i), and the array size.
type SubmitRequest struct {
	Account     string
	Name        string
	CondaEnv    string
	Script      string
	CPUs        int
	Time        time.Duration
	Memory      string
	Stdio       StdioTemplate
	WorkFile    string
	ArraySize   int
}

// Adapter is the minimal contract over an external workload manager.
type Adapter interface {
	// SubmitArray schedules a batch of tasks and returns the assigned
	// array job id.
	SubmitArray(ctx context.Context, req SubmitRequest) (ArrayJobID, error)

	// Query returns the observed state of every task in the array,
	// keyed by task index.
	Query(ctx context.Context, id ArrayJobID) (map[int]TaskState, error)

	// Cancel best-effort terminates the named tasks, or the whole array
	// when taskIDs is empty.
	Cancel(ctx context.Context, id ArrayJobID, taskIDs ...int) error

	// ListActive lists array jobs still known to the scheduler under the
	// given account and name prefix, for restart-time reconciliation.
	ListActive(ctx context.Context, account, namePrefix string) ([]ArrayJobID, error)
}
