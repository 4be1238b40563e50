// Package notify is the one-way sink work-package state changes are
// reported through, per spec.md §4.7. A Notifier failure is always logged
// and dropped by its caller — it is never allowed to affect pipeline
// correctness.
package notify

import "context"

// Counts summarizes a completed job's terminal states, reported alongside
// job_completed.
type Counts struct {
	Pending   int
	Running   int
	Succeeded int
	Failed    int
	Cancelled int
}

// Notifier is a one-way sink for pipeline lifecycle events.
type Notifier interface {
	PipelineStarted(ctx context.Context) error
	JobStarted(ctx context.Context, jobName string) error
	JobCompleted(ctx context.Context, jobName string, counts Counts) error
	PipelineCompleted(ctx context.Context, summary string) error
	Error(ctx context.Context, message string) error
}
