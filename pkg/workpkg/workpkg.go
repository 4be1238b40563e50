// Package workpkg models the atomic unit of scheduling work: one
// parameter record submitted as one array task, tracked through its
// lifecycle from expansion to a terminal state.
package workpkg

import (
	"fmt"
	"time"

	"github.com/basaltrun/slurmpipe/pkg/param"
)

// State is a work package's position in its lifecycle. RETRYABLE marks a
// failed attempt waiting out its backoff delay; it is written to the store
// like any other state, and the retry resubmission moves the package back
// to SUBMITTED.
type State string

const (
	Pending   State = "PENDING"
	Submitted State = "SUBMITTED"
	Running   State = "RUNNING"
	Retryable State = "RETRYABLE"
	Succeeded State = "SUCCEEDED"
	Failed    State = "FAILED"
	Cancelled State = "CANCELLED"
)

// Terminal reports whether s can never be transitioned out of within a
// single pipeline run.
func (s State) Terminal() bool {
	switch s {
	case Succeeded, Failed, Cancelled:
		return true
	default:
		return false
	}
}

// ExternalID identifies one task within a submitted array job.
type ExternalID struct {
	ArrayJobID string
	TaskID     int
}

func (id ExternalID) IsZero() bool {
	return id.ArrayJobID == "" && id.TaskID == 0
}

func (id ExternalID) String() string {
	return fmt.Sprintf("%s[%d]", id.ArrayJobID, id.TaskID)
}

// Resources is the effective resource request after special-case
// resolution.
type Resources struct {
	CPUs   int
	Time   time.Duration
	Memory string // empty means unset
}

// LastError captures the scheduler-reported outcome of the most recent
// failed attempt.
type LastError struct {
	ExitCode   int
	StderrTail string
}

// LogPaths are the derived stdout/stderr file locations for a task.
type LogPaths struct {
	Stdout string
	Stderr string
}

// Key uniquely identifies a WorkPackage within a pipeline run.
type Key struct {
	JobName string
	Index   int
}

func (k Key) String() string {
	return fmt.Sprintf("%s[%d]", k.JobName, k.Index)
}

// WorkPackage is the atomic unit of scheduling work, per spec §3.
type WorkPackage struct {
	Key

	Params    map[string]param.Value
	Resources Resources
	State     State
	Attempt   int
	External  ExternalID
	Logs      LogPaths
	LastError *LastError

	SubmittedAt time.Time
	FinishedAt  time.Time
}

// New creates a work package in its initial PENDING state, attempt 0
// (attempt becomes 1 on the first submission).
func New(key Key, params map[string]param.Value, resources Resources) *WorkPackage {
	return &WorkPackage{
		Key:       key,
		Params:    params,
		Resources: resources,
		State:     Pending,
		Attempt:   0,
	}
}

// Clone returns a deep-enough copy suitable for storing independently of
// the original (the store must never share pointer identity with the
// supervisor's in-memory copy).
func (w *WorkPackage) Clone() *WorkPackage {
	clone := *w
	if w.LastError != nil {
		le := *w.LastError
		clone.LastError = &le
	}
	if w.Params != nil {
		clone.Params = make(map[string]param.Value, len(w.Params))
		for k, v := range w.Params {
			clone.Params[k] = v
		}
	}
	return &clone
}

// MarkSubmitted transitions PENDING (or a fresh retry) into SUBMITTED,
// incrementing Attempt and recording the external id assigned by the
// scheduler adapter.
func (w *WorkPackage) MarkSubmitted(id ExternalID, at time.Time) {
	w.State = Submitted
	w.Attempt++
	w.External = id
	w.SubmittedAt = at
}

func (w *WorkPackage) MarkRunning() {
	if w.State.Terminal() {
		return
	}
	w.State = Running
}

func (w *WorkPackage) MarkSucceeded(at time.Time) {
	w.State = Succeeded
	w.FinishedAt = at
}

// MarkFailedAttempt records a failed task observation. If attempt has not
// yet exhausted maxRetries, the package becomes RETRYABLE (a fresh
// external id will be assigned when it is resubmitted); otherwise it
// becomes terminally FAILED.
func (w *WorkPackage) MarkFailedAttempt(exitCode int, stderrTail string, maxRetries int, at time.Time) {
	w.LastError = &LastError{ExitCode: exitCode, StderrTail: stderrTail}
	if w.Attempt <= maxRetries {
		w.State = Retryable
		return
	}
	w.State = Failed
	w.FinishedAt = at
}

func (w *WorkPackage) MarkCancelled(at time.Time) {
	if w.State.Terminal() {
		return
	}
	w.State = Cancelled
	w.FinishedAt = at
}
