package supervisor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/basaltrun/slurmpipe/pkg/bucket"
	"github.com/basaltrun/slurmpipe/pkg/config"
	"github.com/basaltrun/slurmpipe/pkg/errors"
	"github.com/basaltrun/slurmpipe/pkg/loop"
	"github.com/basaltrun/slurmpipe/pkg/param"
	"github.com/basaltrun/slurmpipe/pkg/scheduler"
	"github.com/basaltrun/slurmpipe/pkg/workpkg"
)

// runningBucket tracks one submitted array job's outstanding tasks and,
// once every task has resolved, the subset awaiting a retry resubmission.
type runningBucket struct {
	def         bucket.Bucket
	id          scheduler.ArrayJobID
	outstanding map[int]*workpkg.WorkPackage
	retryable   []*workpkg.WorkPackage
	retryAt     time.Time
	done        bool
}

func (rb *runningBucket) awaitingRetry() bool { return !rb.retryAt.IsZero() }

func allSettled(buckets []*runningBucket) bool {
	for _, rb := range buckets {
		if !rb.done {
			return false
		}
	}
	return true
}

// pollJob drives every bucket's array job to a terminal state, per
// spec.md §4.6 step 3: query each outstanding bucket, transition
// packages, and regroup RETRYABLE packages into a fresh array once the
// whole bucket has settled and its backoff delay has elapsed.
func (s *Supervisor) pollJob(ctx context.Context, job *config.Job, buckets []*runningBucket) error {
	if len(buckets) == 0 {
		return nil
	}
	pollInterval := s.Pipeline.Properties().PollInterval()

	_, err := loop.Start(ctx, buckets, func(ctx context.Context, buckets []*runningBucket) ([]*runningBucket, loop.Next) {
		if allSettled(buckets) {
			return buckets, loop.Break(nil)
		}

		promises := make([]<-chan asyncResult[map[int]scheduler.TaskState], len(buckets))
		for i, rb := range buckets {
			if rb.done || rb.awaitingRetry() || len(rb.outstanding) == 0 {
				continue
			}
			id := rb.id
			promises[i] = runAsync(ctx, staticBackoff(0), func() (map[int]scheduler.TaskState, error) {
				queryCtx, cancel := context.WithTimeout(ctx, s.QueryTimeout)
				defer cancel()
				return s.Adapter.Query(queryCtx, id)
			})
		}

		for i, rb := range buckets {
			if promises[i] == nil {
				continue
			}
			result := <-promises[i]
			if result.Err != nil {
				// transient query failure: "no information", never a failure.
				s.warn(fmt.Sprintf("query %s: %v (treated as no information)", rb.id, result.Err))
				continue
			}
			s.applyTaskStates(ctx, rb, result.Value)
		}

		for _, rb := range buckets {
			if rb.awaitingRetry() && !time.Now().Before(rb.retryAt) {
				if err := s.resubmitRetries(ctx, job, rb); err != nil {
					return buckets, loop.Break(err)
				}
			}
		}

		return buckets, loop.Continue(pollInterval)
	})
	return err
}

// applyTaskStates folds one round of Query results into the store,
// implementing the per-package transition table of spec.md §4.6.
func (s *Supervisor) applyTaskStates(ctx context.Context, rb *runningBucket, states map[int]scheduler.TaskState) {
	now := time.Now()
	for taskID, wp := range rb.outstanding {
		st, ok := states[taskID]
		if !ok {
			continue // no information this tick
		}

		switch st.Status {
		case scheduler.TaskPending:
			continue
		case scheduler.TaskRunning:
			wp.MarkRunning()
			if err := s.Store.Upsert(ctx, wp); err != nil {
				s.warn("store: " + err.Error())
			}
		case scheduler.TaskSucceeded:
			wp.MarkSucceeded(now)
			if err := s.Store.Upsert(ctx, wp); err != nil {
				s.warn("store: " + err.Error())
			}
			s.appendLedger(ctx, wp)
			delete(rb.outstanding, taskID)
		case scheduler.TaskFailed:
			tail := readStderrTail(wp.Logs.Stderr)
			wp.MarkFailedAttempt(st.ExitCode, tail, s.Pipeline.Properties().MaxRetries(), now)
			if err := s.Store.Upsert(ctx, wp); err != nil {
				s.warn("store: " + err.Error())
			}
			s.appendLedger(ctx, wp)
			delete(rb.outstanding, taskID)
			if wp.State == workpkg.Retryable {
				rb.retryable = append(rb.retryable, wp)
			}
		}
	}

	if len(rb.outstanding) > 0 {
		return
	}
	if len(rb.retryable) == 0 {
		rb.done = true
		return
	}

	attempt := rb.retryable[0].Attempt
	factor := s.Pipeline.Properties().ExpBackoffFactor()
	delay := time.Duration(float64(s.Pipeline.Properties().PollInterval()) * math.Pow(factor, float64(attempt-1)))
	rb.retryAt = now.Add(delay)
}

// resubmitRetries collects a settled bucket's RETRYABLE packages into a
// fresh array job sharing the bucket's resource allocation, per spec.md
// §4.6 step 3's retry-regrouping rule.
func (s *Supervisor) resubmitRetries(ctx context.Context, job *config.Job, rb *runningBucket) error {
	retrying := rb.retryable
	attempt := retrying[0].Attempt
	bucketName := fmt.Sprintf("%s.retry%d", rb.def.Name, attempt)

	records := make([]map[string]param.Value, len(retrying))
	for i, wp := range retrying {
		records[i] = wp.Params
	}
	workFile, err := materializeWorkFile(s.RunDir, bucketName, records)
	if err != nil {
		return errors.WithClass(errors.ClassStore, err)
	}

	req := s.buildSubmitRequest(job, bucketName, scheduler.SubmitRequest{
		CPUs: rb.def.Resources.CPUs, Time: rb.def.Resources.Time, Memory: rb.def.Resources.Memory,
	}, workFile, len(retrying))

	id, err := s.submitWithRetry(ctx, req)
	if err != nil {
		s.failBucket(ctx, retrying, err)
		rb.retryable = nil
		rb.retryAt = time.Time{}
		rb.done = len(rb.outstanding) == 0
		return nil
	}

	now := time.Now()
	outstanding := make(map[int]*workpkg.WorkPackage, len(retrying))
	for i, wp := range retrying {
		wp.MarkSubmitted(workpkg.ExternalID{ArrayJobID: string(id), TaskID: i}, now)
		wp.Logs = logPaths(job, id, i)
		if err := s.Store.Upsert(ctx, wp); err != nil {
			return errors.WithClass(errors.ClassStore, errors.Wrap(err))
		}
		s.appendLedger(ctx, wp)
		outstanding[i] = wp
	}

	rb.id = id
	rb.outstanding = outstanding
	rb.retryable = nil
	rb.retryAt = time.Time{}
	return nil
}
