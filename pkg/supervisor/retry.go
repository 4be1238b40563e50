package supervisor

import (
	"context"
	"os"

	"github.com/basaltrun/slurmpipe/pkg/config"
	"github.com/basaltrun/slurmpipe/pkg/errors"
	"github.com/basaltrun/slurmpipe/pkg/filewatch"
	"github.com/basaltrun/slurmpipe/pkg/workpkg"
)

// Retry implements the `retry` CLI verb of spec.md §6: it drives the
// existing store's already-FAILED packages back through submission,
// leaving every PENDING/SUCCEEDED/CANCELLED package untouched. Packages
// are grouped by their stored Resources, which is exactly what
// bucket.Partition assigned them at original expansion time — so a
// retry never recomputes special-case predicates, per SPEC_FULL.md §9's
// "retry preserves bucket assignment" resolution.
func (s *Supervisor) Retry(ctx context.Context) error {
	if err := os.MkdirAll(s.RunDir, 0o755); err != nil {
		return errors.WithClass(errors.ClassStore, errors.Wrap(err))
	}
	sentinel := s.abortSentinelPath()
	f, err := os.OpenFile(sentinel, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return errors.WithClass(errors.ClassStore, errors.Wrap(err))
	}
	f.Close()

	runCtx, cancel, err := filewatch.UntilModifyContext(ctx, sentinel)
	if err != nil {
		return errors.Wrap(err)
	}
	defer cancel()

	for _, job := range s.Pipeline.Jobs() {
		if runCtx.Err() != nil {
			return s.doAbort(ctx)
		}

		packages, err := s.Store.Get(runCtx, job.Name())
		if err != nil {
			return errors.WithClass(errors.ClassStore, errors.Wrap(err))
		}

		failed := make([]*workpkg.WorkPackage, 0, len(packages))
		for _, wp := range packages {
			if wp.State == workpkg.Failed {
				failed = append(failed, wp)
			}
		}
		if len(failed) == 0 {
			continue
		}

		s.notify(func() error { return s.Notifier.JobStarted(runCtx, job.Name()) })

		running, err := s.resubmitFailedByResources(runCtx, job, failed)
		if err != nil {
			return err
		}
		if err := s.pollJob(runCtx, job, running); err != nil {
			return err
		}

		counts := s.jobCounts(runCtx, job.Name())
		s.notify(func() error { return s.Notifier.JobCompleted(runCtx, job.Name(), counts) })
	}
	return nil
}

// resubmitFailedByResources regroups packages sharing an identical
// Resources allocation into one fresh array submission each, resetting
// them to SUBMITTED the same way a fresh bucket submission would.
func (s *Supervisor) resubmitFailedByResources(ctx context.Context, job *config.Job, failed []*workpkg.WorkPackage) ([]*runningBucket, error) {
	buckets := groupByResources(job.Name()+".retry-manual", failed)
	return s.submitBuckets(ctx, job, buckets), nil
}
