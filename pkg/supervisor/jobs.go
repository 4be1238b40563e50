package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/basaltrun/slurmpipe/pkg/bucket"
	"github.com/basaltrun/slurmpipe/pkg/config"
	"github.com/basaltrun/slurmpipe/pkg/errors"
	"github.com/basaltrun/slurmpipe/pkg/notify"
	"github.com/basaltrun/slurmpipe/pkg/param"
	"github.com/basaltrun/slurmpipe/pkg/scheduler"
	"github.com/basaltrun/slurmpipe/pkg/workpkg"
)

// runJob implements one iteration of spec.md §4.6's per-job algorithm. A
// job the store has never seen is expanded and submitted from scratch by
// startJob; a job the store already holds packages for is picked back up
// by resumeJob instead, so restarting with no scheduler state change
// never re-expands params or resubmits anything already SUBMITTED or
// RUNNING.
func (s *Supervisor) runJob(ctx context.Context, job *config.Job) error {
	s.notify(func() error { return s.Notifier.JobStarted(ctx, job.Name()) })

	existing, err := s.Store.Get(ctx, job.Name())
	if err != nil {
		return errors.WithClass(errors.ClassStore, errors.Wrap(err))
	}

	var running []*runningBucket
	if len(existing) == 0 {
		running, err = s.startJob(ctx, job)
	} else {
		running, err = s.resumeJob(ctx, job, existing)
	}
	if err != nil {
		return err
	}

	if err := s.pollJob(ctx, job, running); err != nil {
		return err
	}

	counts := s.jobCounts(ctx, job.Name())
	s.notify(func() error { return s.Notifier.JobCompleted(ctx, job.Name(), counts) })
	return nil
}

// startJob expands a job's parameter files into work packages, partitions
// them into buckets, records them PENDING, and submits every bucket. It
// only ever runs the first time a job is seen; a later restart finds
// existing packages in the store and takes the resumeJob path instead.
func (s *Supervisor) startJob(ctx context.Context, job *config.Job) ([]*runningBucket, error) {
	records, err := param.ExpandAll(job.ParamFiles())
	if err != nil {
		return nil, errors.WithClass(errors.ClassExpansion, errors.Wrap(err))
	}

	packages := make([]*workpkg.WorkPackage, len(records))
	for i, rec := range records {
		key := workpkg.Key{JobName: job.Name(), Index: i}
		packages[i] = workpkg.New(key, rec.Params, workpkg.Resources(job.Resources()))
	}

	cases := make([]bucket.SpecialCase, len(job.SpecialCases()))
	for i, sc := range job.SpecialCases() {
		cases[i] = bucket.SpecialCase{
			Name:      sc.Name(),
			Files:     sc.Files(),
			Resources: workpkg.Resources(sc.Resources()),
		}
	}

	buckets := bucket.Partition(job.Name(), workpkg.Resources(job.Resources()), cases, packages, s.dataDir, bucket.OSStat, s.warn)

	for _, b := range buckets {
		for _, wp := range b.Packages {
			if err := s.Store.Upsert(ctx, wp); err != nil {
				return nil, errors.WithClass(errors.ClassStore, errors.Wrap(err))
			}
			s.appendLedger(ctx, wp)
		}
	}

	return s.submitBuckets(ctx, job, buckets), nil
}

// resumeJob picks a restarted job back up from whatever the store already
// holds: SUBMITTED/RUNNING packages are regrouped by their existing array
// job id with no resubmission, so the poll loop simply resumes querying
// them (Reconcile has already run by the time runJob is called, so any
// package still SUBMITTED/RUNNING here is one the scheduler confirmed is
// still active); PENDING/RETRYABLE packages (never submitted, or demoted
// by Reconcile after a restart found the scheduler no longer tracking
// them) are regrouped by Resources and submitted fresh, the same way
// retry does for FAILED packages. Terminal packages are dropped from both
// groups, so a job that fully finished in a prior run yields no running
// buckets at all, and pollJob's empty-buckets short-circuit turns the
// restart into a no-op.
func (s *Supervisor) resumeJob(ctx context.Context, job *config.Job, existing []*workpkg.WorkPackage) ([]*runningBucket, error) {
	var active []*workpkg.WorkPackage
	var pending []*workpkg.WorkPackage

	for _, wp := range existing {
		switch wp.State {
		case workpkg.Submitted, workpkg.Running:
			active = append(active, wp)
		case workpkg.Pending, workpkg.Retryable:
			pending = append(pending, wp)
		}
	}

	running := make([]*runningBucket, 0, len(active)+len(pending))

	byArrayJob := make(map[scheduler.ArrayJobID][]*workpkg.WorkPackage)
	var order []scheduler.ArrayJobID
	for _, wp := range active {
		id := scheduler.ArrayJobID(wp.External.ArrayJobID)
		if _, ok := byArrayJob[id]; !ok {
			order = append(order, id)
		}
		byArrayJob[id] = append(byArrayJob[id], wp)
	}
	for _, id := range order {
		members := byArrayJob[id]
		outstanding := make(map[int]*workpkg.WorkPackage, len(members))
		for _, wp := range members {
			outstanding[wp.External.TaskID] = wp
		}
		running = append(running, &runningBucket{
			def:         bucket.Bucket{Name: job.Name(), Resources: members[0].Resources},
			id:          id,
			outstanding: outstanding,
		})
	}

	if len(pending) > 0 {
		buckets := groupByResources(job.Name()+".resume", pending)
		running = append(running, s.submitBuckets(ctx, job, buckets)...)
	}

	return running, nil
}

// groupByResources regroups packages sharing an identical Resources
// allocation into buckets named "<prefix><n>". Both resumeJob and Retry
// need this: neither recomputes special-case predicates, they just
// resubmit whatever Resources value Partition already assigned.
func groupByResources(prefix string, packages []*workpkg.WorkPackage) []bucket.Bucket {
	type group struct {
		resources workpkg.Resources
		packages  []*workpkg.WorkPackage
	}
	var groups []*group
	for _, wp := range packages {
		var g *group
		for _, existing := range groups {
			if existing.resources == wp.Resources {
				g = existing
				break
			}
		}
		if g == nil {
			g = &group{resources: wp.Resources}
			groups = append(groups, g)
		}
		g.packages = append(g.packages, wp)
	}

	buckets := make([]bucket.Bucket, len(groups))
	for i, g := range groups {
		buckets[i] = bucket.Bucket{
			Name:      fmt.Sprintf("%s%d", prefix, i),
			Resources: g.resources,
			Packages:  g.packages,
		}
	}
	return buckets
}

// submitBucket materializes a bucket's work file, submits it, and marks
// every member package SUBMITTED.
func (s *Supervisor) submitBucket(ctx context.Context, job *config.Job, b bucket.Bucket) (*runningBucket, error) {
	records := make([]map[string]param.Value, len(b.Packages))
	for i, wp := range b.Packages {
		records[i] = wp.Params
	}
	workFile, err := materializeWorkFile(s.RunDir, b.Name, records)
	if err != nil {
		return nil, errors.WithClass(errors.ClassStore, err)
	}

	req := s.buildSubmitRequest(job, b.Name, scheduler.SubmitRequest{
		CPUs: b.Resources.CPUs, Time: b.Resources.Time, Memory: b.Resources.Memory,
	}, workFile, len(b.Packages))

	id, err := s.submitWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	outstanding := make(map[int]*workpkg.WorkPackage, len(b.Packages))
	for i, wp := range b.Packages {
		wp.MarkSubmitted(workpkg.ExternalID{ArrayJobID: string(id), TaskID: i}, now)
		wp.Logs = logPaths(job, id, i)
		if err := s.Store.Upsert(ctx, wp); err != nil {
			return nil, errors.WithClass(errors.ClassStore, errors.Wrap(err))
		}
		s.appendLedger(ctx, wp)
		outstanding[i] = wp
	}

	return &runningBucket{def: b, id: id, outstanding: outstanding}, nil
}

// submitBuckets submits every bucket, sending any bucket whose submission
// is rejected after all retries to failBucket instead of aborting the
// rest.
func (s *Supervisor) submitBuckets(ctx context.Context, job *config.Job, buckets []bucket.Bucket) []*runningBucket {
	running := make([]*runningBucket, 0, len(buckets))
	for _, b := range buckets {
		rb, err := s.submitBucket(ctx, job, b)
		if err != nil {
			s.failBucket(ctx, b.Packages, err)
			continue
		}
		running = append(running, rb)
	}
	return running
}

// failBucket marks every package in a bucket whose submission was
// rejected after all retries as terminally FAILED (maxRetries=-1 forces
// MarkFailedAttempt past its retry threshold regardless of attempt count).
func (s *Supervisor) failBucket(ctx context.Context, packages []*workpkg.WorkPackage, cause error) {
	now := time.Now()
	for _, wp := range packages {
		wp.MarkFailedAttempt(-1, cause.Error(), -1, now)
		if err := s.Store.Upsert(ctx, wp); err != nil {
			s.warn("store: " + err.Error())
			continue
		}
		s.appendLedger(ctx, wp)
	}
}

func (s *Supervisor) jobCounts(ctx context.Context, jobName string) notify.Counts {
	packages, err := s.Store.Get(ctx, jobName)
	if err != nil {
		s.warn("store: " + err.Error())
		return notify.Counts{}
	}
	var counts notify.Counts
	for _, wp := range packages {
		switch wp.State {
		case workpkg.Pending:
			counts.Pending++
		case workpkg.Submitted, workpkg.Running, workpkg.Retryable:
			counts.Running++
		case workpkg.Succeeded:
			counts.Succeeded++
		case workpkg.Failed:
			counts.Failed++
		case workpkg.Cancelled:
			counts.Cancelled++
		}
	}
	return counts
}
