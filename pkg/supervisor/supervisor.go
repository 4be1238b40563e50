// Package supervisor is the control loop of spec.md §4.6: it walks a
// pipeline's jobs in order, expanding and partitioning each into buckets,
// submitting and polling them to completion, and advancing to the next
// job once every bucket of the current one has settled.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/basaltrun/slurmpipe/pkg/bucket"
	"github.com/basaltrun/slurmpipe/pkg/config"
	"github.com/basaltrun/slurmpipe/pkg/errors"
	"github.com/basaltrun/slurmpipe/pkg/filewatch"
	"github.com/basaltrun/slurmpipe/pkg/notify"
	"github.com/basaltrun/slurmpipe/pkg/param"
	"github.com/basaltrun/slurmpipe/pkg/scheduler"
	"github.com/basaltrun/slurmpipe/pkg/store"
	"github.com/basaltrun/slurmpipe/pkg/workpkg"
)

// Aborted is returned by Run and Retry when the abort sentinel fires or
// their context is cancelled.
type Aborted struct{}

func (Aborted) Error() string { return "aborted" }

// Counts mirrors notify.Counts for the `status`/`work` CLI commands.
type Counts = notify.Counts

// Supervisor holds everything one pipeline run needs: the sealed config,
// the scheduler adapter, the durable store, an optional audit ledger, and
// a notifier. It is constructed fresh per run (spec.md §9: no global
// mutable singleton).
type Supervisor struct {
	Pipeline *config.Pipeline
	Adapter  scheduler.Adapter
	Store    store.Store
	Ledger   store.AuditLedger // nil disables the supplementary audit trail
	Notifier notify.Notifier
	Log      *zap.SugaredLogger

	RunID  string
	RunDir string

	// DataDir resolves a record's data directory for special-case file
	// predicates. Defaults to the run directory when nil.
	DataDir bucket.DataDirFunc

	SubmissionRetries int           // default 3, per spec.md §7
	SubmissionDelay   time.Duration // default 5s
	QueryTimeout      time.Duration // default 30s
}

// New builds a Supervisor with spec.md §7's default retry/timeout policy.
func New(pipeline *config.Pipeline, adapter scheduler.Adapter, st store.Store, notifier notify.Notifier, runID, runDir string, log *zap.SugaredLogger) *Supervisor {
	return &Supervisor{
		Pipeline:          pipeline,
		Adapter:           adapter,
		Store:             st,
		Notifier:          notifier,
		Log:               log,
		RunID:             runID,
		RunDir:            runDir,
		SubmissionRetries: 3,
		SubmissionDelay:   5 * time.Second,
		QueryTimeout:      30 * time.Second,
	}
}

func (s *Supervisor) dataDir(params map[string]param.Value) string {
	if s.DataDir != nil {
		return s.DataDir(params)
	}
	return s.RunDir
}

func (s *Supervisor) warn(msg string) {
	s.Log.Warn(msg)
}

func (s *Supervisor) abortSentinelPath() string {
	return filepath.Join(s.RunDir, "ABORT")
}

// Run drives every job in the pipeline to completion in config order,
// watching for an abort sentinel the whole time.
func (s *Supervisor) Run(ctx context.Context) error {
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

	if err := s.reconcile(ctx); err != nil {
		return errors.WithClass(errors.ClassStore, err)
	}

	s.notify(func() error { return s.Notifier.PipelineStarted(runCtx) })

	for _, job := range s.Pipeline.Jobs() {
		select {
		case <-runCtx.Done():
			return s.doAbort(ctx)
		default:
		}

		if err := s.runJob(runCtx, job); err != nil {
			if runCtx.Err() != nil {
				return s.doAbort(ctx)
			}
			class := errors.Classify(err)
			if class == errors.ClassStore {
				return err
			}
			s.notify(func() error { return s.Notifier.Error(ctx, fmt.Sprintf("job %s: %v", job.Name(), err)) })
			if s.Pipeline.Properties().FailurePolicy() == config.FailurePolicyBlock {
				return err
			}
		}
	}

	if runCtx.Err() != nil {
		return s.doAbort(ctx)
	}

	s.notify(func() error { return s.Notifier.PipelineCompleted(runCtx, "all jobs settled") })
	return nil
}

// notify calls f and logs (never propagates) its error, per spec.md §4.7.
func (s *Supervisor) notify(f func() error) {
	if err := f(); err != nil {
		s.warn("notifier: " + err.Error())
	}
}

// appendLedger best-effort records a transition; failures never affect
// control flow, per spec.md §4.5/§4.6.
func (s *Supervisor) appendLedger(ctx context.Context, wp *workpkg.WorkPackage) {
	if s.Ledger == nil {
		return
	}
	if err := s.Ledger.Append(ctx, s.RunID, wp); err != nil {
		s.warn("ledger: " + err.Error())
	}
}

// reconcile runs the restart-recovery algorithm of spec.md §4.6 once at
// startup.
func (s *Supervisor) reconcile(ctx context.Context) error {
	maxRetriesFor := func(string) int { return s.Pipeline.Properties().MaxRetries() }
	return store.Reconcile(ctx, s.Store, s.Adapter, s.Pipeline.Properties().Account(), "", maxRetriesFor)
}

// doAbort cancels every currently active array job and marks their
// non-terminal packages CANCELLED, using a context independent of the one
// that just cancelled (so the cancel API calls themselves succeed).
func (s *Supervisor) doAbort(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	snapshot, err := s.Store.Snapshot(ctx)
	if err != nil {
		return errors.WithClass(errors.ClassStore, errors.Wrap(err))
	}

	active := map[scheduler.ArrayJobID]bool{}
	for _, packages := range snapshot {
		for _, wp := range packages {
			if wp.State.Terminal() || wp.External.IsZero() {
				continue
			}
			active[scheduler.ArrayJobID(wp.External.ArrayJobID)] = true
		}
	}

	for id := range active {
		if err := s.Adapter.Cancel(ctx, id); err != nil {
			s.warn(fmt.Sprintf("abort: cancel %s: %v", id, err))
		}
	}

	now := time.Now()
	for _, packages := range snapshot {
		for _, wp := range packages {
			if wp.State.Terminal() {
				continue
			}
			wp.MarkCancelled(now)
			if err := s.Store.Upsert(ctx, wp); err != nil {
				return errors.WithClass(errors.ClassStore, errors.Wrap(err))
			}
			s.appendLedger(ctx, wp)
		}
	}
	return Aborted{}
}
