// Package store defines the durable, crash-tolerant mapping from
// (job_name, index) to work-package state that the supervisor depends on
// to survive its own restart, per spec.md §4.5.
package store

import (
	"context"

	"github.com/basaltrun/slurmpipe/pkg/scheduler"
	"github.com/basaltrun/slurmpipe/pkg/workpkg"
)

// Store is the authoritative work-package store's contract.
type Store interface {
	// Upsert writes wp through to durable storage. Implementations must
	// fsync (or equivalent) on state transitions crossing a submission or
	// terminalization boundary.
	Upsert(ctx context.Context, wp *workpkg.WorkPackage) error

	// Get returns every package belonging to jobName, ordered by index.
	Get(ctx context.Context, jobName string) ([]*workpkg.WorkPackage, error)

	// ByExternal reverse-looks-up the package assigned a given external
	// id, for poll reconciliation.
	ByExternal(ctx context.Context, id workpkg.ExternalID) (*workpkg.WorkPackage, error)

	// Snapshot returns a consistent read of the entire store, for status
	// reporting.
	Snapshot(ctx context.Context) (map[string][]*workpkg.WorkPackage, error)
}

// AuditLedger is the supplementary, non-authoritative sink the supervisor
// best-effort appends state transitions to, per SPEC_FULL.md §4.5. Its
// failures are logged and dropped exactly like Notifier failures — it is
// never on the critical path for correctness.
type AuditLedger interface {
	Append(ctx context.Context, runID string, wp *workpkg.WorkPackage) error
}

// Reconcile is invoked once at startup when the store contains
// non-terminal packages: it asks the adapter which array jobs are still
// active, records a failed attempt for every SUBMITTED/RUNNING package
// whose array job is not among them, and writes that package back to the
// store before the poll loop resumes, per
// spec.md §4.6's restart-recovery algorithm. It lives here (not in
// supervisor) because it operates purely in terms of Store+Adapter.
func Reconcile(ctx context.Context, s Store, adapter scheduler.Adapter, account, namePrefix string, maxRetriesFor func(jobName string) int) error {
	active, err := adapter.ListActive(ctx, account, namePrefix)
	if err != nil {
		return err
	}
	knownActive := make(map[scheduler.ArrayJobID]bool, len(active))
	for _, id := range active {
		knownActive[id] = true
	}

	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}

	for _, packages := range snapshot {
		for _, wp := range packages {
			if wp.State.Terminal() || wp.State == workpkg.Pending {
				continue
			}
			if !knownActive[scheduler.ArrayJobID(wp.External.ArrayJobID)] {
				// scheduler forgot this array job: treat as a synthetic
				// failure subject to normal retry policy, per spec.md §4.6.
				wp.MarkFailedAttempt(-1, "external job unknown to scheduler after restart", maxRetriesFor(wp.JobName), wp.SubmittedAt)
				if err := s.Upsert(ctx, wp); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
