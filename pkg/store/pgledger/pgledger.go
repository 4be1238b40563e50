// Package pgledger is the supplementary, non-authoritative audit trail
// backing store.AuditLedger: every work-package state transition observed
// by the supervisor is appended to a Postgres table for downstream
// reporting and historical queries, but nothing in the control loop ever
// reads it back — fsstore alone is authoritative, per SPEC_FULL.md §4.5.
package pgledger

import (
	"context"
	"encoding/json"

	"github.com/basaltrun/slurmpipe/pkg/errors"
	"github.com/basaltrun/slurmpipe/pkg/pgpool"
	"github.com/basaltrun/slurmpipe/pkg/workpkg"
)

const createTableDDL = `
CREATE TABLE IF NOT EXISTS work_package_ledger (
	id           BIGSERIAL PRIMARY KEY,
	run_id       TEXT        NOT NULL,
	job_name     TEXT        NOT NULL,
	idx          INTEGER     NOT NULL,
	state        TEXT        NOT NULL,
	attempt      INTEGER     NOT NULL,
	array_job_id TEXT        NOT NULL DEFAULT '',
	task_id      INTEGER     NOT NULL DEFAULT 0,
	last_error   JSONB,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertDML = `
INSERT INTO work_package_ledger
	(run_id, job_name, idx, state, attempt, array_job_id, task_id, last_error)
VALUES
	($1, $2, $3, $4, $5, $6, $7, $8)`

// Ledger is a store.AuditLedger backed by a Postgres table, reached
// through pgpool so the concrete pgx types never leak past this package.
type Ledger struct {
	pool pgpool.Pool
}

func New(pool pgpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// EnsureSchema creates the ledger table if it does not already exist. It
// is meant to be called once at startup, not on every Append.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, createTableDDL); err != nil {
		return errors.Wrap(err)
	}
	return nil
}

func (l *Ledger) Append(ctx context.Context, runID string, wp *workpkg.WorkPackage) error {
	var lastError []byte
	if wp.LastError != nil {
		encoded, err := json.Marshal(wp.LastError)
		if err != nil {
			return errors.Wrap(err)
		}
		lastError = encoded
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, insertDML,
		runID, wp.JobName, wp.Index, string(wp.State), wp.Attempt,
		wp.External.ArrayJobID, wp.External.TaskID, lastError,
	)
	if err != nil {
		return errors.WithClass(errors.ClassStore, errors.Wrap(err))
	}
	return nil
}
