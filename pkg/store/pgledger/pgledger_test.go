package pgledger_test

import (
	"context"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	xe "github.com/basaltrun/slurmpipe/pkg/errors"
	"github.com/basaltrun/slurmpipe/pkg/pgpool"
	"github.com/basaltrun/slurmpipe/pkg/store/pgledger"
	"github.com/basaltrun/slurmpipe/pkg/workpkg"
)

// fakeConn records every Exec call it receives; it never talks to a real
// database, letting the ledger's SQL wiring be tested without a Postgres
// instance running.
type fakeConn struct {
	execs []execCall
	err   error
}

type execCall struct {
	sql  string
	args []interface{}
}

func (c *fakeConn) Begin(ctx context.Context) (pgpool.Tx, error) { return nil, nil }
func (c *fakeConn) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgpool.Tx, error) {
	return nil, nil
}
func (c *fakeConn) Release() {}
func (c *fakeConn) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, execCall{sql: sql, args: args})
	return nil, c.err
}
func (c *fakeConn) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, nil
}
func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}
func (c *fakeConn) Ping(ctx context.Context) error { return nil }
func (c *fakeConn) Conn() *pgx.Conn                { return nil }

type fakePool struct {
	conn *fakeConn
}

func (p *fakePool) Begin(ctx context.Context) (pgpool.Tx, error) { return nil, nil }
func (p *fakePool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgpool.Tx, error) {
	return nil, nil
}
func (p *fakePool) Acquire(ctx context.Context) (pgpool.Conn, error) { return p.conn, nil }
func (p *fakePool) AcquireAllIdle(ctx context.Context) []pgpool.Conn {
	return []pgpool.Conn{p.conn}
}
func (p *fakePool) Config() *pgxpool.Config    { return nil }
func (p *fakePool) Ping(ctx context.Context) error { return nil }

var _ pgpool.Pool = &fakePool{}
var _ pgpool.Conn = &fakeConn{}

func TestAppendInsertsOneRowPerTransition(t *testing.T) {
	conn := &fakeConn{}
	ledger := pgledger.New(&fakePool{conn: conn})

	wp := workpkg.New(workpkg.Key{JobName: "convert", Index: 5}, nil, workpkg.Resources{CPUs: 1})
	wp.MarkSubmitted(workpkg.ExternalID{ArrayJobID: "9", TaskID: 5}, wp.SubmittedAt)

	if err := ledger.Append(context.Background(), "run-1", wp); err != nil {
		t.Fatalf("append: %v", err)
	}

	if len(conn.execs) != 1 {
		t.Fatalf("expected 1 exec call, got %d", len(conn.execs))
	}
	args := conn.execs[0].args
	if args[0] != "run-1" || args[1] != "convert" || args[2] != 5 {
		t.Errorf("unexpected args: %+v", args)
	}
}

func TestAppendFailureIsClassifiedAsStore(t *testing.T) {
	conn := &fakeConn{err: context.DeadlineExceeded}
	ledger := pgledger.New(&fakePool{conn: conn})

	wp := workpkg.New(workpkg.Key{JobName: "convert", Index: 0}, nil, workpkg.Resources{CPUs: 1})
	err := ledger.Append(context.Background(), "run-1", wp)
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := xe.Classify(err); got != xe.ClassStore {
		t.Errorf("got class %s, want %s", got, xe.ClassStore)
	}
}
