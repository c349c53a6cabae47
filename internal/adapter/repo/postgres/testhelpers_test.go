package postgres_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// rowStub implements pgx.Row
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// execCall captures one Exec invocation.
type execCall struct {
	sql  string
	args []any
}

// poolStub implements postgres.PgxPool for tests.
type poolStub struct {
	mu      sync.Mutex
	execs   []execCall
	execErr error
	tag     pgconn.CommandTag
	row     rowStub
	rows    []rowStub
	rowsErr error
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.execs = append(p.execs, execCall{sql: sql, args: args})
	return p.tag, p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	if p.row.scan == nil {
		return rowStub{scan: func(_ ...any) error { return errors.New("no row configured") }}
	}
	return p.row
}

func (p *poolStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if p.rowsErr != nil {
		return nil, p.rowsErr
	}
	return &rowsStub{rows: p.rows, pos: -1}, nil
}

func (p *poolStub) lastExec() execCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.execs) == 0 {
		return execCall{}
	}
	return p.execs[len(p.execs)-1]
}

// rowsStub iterates over canned rows.
type rowsStub struct {
	rows []rowStub
	pos  int
}

func (r *rowsStub) Close()                                       {}
func (r *rowsStub) Err() error                                   { return nil }
func (r *rowsStub) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rowsStub) Values() ([]any, error)                       { return nil, nil }
func (r *rowsStub) RawValues() [][]byte                          { return nil }
func (r *rowsStub) Conn() *pgx.Conn                              { return nil }

func (r *rowsStub) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *rowsStub) Scan(dest ...any) error { return r.rows[r.pos].Scan(dest...) }

// sessionRow fills the column order used by the session repo.
func sessionRow(id, status string, source, report []byte) rowStub {
	return rowStub{scan: func(dest ...any) error {
		created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		*(dest[0].(*string)) = id
		*(dest[1].(*string)) = status
		*(dest[2].(*[]byte)) = source
		*(dest[3].(*string)) = "Backend engineer"
		*(dest[4].(*[]string)) = []string{"Go", "SQL"}
		*(dest[5].(*string)) = "tr-1"
		*(dest[6].(*[]byte)) = report
		*(dest[7].(*string)) = ""
		*(dest[8].(*time.Time)) = created
		*(dest[9].(*time.Time)) = created.Add(time.Minute)
		if report != nil {
			done := created.Add(2 * time.Minute)
			*(dest[10].(**time.Time)) = &done
		}
		return nil
	}}
}
