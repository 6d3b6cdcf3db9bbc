package persistence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type beginFunc func(ctx context.Context) (pgx.Tx, error)

func (f beginFunc) Begin(ctx context.Context) (pgx.Tx, error) { return f(ctx) }

// txStub records every statement in order so tests can assert the scoping
// statements run before anything else.
type txStub struct {
	log       []string
	args      [][]any
	execErrAt int
	execN     int
	execErr   error
	queryErr  error
	rows      *stubRows
	commitErr error
	tag       pgconn.CommandTag
}

func (t *txStub) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *txStub) Commit(context.Context) error          { return t.commitErr }
func (t *txStub) Rollback(context.Context) error        { return nil }
func (t *txStub) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *txStub) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *txStub) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *txStub) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *txStub) Conn() *pgx.Conn { return nil }

func (t *txStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.log = append(t.log, "exec:"+sql)
	t.args = append(t.args, args)
	t.execN++
	if t.execErr != nil {
		at := t.execErrAt
		if at <= 0 {
			at = 1
		}
		if t.execN == at {
			return pgconn.CommandTag{}, t.execErr
		}
	}
	return t.tag, nil
}

func (t *txStub) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	t.log = append(t.log, "query:"+sql)
	t.args = append(t.args, args)
	if t.queryErr != nil {
		return nil, t.queryErr
	}
	if t.rows != nil {
		return t.rows, nil
	}
	return &stubRows{}, nil
}

func (t *txStub) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	rows, err := t.Query(ctx, sql, args...)
	if err != nil {
		return stubRow{err: err}
	}
	if !rows.Next() {
		return stubRow{err: pgx.ErrNoRows}
	}
	values, err := rows.Values()
	if err != nil {
		return stubRow{err: err}
	}
	return stubRow{vals: values}
}

func commandTag(s string) pgconn.CommandTag { return pgconn.NewCommandTag(s) }

type stubRows struct {
	fields  []string
	data    [][]any
	idx     int
	rowsErr error
}

func (r *stubRows) Close()     {}
func (r *stubRows) Err() error { return r.rowsErr }
func (r *stubRows) CommandTag() pgconn.CommandTag {
	return pgconn.CommandTag{}
}
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.fields))
	for i, f := range r.fields {
		out[i] = pgconn.FieldDescription{Name: f}
	}
	return out
}
func (r *stubRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}
func (r *stubRows) Scan(dest ...any) error { return errors.New("scan not supported") }
func (r *stubRows) Values() ([]any, error) {
	return r.data[r.idx-1], nil
}
func (r *stubRows) RawValues() [][]byte { return nil }
func (r *stubRows) Conn() *pgx.Conn     { return nil }

type stubRow struct {
	vals []any
	err  error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		if i >= len(r.vals) || r.vals[i] == nil {
			continue
		}
		switch d := dest[i].(type) {
		case *string:
			*d = r.vals[i].(string)
		case *int:
			*d = r.vals[i].(int)
		case *int64:
			*d = r.vals[i].(int64)
		case *any:
			*d = r.vals[i]
		}
	}
	return nil
}
