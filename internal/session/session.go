// Package session scopes pooled connections to a caller identity. The record
// store scopes per transaction; this package covers multi-statement read
// paths like the query engine, where the statements share one connection and
// the session variables must outlive a single transaction.
package session

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zekoder/zecore/modules/record/domain/types"
)

// Conn is the slice of a pooled connection the session needs.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Release()
}

// Acquirer hands out pooled connections.
type Acquirer interface {
	Acquire(ctx context.Context) (Conn, error)
}

// PoolAcquirer adapts a pgxpool.Pool.
type PoolAcquirer struct {
	Pool *pgxpool.Pool
}

func (p PoolAcquirer) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Session is one connection carrying the caller's identity in the
// zekoder.id and zekoder.roles session variables. Close clears the variables
// before the connection goes back to the pool, so identity never leaks
// between callers.
type Session struct {
	conn   Conn
	closed bool
}

// Open acquires a connection and sets the identity variables
// connection-wide. They are set before any other statement can run on the
// connection.
func Open(ctx context.Context, acq Acquirer, identity types.Identity) (*Session, error) {
	conn, err := acq.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: acquire: %w", err)
	}
	if _, err := conn.Exec(ctx, "SELECT set_config('zekoder.id', $1, false);", identity.UserID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("session: set identity: %w", err)
	}
	if _, err := conn.Exec(ctx, "SELECT set_config('zekoder.roles', $1, false);", identity.RolesValue()); err != nil {
		clearVars(ctx, conn)
		conn.Release()
		return nil, fmt.Errorf("session: set roles: %w", err)
	}
	return &Session{conn: conn}, nil
}

// Query runs one read statement on the scoped connection.
func (s *Session) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if s.closed {
		return nil, fmt.Errorf("session: closed")
	}
	return s.conn.Query(ctx, sql, args...)
}

// Close clears the identity variables and releases the connection. Safe to
// call more than once.
func (s *Session) Close(ctx context.Context) {
	if s.closed {
		return
	}
	s.closed = true
	clearVars(ctx, s.conn)
	s.conn.Release()
}

func clearVars(ctx context.Context, conn Conn) {
	if _, err := conn.Exec(ctx, "SELECT set_config('zekoder.id', '', false), set_config('zekoder.roles', '', false);"); err != nil {
		// best effort, the pool will still reuse the connection
		log.Printf("session clear vars err=%v", err)
	}
}
