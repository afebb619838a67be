package guard

import (
	"context"
	"database/sql/driver"
)

// NewConnector wraps a driver-level connector so that every connection
// acquisition, and every statement executed on connections it produces, is
// checked against g's current scope for the given alias. The check runs
// before the inner driver is invoked, so a blocked access never opens a
// network connection or creates a row.
//
// Connections and prepared statements are pooled by database/sql and can
// outlive the scope they were acquired under, which is why the conn and stmt
// wrappers re-check on every operation rather than trusting the connect-time
// check.
func NewConnector(g *Guard, alias string, inner driver.Connector) driver.Connector {
	return &connector{guard: g, alias: alias, inner: inner}
}

type connector struct {
	guard *Guard
	alias string
	inner driver.Connector
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	if err := c.guard.check(c.alias); err != nil {
		return nil, err
	}
	conn, err := c.inner.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &guardedConn{guard: c.guard, alias: c.alias, inner: conn}, nil
}

func (c *connector) Driver() driver.Driver {
	return c.inner.Driver()
}

// guardedConn gates every statement-producing operation on the underlying
// connection. Close, rollback, and session-reset paths stay ungated: teardown
// must always be able to release resources, even after disarm.
type guardedConn struct {
	guard *Guard
	alias string
	inner driver.Conn
}

var (
	_ driver.Conn               = (*guardedConn)(nil)
	_ driver.ConnPrepareContext = (*guardedConn)(nil)
	_ driver.ConnBeginTx        = (*guardedConn)(nil)
	_ driver.ExecerContext      = (*guardedConn)(nil)
	_ driver.QueryerContext     = (*guardedConn)(nil)
	_ driver.Pinger             = (*guardedConn)(nil)
	_ driver.SessionResetter    = (*guardedConn)(nil)
	_ driver.Validator          = (*guardedConn)(nil)
	_ driver.NamedValueChecker  = (*guardedConn)(nil)
)

func (c *guardedConn) Prepare(query string) (driver.Stmt, error) {
	if err := c.guard.check(c.alias); err != nil {
		return nil, err
	}
	stmt, err := c.inner.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &guardedStmt{guard: c.guard, alias: c.alias, inner: stmt}, nil
}

func (c *guardedConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if err := c.guard.check(c.alias); err != nil {
		return nil, err
	}
	if pc, ok := c.inner.(driver.ConnPrepareContext); ok {
		stmt, err := pc.PrepareContext(ctx, query)
		if err != nil {
			return nil, err
		}
		return &guardedStmt{guard: c.guard, alias: c.alias, inner: stmt}, nil
	}
	return c.Prepare(query)
}

func (c *guardedConn) Close() error {
	return c.inner.Close()
}

func (c *guardedConn) Begin() (driver.Tx, error) {
	if err := c.guard.check(c.alias); err != nil {
		return nil, err
	}
	return c.inner.Begin() //nolint:staticcheck // legacy fallback path
}

func (c *guardedConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if err := c.guard.check(c.alias); err != nil {
		return nil, err
	}
	if bt, ok := c.inner.(driver.ConnBeginTx); ok {
		return bt.BeginTx(ctx, opts)
	}
	return c.inner.Begin() //nolint:staticcheck // legacy fallback path
}

func (c *guardedConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.guard.check(c.alias); err != nil {
		return nil, err
	}
	if ec, ok := c.inner.(driver.ExecerContext); ok {
		return ec.ExecContext(ctx, query, args)
	}
	// Let database/sql fall back to the (gated) prepare path.
	return nil, driver.ErrSkip
}

func (c *guardedConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := c.guard.check(c.alias); err != nil {
		return nil, err
	}
	if qc, ok := c.inner.(driver.QueryerContext); ok {
		return qc.QueryContext(ctx, query, args)
	}
	return nil, driver.ErrSkip
}

func (c *guardedConn) Ping(ctx context.Context) error {
	if err := c.guard.check(c.alias); err != nil {
		return err
	}
	if p, ok := c.inner.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *guardedConn) ResetSession(ctx context.Context) error {
	if r, ok := c.inner.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (c *guardedConn) IsValid() bool {
	if v, ok := c.inner.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

func (c *guardedConn) CheckNamedValue(nv *driver.NamedValue) error {
	if nvc, ok := c.inner.(driver.NamedValueChecker); ok {
		return nvc.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

// guardedStmt re-checks on execution because database/sql caches prepared
// statements and may reuse one after the scope that prepared it is gone.
type guardedStmt struct {
	guard *Guard
	alias string
	inner driver.Stmt
}

var (
	_ driver.Stmt             = (*guardedStmt)(nil)
	_ driver.StmtExecContext  = (*guardedStmt)(nil)
	_ driver.StmtQueryContext = (*guardedStmt)(nil)
)

func (s *guardedStmt) Close() error {
	return s.inner.Close()
}

func (s *guardedStmt) NumInput() int {
	return s.inner.NumInput()
}

func (s *guardedStmt) Exec(args []driver.Value) (driver.Result, error) {
	if err := s.guard.check(s.alias); err != nil {
		return nil, err
	}
	return s.inner.Exec(args) //nolint:staticcheck // legacy fallback path
}

func (s *guardedStmt) Query(args []driver.Value) (driver.Rows, error) {
	if err := s.guard.check(s.alias); err != nil {
		return nil, err
	}
	return s.inner.Query(args) //nolint:staticcheck // legacy fallback path
}

func (s *guardedStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if err := s.guard.check(s.alias); err != nil {
		return nil, err
	}
	if ec, ok := s.inner.(driver.StmtExecContext); ok {
		return ec.ExecContext(ctx, args)
	}
	values, err := namedValuesToValues(args)
	if err != nil {
		return nil, err
	}
	return s.inner.Exec(values) //nolint:staticcheck // legacy fallback path
}

func (s *guardedStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if err := s.guard.check(s.alias); err != nil {
		return nil, err
	}
	if qc, ok := s.inner.(driver.StmtQueryContext); ok {
		return qc.QueryContext(ctx, args)
	}
	values, err := namedValuesToValues(args)
	if err != nil {
		return nil, err
	}
	return s.inner.Query(values) //nolint:staticcheck // legacy fallback path
}

func namedValuesToValues(args []driver.NamedValue) ([]driver.Value, error) {
	values := make([]driver.Value, len(args))
	for i, nv := range args {
		if nv.Name != "" {
			return nil, driver.ErrSkip
		}
		values[i] = nv.Value
	}
	return values, nil
}
