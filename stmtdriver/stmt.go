package stmtdriver

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync/atomic"

	"github.com/goliatone/go-stmt-cache/cache"
)

var (
	_ driver.Stmt              = (*Stmt)(nil)
	_ driver.StmtExecContext   = (*Stmt)(nil)
	_ driver.StmtQueryContext  = (*Stmt)(nil)
	_ driver.NamedValueChecker = (*Stmt)(nil)
)

var errNamedParams = errors.New("stmtdriver: driver does not support the use of Named Parameters")

// Stmt is a statement borrowed from the cache. Closing it returns the
// statement to the cache instead of closing it on the server.
type Stmt struct {
	lease  cache.Lease
	cache  cache.StatementCache
	closed atomic.Bool
}

// Cached reports whether the statement is backed by a cache handle.
func (s *Stmt) Cached() bool {
	return s.lease.Cached()
}

// Handle returns the cache handle, or nil for an uncached statement.
func (s *Stmt) Handle() *cache.Handle {
	return s.lease.Handle
}

// Close implements driver.Stmt.
func (s *Stmt) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return cache.ReturnLease(s.cache, s.lease)
}

// NumInput implements driver.Stmt.
func (s *Stmt) NumInput() int {
	return s.lease.Stmt.NumInput()
}

// Exec implements driver.Stmt.
//
// Deprecated: database/sql uses ExecContext.
func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.lease.Stmt.Exec(args) //nolint:staticcheck
}

// Query implements driver.Stmt.
//
// Deprecated: database/sql uses QueryContext.
func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.lease.Stmt.Query(args) //nolint:staticcheck
}

// ExecContext implements driver.StmtExecContext.
func (s *Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if ec, ok := s.lease.Stmt.(driver.StmtExecContext); ok {
		return ec.ExecContext(ctx, args)
	}

	values, err := namedValuesToValues(args)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.lease.Stmt.Exec(values) //nolint:staticcheck
}

// QueryContext implements driver.StmtQueryContext.
func (s *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if qc, ok := s.lease.Stmt.(driver.StmtQueryContext); ok {
		return qc.QueryContext(ctx, args)
	}

	values, err := namedValuesToValues(args)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.lease.Stmt.Query(values) //nolint:staticcheck
}

// CheckNamedValue implements driver.NamedValueChecker.
func (s *Stmt) CheckNamedValue(nv *driver.NamedValue) error {
	if nvc, ok := s.lease.Stmt.(driver.NamedValueChecker); ok {
		return nvc.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

func namedValuesToValues(named []driver.NamedValue) ([]driver.Value, error) {
	values := make([]driver.Value, len(named))
	for i, nv := range named {
		if nv.Name != "" {
			return nil, errNamedParams
		}
		values[i] = nv.Value
	}
	return values, nil
}
