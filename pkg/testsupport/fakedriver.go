package testsupport

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrFakePrepare is returned by FakeConn.Prepare for queries starting with "fail".
var ErrFakePrepare = errors.New("fake driver: prepare failed")

// FakeDriver is an in-memory database/sql driver that records what the pool
// does with connections and statements. It has no storage; every query
// returns a single row holding the query text.
type FakeDriver struct {
	Opens      atomic.Int64
	ConnCloses atomic.Int64
	Prepares   atomic.Int64
	StmtCloses atomic.Int64
	Resets     atomic.Int64

	mu       sync.Mutex
	prepared map[string]int
}

var (
	_ driver.Driver        = (*FakeDriver)(nil)
	_ driver.DriverContext = (*FakeDriver)(nil)
)

// NewFakeDriver returns an empty FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{prepared: make(map[string]int)}
}

// Open implements driver.Driver.
func (d *FakeDriver) Open(name string) (driver.Conn, error) {
	d.Opens.Add(1)
	return &FakeConn{driver: d}, nil
}

// OpenConnector implements driver.DriverContext.
func (d *FakeDriver) OpenConnector(name string) (driver.Connector, error) {
	return &fakeConnector{driver: d, name: name}, nil
}

// PrepareCount returns how often query was prepared on the driver.
func (d *FakeDriver) PrepareCount(query string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prepared[query]
}

func (d *FakeDriver) recordPrepare(query string) {
	d.Prepares.Add(1)
	d.mu.Lock()
	d.prepared[query]++
	d.mu.Unlock()
}

type fakeConnector struct {
	driver *FakeDriver
	name   string
}

func (c *fakeConnector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.name)
}

func (c *fakeConnector) Driver() driver.Driver {
	return c.driver
}

// FakeConn is a connection of FakeDriver.
type FakeConn struct {
	driver *FakeDriver
	closed atomic.Bool
}

var _ driver.SessionResetter = (*FakeConn)(nil)

// Prepare implements driver.Conn.
func (c *FakeConn) Prepare(query string) (driver.Stmt, error) {
	if c.closed.Load() {
		return nil, driver.ErrBadConn
	}
	if strings.HasPrefix(strings.TrimSpace(query), "fail") {
		return nil, ErrFakePrepare
	}
	c.driver.recordPrepare(query)
	return &FakeStmt{conn: c, query: query}, nil
}

// Close implements driver.Conn.
func (c *FakeConn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.driver.ConnCloses.Add(1)
	}
	return nil
}

// Begin implements driver.Conn.
func (c *FakeConn) Begin() (driver.Tx, error) {
	return fakeTx{}, nil
}

// ResetSession implements driver.SessionResetter.
func (c *FakeConn) ResetSession(context.Context) error {
	c.driver.Resets.Add(1)
	return nil
}

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

// FakeStmt is a prepared statement of FakeConn.
type FakeStmt struct {
	conn   *FakeConn
	query  string
	closes atomic.Int32
}

// Close implements driver.Stmt.
func (s *FakeStmt) Close() error {
	if s.closes.Add(1) == 1 {
		s.conn.driver.StmtCloses.Add(1)
	}
	return nil
}

// Closes returns how many times Close was called.
func (s *FakeStmt) Closes() int {
	return int(s.closes.Load())
}

// NumInput implements driver.Stmt.
func (s *FakeStmt) NumInput() int { return -1 }

// Exec implements driver.Stmt.
func (s *FakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	if s.closes.Load() > 0 {
		return nil, errors.New("fake driver: exec on closed statement")
	}
	return driver.RowsAffected(1), nil
}

// Query implements driver.Stmt.
func (s *FakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	if s.closes.Load() > 0 {
		return nil, errors.New("fake driver: query on closed statement")
	}
	return &fakeRows{values: []driver.Value{s.query}}, nil
}

type fakeRows struct {
	values []driver.Value
	done   bool
}

func (r *fakeRows) Columns() []string { return []string{"query"} }

func (r *fakeRows) Close() error { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	r.done = true
	copy(dest, r.values)
	return nil
}
