package cache

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeStmt struct {
	id       int64
	closes   atomic.Int32
	closeErr error
}

func (s *fakeStmt) Close() error {
	s.closes.Add(1)
	return s.closeErr
}

func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	return driver.RowsAffected(0), nil
}

func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, errors.New("fakeStmt: query not supported")
}

// stmtFactory hands out fakeStmts and remembers every one it created.
type stmtFactory struct {
	mu      sync.Mutex
	next    int64
	created []*fakeStmt
	err     error
}

func (f *stmtFactory) create(ctx context.Context, key Key) (driver.Stmt, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	s := &fakeStmt{id: f.next}
	f.created = append(f.created, s)
	return s, nil
}

func (f *stmtFactory) all() []*fakeStmt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeStmt(nil), f.created...)
}

func newTestCache(t *testing.T, mutate ...func(*Config)) *ConcurrentCache {
	t.Helper()

	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func rawOf(t *testing.T, h *Handle) *fakeStmt {
	t.Helper()

	s, ok := h.Stmt().(*fakeStmt)
	require.True(t, ok, "expected *fakeStmt, got %T", h.Stmt())
	return s
}
