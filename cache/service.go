package cache

import (
	"context"
	"database/sql/driver"
)

// StatementFactory creates a raw statement for key. It runs only on a cache
// miss, outside any cache lock, and may block on driver I/O.
type StatementFactory func(ctx context.Context, key Key) (driver.Stmt, error)

// StatementCache is the per-pool prepared statement cache.
// Keys carry the owning connection, so one cache serves every connection of a pool.
type StatementCache interface {
	// GetOrCreate returns the handle cached under key, creating it through
	// factory on a miss. At most one handle per key survives; a caller that
	// loses the insert race has its fresh statement closed and receives the
	// winner's handle.
	GetOrCreate(ctx context.Context, key Key, factory StatementFactory) (*Handle, error)

	// Acquire claims h for exclusive use. It reports false, without changing
	// anything, when h is already borrowed or evicted.
	Acquire(h *Handle) bool

	// Release hands a borrowed handle back to the cache.
	Release(h *Handle) error

	// InvalidateConnection evicts every handle owned by conn and returns how
	// many were removed.
	InvalidateConnection(conn ConnID) int

	// Len returns the number of cached handles.
	Len() int
}

// StatsProvider is implemented by caches that keep counters.
type StatsProvider interface {
	Stats() Stats
}

// ConnectionLifecycle receives the pool events a statement cache depends on.
type ConnectionLifecycle interface {
	OnConnectionReturned(conn ConnID)
	OnConnectionDestroyed(conn ConnID)
}

// Lease is a statement borrowed through GetOrCreateAndAcquire.
// Handle is nil when the statement is not cached and belongs to the caller.
type Lease struct {
	Stmt   driver.Stmt
	Handle *Handle
}

// Cached reports whether the lease is backed by a cache handle.
func (l Lease) Cached() bool {
	return l.Handle != nil
}

// GetOrCreateAndAcquire looks up or creates the statement for key and claims
// it. When the cached handle is already borrowed it falls back to a fresh,
// uncached statement from factory.
func GetOrCreateAndAcquire(ctx context.Context, c StatementCache, key Key, factory StatementFactory) (Lease, error) {
	h, err := c.GetOrCreate(ctx, key, factory)
	if err != nil {
		return Lease{}, err
	}

	if c.Acquire(h) {
		return Lease{Stmt: h.Stmt(), Handle: h}, nil
	}

	raw, err := factory(ctx, key)
	if err != nil {
		return Lease{}, err
	}
	if raw == nil {
		return Lease{}, ErrNilStatement
	}
	return Lease{Stmt: raw}, nil
}

// ReturnLease releases a cached lease or closes an uncached one.
func ReturnLease(c StatementCache, l Lease) error {
	if l.Handle != nil {
		return c.Release(l.Handle)
	}
	if l.Stmt != nil {
		return l.Stmt.Close()
	}
	return nil
}
