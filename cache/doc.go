// Package cache provides a concurrent prepared statement cache for pooled
// database connections.
//
// # Overview
//
// Preparing a statement costs a round trip and server-side work. When a pool
// hands the same physical connection to successive callers, the statements
// they prepare can be reused. This package keeps those statements keyed by
// the call that produced them:
//
//   - Key: owning connection + operation name + canonical argument snapshot
//   - Handle: one cached raw statement plus its state (available, in-use, evicted)
//   - StatementCache: the key to handle mapping, shared by every connection of a pool
//
// Statements are never shared across connections. Keys carry the ConnID of
// the physical connection, and invalidating a connection evicts exactly its
// handles.
//
// # Basic Usage
//
//	c, err := cache.New(cache.DefaultConfig())
//	key := cache.PrepareKey(connID, "select * from actor where first_name = ?")
//
//	lease, err := cache.GetOrCreateAndAcquire(ctx, c, key, func(ctx context.Context, _ cache.Key) (driver.Stmt, error) {
//		return rawConn.Prepare("select * from actor where first_name = ?")
//	})
//	if err != nil {
//		return err
//	}
//	defer cache.ReturnLease(c, lease)
//
// Most applications do not call the cache directly; the stmtdriver package
// wires it into database/sql.
//
// # Concurrency
//
// Lookups and inserts are lock-free. The factory runs outside any lock, so two
// goroutines missing the same key may both prepare; only one statement is
// kept and the other is closed straight away. A borrowed handle is exclusive:
// Acquire on a handle that is already in use returns false and the caller
// should fall back to an uncached statement.
//
// # Eviction
//
// A handle leaves the cache when its connection is invalidated, when the cache
// is purged, or when an insert pushes the cache over capacity. Capacity
// eviction picks the available handle released longest ago. Evicted handles
// close their raw statement exactly once. With the default deferred close mode
// a handle evicted while borrowed is closed when its borrower releases it; the
// immediate mode closes it at eviction time instead.
//
// # Error Handling
//
// Factory errors are returned unchanged and leave the cache untouched.
// Releasing a handle that is not borrowed returns an *InvalidStateError,
// matched by errors.Is(err, ErrInvalidState).
package cache
