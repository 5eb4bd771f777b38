package stmtdriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/goliatone/go-stmt-cache/cache"
)

var (
	_ driver.Conn               = (*Conn)(nil)
	_ driver.ConnPrepareContext = (*Conn)(nil)
	_ driver.ConnBeginTx        = (*Conn)(nil)
	_ driver.Pinger             = (*Conn)(nil)
	_ driver.SessionResetter    = (*Conn)(nil)
	_ driver.Validator          = (*Conn)(nil)
	_ driver.NamedValueChecker  = (*Conn)(nil)
)

var (
	errIsolationUnsupported = errors.New("stmtdriver: driver does not support non-default isolation level")
	errReadOnlyUnsupported  = errors.New("stmtdriver: driver does not support read-only transactions")
)

// Conn is one physical connection whose statements are cached.
type Conn struct {
	raw    driver.Conn
	id     cache.ConnID
	cache  cache.StatementCache
	events cache.ConnectionLifecycle
	logger *zap.Logger
	closed atomic.Bool
}

// ID returns the identity this connection's statements are cached under.
func (c *Conn) ID() cache.ConnID {
	return c.id
}

// Raw returns the driver connection being decorated.
func (c *Conn) Raw() driver.Conn {
	return c.raw
}

// Prepare implements driver.Conn.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext implements driver.ConnPrepareContext. It borrows the cached
// statement for query, or an uncached one if the cached statement is in use.
func (c *Conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if c.closed.Load() {
		return nil, driver.ErrBadConn
	}

	key := cache.PrepareKey(c.id, query)
	lease, err := cache.GetOrCreateAndAcquire(ctx, c.cache, key, c.prepareRaw(query))
	if err != nil {
		return nil, err
	}
	if !lease.Cached() {
		c.logger.Debug("statement already borrowed, using uncached statement",
			zap.Stringer("key", key),
		)
	}
	return &Stmt{lease: lease, cache: c.cache}, nil
}

func (c *Conn) prepareRaw(query string) cache.StatementFactory {
	return func(ctx context.Context, _ cache.Key) (driver.Stmt, error) {
		if pc, ok := c.raw.(driver.ConnPrepareContext); ok {
			return pc.PrepareContext(ctx, query)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return c.raw.Prepare(query)
	}
}

// Close implements driver.Conn. Cached statements are invalidated before the
// driver connection closes.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.events.OnConnectionDestroyed(c.id)
	return c.raw.Close()
}

// Begin implements driver.Conn.
//
// Deprecated: database/sql uses BeginTx.
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx.
func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if bt, ok := c.raw.(driver.ConnBeginTx); ok {
		return bt.BeginTx(ctx, opts)
	}

	if opts.Isolation != driver.IsolationLevel(sql.LevelDefault) {
		return nil, errIsolationUnsupported
	}
	if opts.ReadOnly {
		return nil, errReadOnlyUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.raw.Begin() //nolint:staticcheck // fallback for drivers without BeginTx
}

// Ping implements driver.Pinger.
func (c *Conn) Ping(ctx context.Context) error {
	if p, ok := c.raw.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// ResetSession implements driver.SessionResetter. database/sql calls it before
// handing a pooled connection to its next user.
func (c *Conn) ResetSession(ctx context.Context) error {
	if sr, ok := c.raw.(driver.SessionResetter); ok {
		if err := sr.ResetSession(ctx); err != nil {
			return err
		}
	}
	c.events.OnConnectionReturned(c.id)
	return nil
}

// IsValid implements driver.Validator.
func (c *Conn) IsValid() bool {
	if c.closed.Load() {
		return false
	}
	if v, ok := c.raw.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

// CheckNamedValue implements driver.NamedValueChecker.
func (c *Conn) CheckNamedValue(nv *driver.NamedValue) error {
	if nvc, ok := c.raw.(driver.NamedValueChecker); ok {
		return nvc.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}
