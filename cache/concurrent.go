package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/goliatone/go-stmt-cache/internal/cacheinfra"
)

var (
	_ StatementCache = (*ConcurrentCache)(nil)
	_ StatsProvider  = (*ConcurrentCache)(nil)
)

// Option configures a ConcurrentCache.
type Option func(*ConcurrentCache)

// WithLogger sets the logger used for cache events.
func WithLogger(logger *zap.Logger) Option {
	return func(c *ConcurrentCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// ConcurrentCache is the default StatementCache. Lookups and inserts are
// lock-free; only the capacity eviction slow path takes a mutex.
type ConcurrentCache struct {
	entries   *xsync.MapOf[Key, *Handle]
	capacity  int
	closeMode cacheinfra.CloseMode
	clock     atomic.Uint64
	evictMu   sync.Mutex
	stats     counters
	logger    *zap.Logger
}

// New creates a ConcurrentCache from cfg.
func New(cfg Config, opts ...Option) (*ConcurrentCache, error) {
	internal, err := cfg.toInternal()
	if err != nil {
		return nil, err
	}

	seed := internal.HashSeed
	hasher := func(k Key, mapSeed uint64) uint64 {
		return k.hashSeeded(mapSeed ^ seed)
	}

	var mapOpts []func(*xsync.MapConfig)
	if internal.Presize > 0 {
		mapOpts = append(mapOpts, xsync.WithPresize(internal.Presize))
	}

	c := &ConcurrentCache{
		entries:   xsync.NewMapOfWithHasher[Key, *Handle](hasher, mapOpts...),
		capacity:  internal.Capacity,
		closeMode: internal.CloseMode,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetOrCreate implements StatementCache.GetOrCreate.
func (c *ConcurrentCache) GetOrCreate(ctx context.Context, key Key, factory StatementFactory) (*Handle, error) {
	if h, ok := c.entries.Load(key); ok && !h.Evicted() {
		c.stats.hits.Add(1)
		return h, nil
	}
	c.stats.misses.Add(1)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := factory(ctx, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNilStatement
	}

	h := newHandle(key, raw, c.tick())
	for {
		actual, loaded := c.entries.LoadOrStore(key, h)
		if !loaded {
			break
		}
		if actual.Evicted() {
			// Stale slot from an eviction still in flight; drop it and retry.
			c.remove(actual)
			continue
		}

		c.stats.raceLosses.Add(1)
		c.logger.Debug("statement cache insert race lost",
			zap.Stringer("key", key),
		)
		c.closeRaw(key, raw)
		return actual, nil
	}

	c.stats.creates.Add(1)
	c.logger.Debug("statement cached", zap.Stringer("key", key))

	if c.entries.Size() > c.capacity {
		c.evictOnCapacity(h)
	}
	return h, nil
}

// Acquire implements StatementCache.Acquire.
func (c *ConcurrentCache) Acquire(h *Handle) bool {
	if h.tryAcquire() {
		return true
	}

	c.stats.conflicts.Add(1)
	c.logger.Debug("statement handle not acquirable",
		zap.Stringer("key", h.key),
		zap.Stringer("state", h.State()),
	)
	return false
}

// Release implements StatementCache.Release.
func (c *ConcurrentCache) Release(h *Handle) error {
	closed, err := h.release(c.tick())
	if closed {
		c.recordClose(h.key, err)
		return nil
	}
	if err != nil {
		c.stats.invalidReleases.Add(1)
		c.logger.Warn("invalid statement handle release",
			zap.Stringer("key", h.key),
			zap.Error(err),
		)
	}
	return err
}

// InvalidateConnection implements StatementCache.InvalidateConnection.
func (c *ConcurrentCache) InvalidateConnection(conn ConnID) int {
	var victims []*Handle
	c.entries.Range(func(k Key, h *Handle) bool {
		if k.conn == conn {
			victims = append(victims, h)
		}
		return true
	})

	force := c.closeMode == cacheinfra.CloseImmediate
	removed := 0
	for _, h := range victims {
		if !c.remove(h) {
			continue
		}
		removed++
		c.retire(h, force)
	}

	if removed > 0 {
		c.stats.invalidations.Add(uint64(removed))
		c.logger.Info("connection statements invalidated",
			zap.Stringer("conn", conn),
			zap.Int("count", removed),
		)
	}
	return removed
}

// Purge evicts every cached handle and returns how many were removed.
func (c *ConcurrentCache) Purge() int {
	var all []*Handle
	c.entries.Range(func(_ Key, h *Handle) bool {
		all = append(all, h)
		return true
	})

	removed := 0
	for _, h := range all {
		if c.remove(h) {
			removed++
			c.retire(h, false)
		}
	}
	return removed
}

// Len implements StatementCache.Len.
func (c *ConcurrentCache) Len() int {
	return c.entries.Size()
}

// Range calls fn for each cached handle until fn returns false.
// Handles may be evicted concurrently; check Evicted before relying on one.
func (c *ConcurrentCache) Range(fn func(key Key, h *Handle) bool) {
	c.entries.Range(fn)
}

// Capacity returns the configured entry bound.
func (c *ConcurrentCache) Capacity() int {
	return c.capacity
}

// Stats implements StatsProvider.
func (c *ConcurrentCache) Stats() Stats {
	s := c.stats.snapshot()
	s.Entries = c.entries.Size()
	s.Capacity = c.capacity
	return s
}

// evictOnCapacity evicts least recently released available handles until the
// cache is back within capacity. fresh is the handle whose insert triggered the
// call and is never chosen. When every other handle is borrowed the cache stays
// over capacity until a later insert finds a victim.
func (c *ConcurrentCache) evictOnCapacity(fresh *Handle) {
	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	for c.entries.Size() > c.capacity {
		victim := c.oldestAvailable(fresh)
		if victim == nil {
			c.logger.Debug("statement cache over capacity with no available victim",
				zap.Int("entries", c.entries.Size()),
				zap.Int("capacity", c.capacity),
			)
			return
		}
		if c.remove(victim) {
			c.stats.capacityEvictions.Add(1)
			c.logger.Debug("statement evicted on capacity", zap.Stringer("key", victim.key))
			c.retire(victim, false)
		}
	}
}

func (c *ConcurrentCache) oldestAvailable(skip *Handle) *Handle {
	var victim *Handle
	var oldest uint64
	c.entries.Range(func(_ Key, h *Handle) bool {
		if h == skip || h.State() != StateAvailable {
			return true
		}
		if t := h.lastReleased(); victim == nil || t < oldest {
			victim, oldest = h, t
		}
		return true
	})
	return victim
}

// remove deletes h from the map only if it still occupies its key's slot.
func (c *ConcurrentCache) remove(h *Handle) bool {
	removed := false
	c.entries.Compute(h.key, func(old *Handle, loaded bool) (*Handle, bool) {
		if !loaded {
			return old, true
		}
		if old == h {
			removed = true
			return old, true
		}
		return old, false
	})
	return removed
}

// retire evicts a handle already removed from the map.
func (c *ConcurrentCache) retire(h *Handle, force bool) {
	closed, err := h.evict(force)
	if closed {
		c.recordClose(h.key, err)
	}
}

func (c *ConcurrentCache) closeRaw(key Key, raw interface{ Close() error }) {
	c.recordClose(key, raw.Close())
}

func (c *ConcurrentCache) recordClose(key Key, err error) {
	c.stats.closes.Add(1)
	if err != nil {
		c.stats.closeErrors.Add(1)
		c.logger.Warn("closing cached statement failed",
			zap.Stringer("key", key),
			zap.Error(err),
		)
	}
}

func (c *ConcurrentCache) tick() uint64 {
	return c.clock.Add(1)
}
