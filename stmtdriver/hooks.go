package stmtdriver

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/goliatone/go-stmt-cache/cache"
)

var _ cache.ConnectionLifecycle = (*Hooks)(nil)

// Hooks forwards pool connection events to a statement cache.
type Hooks struct {
	cache     cache.StatementCache
	logger    *zap.Logger
	returned  atomic.Uint64
	destroyed atomic.Uint64
}

// NewHooks returns hooks bound to c.
func NewHooks(c cache.StatementCache, logger *zap.Logger) *Hooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hooks{cache: c, logger: logger}
}

// OnConnectionReturned is a no-op for the cache: handles are already
// available once their last borrower released them.
func (h *Hooks) OnConnectionReturned(conn cache.ConnID) {
	h.returned.Add(1)
	h.logger.Debug("connection returned to pool", zap.Stringer("conn", conn))
}

// OnConnectionDestroyed evicts and closes every statement cached for conn.
func (h *Hooks) OnConnectionDestroyed(conn cache.ConnID) {
	h.destroyed.Add(1)
	n := h.cache.InvalidateConnection(conn)
	h.logger.Debug("connection destroyed",
		zap.Stringer("conn", conn),
		zap.Int("statements", n),
	)
}

// Returned counts OnConnectionReturned events.
func (h *Hooks) Returned() uint64 {
	return h.returned.Load()
}

// Destroyed counts OnConnectionDestroyed events.
func (h *Hooks) Destroyed() uint64 {
	return h.destroyed.Load()
}
