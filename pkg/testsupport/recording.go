package testsupport

import (
	"context"
	"database/sql/driver"
	"sync"

	"github.com/goliatone/go-stmt-cache/cache"
)

// Recorded operation names.
const (
	CallGetOrCreate = "GetOrCreate"
	CallCreate      = "Create"
	CallAcquire     = "Acquire"
	CallRelease     = "Release"
	CallInvalidate  = "InvalidateConnection"
)

// Call is one recorded interaction with the cache.
type Call struct {
	Op     string
	Key    cache.Key
	Handle *cache.Handle
	OK     bool
	Err    error
}

// RecordingCache wraps a real StatementCache and records every call made
// through it. Create calls are recorded when the wrapped factory runs.
type RecordingCache struct {
	cache.StatementCache

	mu    sync.Mutex
	calls []Call
}

var _ cache.StatementCache = (*RecordingCache)(nil)

// NewRecordingCache wraps inner.
func NewRecordingCache(inner cache.StatementCache) *RecordingCache {
	return &RecordingCache{StatementCache: inner}
}

func (r *RecordingCache) GetOrCreate(ctx context.Context, key cache.Key, factory cache.StatementFactory) (*cache.Handle, error) {
	recording := func(ctx context.Context, k cache.Key) (driver.Stmt, error) {
		stmt, err := factory(ctx, k)
		r.record(Call{Op: CallCreate, Key: k, OK: err == nil, Err: err})
		return stmt, err
	}

	h, err := r.StatementCache.GetOrCreate(ctx, key, recording)
	r.record(Call{Op: CallGetOrCreate, Key: key, Handle: h, OK: err == nil, Err: err})
	return h, err
}

func (r *RecordingCache) Acquire(h *cache.Handle) bool {
	ok := r.StatementCache.Acquire(h)
	r.record(Call{Op: CallAcquire, Key: h.Key(), Handle: h, OK: ok})
	return ok
}

func (r *RecordingCache) Release(h *cache.Handle) error {
	err := r.StatementCache.Release(h)
	r.record(Call{Op: CallRelease, Key: h.Key(), Handle: h, OK: err == nil, Err: err})
	return err
}

func (r *RecordingCache) InvalidateConnection(conn cache.ConnID) int {
	n := r.StatementCache.InvalidateConnection(conn)
	r.record(Call{Op: CallInvalidate, OK: n > 0})
	return n
}

// Stats forwards to the wrapped cache when it keeps counters.
func (r *RecordingCache) Stats() cache.Stats {
	if sp, ok := r.StatementCache.(cache.StatsProvider); ok {
		return sp.Stats()
	}
	return cache.Stats{Entries: r.Len()}
}

// Calls returns a copy of every recorded call in order.
func (r *RecordingCache) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsOf returns the recorded calls with the given operation name.
func (r *RecordingCache) CallsOf(op string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Ops returns the sequence of recorded operation names.
func (r *RecordingCache) Ops() []string {
	calls := r.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Reset drops all recorded calls.
func (r *RecordingCache) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

func (r *RecordingCache) record(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}
