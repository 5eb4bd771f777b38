package cache

import (
	"database/sql/driver"
	"sync/atomic"
)

// State is the externally visible lifecycle state of a Handle.
type State int32

const (
	StateAvailable State = iota
	StateInUse
	StateEvicted
)

func (s State) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateInUse:
		return "in-use"
	case StateEvicted:
		return "evicted"
	}
	return "unknown"
}

// Internal states. stateEvictedInUse is an evicted handle whose borrower has
// not released it yet; its raw statement closes on that release.
const (
	stateAvailable int32 = iota
	stateInUse
	stateEvicted
	stateEvictedInUse
)

// Handle wraps one cached raw statement and its usage state.
// The cache owns the raw statement; callers only borrow it between Acquire
// and Release.
type Handle struct {
	key      Key
	raw      driver.Stmt
	state    atomic.Int32
	released atomic.Uint64
}

func newHandle(key Key, raw driver.Stmt, tick uint64) *Handle {
	h := &Handle{key: key, raw: raw}
	h.released.Store(tick)
	return h
}

// Key returns the signature the handle is cached under.
func (h *Handle) Key() Key { return h.key }

// Stmt returns the raw statement. It must only be used while the handle is
// borrowed.
func (h *Handle) Stmt() driver.Stmt { return h.raw }

// State returns the current state.
func (h *Handle) State() State {
	switch h.state.Load() {
	case stateAvailable:
		return StateAvailable
	case stateInUse:
		return StateInUse
	default:
		return StateEvicted
	}
}

// Evicted reports whether the handle has left the cache.
func (h *Handle) Evicted() bool {
	s := h.state.Load()
	return s == stateEvicted || s == stateEvictedInUse
}

func (h *Handle) tryAcquire() bool {
	return h.state.CompareAndSwap(stateAvailable, stateInUse)
}

// release returns a borrowed handle. closed reports whether this call closed
// the raw statement, which happens when the handle was evicted while borrowed.
func (h *Handle) release(tick uint64) (closed bool, err error) {
	for {
		switch s := h.state.Load(); s {
		case stateInUse:
			if h.state.CompareAndSwap(stateInUse, stateAvailable) {
				h.released.Store(tick)
				return false, nil
			}
		case stateEvictedInUse:
			if h.state.CompareAndSwap(stateEvictedInUse, stateEvicted) {
				return true, h.raw.Close()
			}
		default:
			return false, &InvalidStateError{Key: h.key, Op: "release", State: h.State()}
		}
	}
}

// evict moves the handle to its terminal state. The raw statement is closed
// by whichever transition reaches stateEvicted, so it closes exactly once.
// With force set, a borrowed statement is closed under its borrower.
func (h *Handle) evict(force bool) (closed bool, err error) {
	for {
		switch s := h.state.Load(); s {
		case stateAvailable:
			if h.state.CompareAndSwap(stateAvailable, stateEvicted) {
				return true, h.raw.Close()
			}
		case stateInUse:
			if force {
				if h.state.CompareAndSwap(stateInUse, stateEvicted) {
					return true, h.raw.Close()
				}
				continue
			}
			if h.state.CompareAndSwap(stateInUse, stateEvictedInUse) {
				return false, nil
			}
		default:
			return false, nil
		}
	}
}

func (h *Handle) lastReleased() uint64 {
	return h.released.Load()
}
