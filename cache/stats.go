package cache

import "sync/atomic"

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries           int    `json:"entries"`
	Capacity          int    `json:"capacity"`
	Hits              uint64 `json:"hits"`
	Misses            uint64 `json:"misses"`
	Creates           uint64 `json:"creates"`
	RaceLosses        uint64 `json:"race_losses"`
	Conflicts         uint64 `json:"conflicts"`
	CapacityEvictions uint64 `json:"capacity_evictions"`
	Invalidations     uint64 `json:"invalidations"`
	Closes            uint64 `json:"closes"`
	CloseErrors       uint64 `json:"close_errors"`
	InvalidReleases   uint64 `json:"invalid_releases"`
}

type counters struct {
	hits              atomic.Uint64
	misses            atomic.Uint64
	creates           atomic.Uint64
	raceLosses        atomic.Uint64
	conflicts         atomic.Uint64
	capacityEvictions atomic.Uint64
	invalidations     atomic.Uint64
	closes            atomic.Uint64
	closeErrors       atomic.Uint64
	invalidReleases   atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:              c.hits.Load(),
		Misses:            c.misses.Load(),
		Creates:           c.creates.Load(),
		RaceLosses:        c.raceLosses.Load(),
		Conflicts:         c.conflicts.Load(),
		CapacityEvictions: c.capacityEvictions.Load(),
		Invalidations:     c.invalidations.Load(),
		Closes:            c.closes.Load(),
		CloseErrors:       c.closeErrors.Load(),
		InvalidReleases:   c.invalidReleases.Load(),
	}
}
