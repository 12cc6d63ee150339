package verdictcache

import "sync/atomic"

type counters struct {
	hits        atomic.Int64
	misses      atomic.Int64
	writes      atomic.Int64
	errors      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Backend     string     `json:"backend"`
	Hits        int64      `json:"hits"`
	Misses      int64      `json:"misses"`
	Writes      int64      `json:"writes"`
	Errors      int64      `json:"errors"`
	Evictions   int64      `json:"evictions"`
	Expirations int64      `json:"expirations"`
	Entries     int64      `json:"entries,omitempty"`
	HitRate     float64    `json:"hit_rate"`
	Pool        *PoolStats `json:"pool,omitempty"`
}

// PoolStats mirrors the redis client pool counters.
type PoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
}

func (c *counters) snapshot(backend string) Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Backend:     backend,
		Hits:        hits,
		Misses:      misses,
		Writes:      c.writes.Load(),
		Errors:      c.errors.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		HitRate:     hitRate,
	}
}
