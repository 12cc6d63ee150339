package verdictcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	verdictTrue  = "1"
	verdictFalse = "0"
)

var errCorruptEntry = errors.New("corrupt verdict entry")

// Redis stores verdicts as "1"/"0" strings with a TTL.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration

	counters
}

// NewRedis wraps an existing client. ttl <= 0 stores keys without expiry.
func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Client returns the underlying client so other components can share the
// connection pool.
func (r *Redis) Client() redis.Cmdable { return r.client }

// Close closes the client when it is closable.
func (r *Redis) Close() error {
	if c, ok := r.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Get reads a verdict; redis.Nil is a miss.
func (r *Redis) Get(ctx context.Context, key string) (bool, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		r.misses.Add(1)
		return false, false, nil
	case err != nil:
		r.errors.Add(1)
		return false, false, fmt.Errorf("redis get: %w", err)
	}

	switch val {
	case verdictTrue:
		r.hits.Add(1)
		return true, true, nil
	case verdictFalse:
		r.hits.Add(1)
		return false, true, nil
	default:
		r.errors.Add(1)
		return false, false, fmt.Errorf("%w: %q", errCorruptEntry, val)
	}
}

// Set writes a verdict.
func (r *Redis) Set(ctx context.Context, key string, verdict bool) error {
	val := verdictFalse
	if verdict {
		val = verdictTrue
	}
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, val, ttl).Err(); err != nil {
		r.errors.Add(1)
		return fmt.Errorf("redis set: %w", err)
	}
	r.writes.Add(1)
	return nil
}

type poolStatser interface {
	PoolStats() *redis.PoolStats
}

// Stats returns the counters plus connection pool figures when available.
func (r *Redis) Stats() Stats {
	s := r.snapshot(BackendRedis)
	if p, ok := r.client.(poolStatser); ok {
		ps := p.PoolStats()
		s.Pool = &PoolStats{
			Hits:       ps.Hits,
			Misses:     ps.Misses,
			Timeouts:   ps.Timeouts,
			TotalConns: ps.TotalConns,
			IdleConns:  ps.IdleConns,
		}
	}
	return s
}
