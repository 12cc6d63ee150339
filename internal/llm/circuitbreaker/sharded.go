package circuitbreaker

import (
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	shardCount     = 16
	hashMultiplier = 31
)

// shardedBreakers spreads breakers over locked shards to keep lookups cheap
// under concurrent grading.
type shardedBreakers struct {
	shards [shardCount]struct {
		sync.RWMutex
		breakers map[string]*circuitBreaker
	}
	total atomic.Int64
}

func newShardedBreakers() *shardedBreakers {
	sb := new(shardedBreakers)
	for i := range sb.shards {
		sb.shards[i].breakers = make(map[string]*circuitBreaker)
	}
	return sb
}

func (sb *shardedBreakers) shardFor(key string) int {
	var hash uint32
	for i := 0; i < len(key); i++ {
		hash = hash*hashMultiplier + uint32(key[i])
	}
	return int(hash % shardCount)
}

func (sb *shardedBreakers) get(key string) (*circuitBreaker, bool) {
	shard := &sb.shards[sb.shardFor(key)]
	shard.RLock()
	cb, ok := shard.breakers[key]
	shard.RUnlock()
	return cb, ok
}

func (sb *shardedBreakers) getOrCreate(key string, create func() *circuitBreaker, maxBreakers int) (*circuitBreaker, error) {
	if cb, ok := sb.get(key); ok {
		return cb, nil
	}

	shard := &sb.shards[sb.shardFor(key)]
	shard.Lock()
	defer shard.Unlock()

	if cb, ok := shard.breakers[key]; ok {
		return cb, nil
	}
	if maxBreakers > 0 && int(sb.total.Load()) >= maxBreakers {
		return nil, fmt.Errorf("%w (%d), cannot create breaker for %s", ErrBreakerLimit, maxBreakers, key)
	}

	cb := create()
	shard.breakers[key] = cb
	sb.total.Add(1)
	return cb, nil
}

func (sb *shardedBreakers) each(fn func(*circuitBreaker)) {
	for i := range sb.shards {
		shard := &sb.shards[i]
		shard.RLock()
		for _, cb := range shard.breakers {
			fn(cb)
		}
		shard.RUnlock()
	}
}
