// Package verdictcache stores grading verdicts keyed by a digest of the
// grading inputs. The memory backend is a bounded LRU with per-entry TTL; the
// redis backend shares verdicts across replicas.
package verdictcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

const connectTimeout = 5 * time.Second

// ErrUnknownBackend is returned for a backend name New does not know.
var ErrUnknownBackend = errors.New("unknown cache backend")

// Cache is the verdict store used by the grader.
type Cache interface {
	Get(ctx context.Context, key string) (verdict, found bool, err error)
	Set(ctx context.Context, key string, verdict bool) error
	Stats() Stats
}

// Config selects and sizes a backend.
type Config struct {
	Backend       string        `mapstructure:"backend" json:"backend" validate:"oneof=memory redis"`
	MaxEntries    int           `mapstructure:"max_entries" json:"max_entries" validate:"gte=0"`
	TTL           time.Duration `mapstructure:"ttl" json:"ttl" validate:"gte=0"`
	RedisAddr     string        `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" json:"-"`
	RedisDB       int           `mapstructure:"redis_db" json:"redis_db" validate:"gte=0"`
}

// New builds the configured backend. An unreachable redis degrades to the
// memory backend with a warning rather than failing startup.
func New(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(cfg.MaxEntries, cfg.TTL), nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			slog.Default().With("component", "verdictcache").Warn(
				"redis unreachable, using memory cache", "addr", cfg.RedisAddr, "error", err)
			_ = client.Close()
			return NewMemory(cfg.MaxEntries, cfg.TTL), nil
		}
		return NewRedis(client, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
