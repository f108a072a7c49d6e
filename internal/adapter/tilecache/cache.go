// Package tilecache memoizes elevation tile existence probes.
package tilecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/geo"
	"github.com/couchcryptid/terrain-change-etl/internal/observability"
	"github.com/couchcryptid/terrain-change-etl/internal/raster"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Source is the tile source being decorated.
type Source interface {
	Exists(ctx context.Context, id geo.TileID) (bool, error)
	Open(ctx context.Context, id geo.TileID) (raster.Handle, error)
}

// Cached wraps a Source with an in-process LRU and an optional shared Redis
// layer. Only Exists is cached; errors are never cached.
type Cached struct {
	inner   Source
	local   *lru.LRU[geo.TileID, bool]
	redis   redis.Cmdable
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Option configures a Cached source.
type Option func(*Cached)

// WithRedis adds a shared second-level cache.
func WithRedis(client redis.Cmdable) Option {
	return func(c *Cached) { c.redis = client }
}

// New creates a cache decorator around inner.
func New(inner Source, size int, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Cached {
	c := &Cached{
		inner:   inner,
		local:   lru.NewLRU[geo.TileID, bool](size, nil, ttl),
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRedisClient connects to addr. The caller owns Close.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

func (c *Cached) Exists(ctx context.Context, id geo.TileID) (bool, error) {
	if ok, hit := c.local.Get(id); hit {
		c.metrics.TileCache.WithLabelValues("hit").Inc()
		return ok, nil
	}
	if ok, hit := c.remoteGet(ctx, id); hit {
		c.metrics.TileCache.WithLabelValues("hit").Inc()
		c.local.Add(id, ok)
		return ok, nil
	}
	c.metrics.TileCache.WithLabelValues("miss").Inc()

	ok, err := c.inner.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	c.local.Add(id, ok)
	c.remoteSet(ctx, id, ok)
	return ok, nil
}

func (c *Cached) Open(ctx context.Context, id geo.TileID) (raster.Handle, error) {
	return c.inner.Open(ctx, id)
}

// Len reports the number of locally cached probes.
func (c *Cached) Len() int { return c.local.Len() }

func redisKey(id geo.TileID) string {
	return fmt.Sprintf("terrain-etl:tile-exists:%s", id)
}

// remoteGet treats every Redis failure as a miss so an unavailable cache
// only costs a probe.
func (c *Cached) remoteGet(ctx context.Context, id geo.TileID) (exists, hit bool) {
	if c.redis == nil {
		return false, false
	}
	v, err := c.redis.Get(ctx, redisKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("tile cache read failed", "tile", id.String(), "error", err)
		}
		return false, false
	}
	return v == "1", true
}

func (c *Cached) remoteSet(ctx context.Context, id geo.TileID, exists bool) {
	if c.redis == nil {
		return
	}
	v := "0"
	if exists {
		v = "1"
	}
	if err := c.redis.Set(ctx, redisKey(id), v, c.ttl).Err(); err != nil {
		c.logger.Warn("tile cache write failed", "tile", id.String(), "error", err)
	}
}
