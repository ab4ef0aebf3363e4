// Package cache tracks the generation of cached API responses. Every
// cached key embeds the current generation; a write bumps the generation,
// which orphans older entries until their TTL expires.
package cache

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Counter is the subset of the Redis client used here. *redis.Client
// satisfies it.
type Counter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// Generation reads and bumps the response cache generation. A nil
// *Generation, or one without a client, is valid and does nothing.
type Generation struct {
	rdb Counter
	key string
	log logrus.FieldLogger
}

// NewGeneration returns a Generation stored under "<prefix>:gen". rdb may
// be nil.
func NewGeneration(rdb Counter, prefix string, log logrus.FieldLogger) *Generation {
	if prefix == "" {
		prefix = "cache"
	}
	return &Generation{rdb: rdb, key: prefix + ":gen", log: log}
}

func (g *Generation) enabled() bool {
	return g != nil && g.rdb != nil
}

// Current returns the generation to embed in cache keys, "0" before the
// first bump or when Redis cannot be read.
func (g *Generation) Current(ctx context.Context) string {
	if !g.enabled() {
		return "0"
	}
	v, err := g.rdb.Get(ctx, g.key).Result()
	if errors.Is(err, redis.Nil) {
		return "0"
	}
	if err != nil {
		g.log.WithError(err).Warn("read cache generation")
		return "0"
	}
	return v
}

// Bump invalidates every cached response. Failures are logged; a stale
// read is bounded by the cache TTL.
func (g *Generation) Bump(ctx context.Context) {
	if !g.enabled() {
		return
	}
	n, err := g.rdb.Incr(ctx, g.key).Result()
	if err != nil {
		g.log.WithError(err).Warn("bump cache generation")
		return
	}
	g.log.WithField("generation", strconv.FormatInt(n, 10)).Debug("cache invalidated")
}
