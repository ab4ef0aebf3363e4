package config

import (
	"strings"
	"time"
)

// Cache key strategies understood by the response cache.
const (
	CacheKeyRoute          = "route"
	CacheKeyRouteQuery     = "route_query"
	CacheKeyUserRouteQuery = "user_route_query"
)

// CacheConfig configures the Redis response cache in front of the admin
// read endpoints. Admin listings depend on the caller's city, so the
// default key strategy includes the caller.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string
	Prefix       string // also namespaces the generation counter
	MaxBodyBytes int    // larger responses are served but not stored
}

// LoadCacheConfig reads CACHE_* variables.
func LoadCacheConfig() CacheConfig {
	c := CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      methodSet(envStr("CACHE_METHODS", "GET")),
		TTL:          envDur("CACHE_TTL", 30*time.Second),
		KeyStrategy:  strings.ToLower(envStr("CACHE_KEY_STRATEGY", CacheKeyUserRouteQuery)),
		Prefix:       envStr("CACHE_PREFIX", "cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
	switch c.KeyStrategy {
	case CacheKeyRoute, CacheKeyRouteQuery, CacheKeyUserRouteQuery:
	default:
		c.KeyStrategy = CacheKeyUserRouteQuery
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	return c
}

// methodSet turns "get, head" into {"GET": true, "HEAD": true}.
func methodSet(list string) map[string]bool {
	set := make(map[string]bool)
	for _, m := range strings.Split(list, ",") {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			set[m] = true
		}
	}
	return set
}
