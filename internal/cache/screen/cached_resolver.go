package screen

import (
	"context"
	"time"

	memcache "sdui/internal/cache/memory"
	"sdui/internal/gateway/revision"
	model "sdui/internal/screen"
)

// Key identifies one resolved response. Every field that changes the output
// of resolution and filtering belongs here.
type Key struct {
	Screen          string
	Variant         string
	UserID          string
	ExperimentGroup string
	Platform        string
	Segment         string
	Geo             string
	AppVersion      string
}

type cacheKey struct {
	Key
	revision int64
}

type Resolved struct {
	Config  *model.ScreenConfig
	Variant string
}

type LoadFunc func(ctx context.Context) (Resolved, error)

type CacheConfig struct {
	MaxTTL     time.Duration
	MaxEntries int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxTTL:     5 * time.Minute,
		MaxEntries: 4096,
	}
}

// CachedResolver memoizes resolved configs. Entries are keyed by the current
// ConfigVersion, so any store mutation makes every older entry unreachable.
// Each entry lives for the config's cacheTTL, capped at MaxTTL.
type CachedResolver struct {
	rev     *revision.Counter
	maxTTL  time.Duration
	entries *memcache.LRUTTL[cacheKey, Resolved]
}

func NewCachedResolver(rev *revision.Counter, cfg CacheConfig) *CachedResolver {
	def := DefaultCacheConfig()
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = def.MaxTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	return &CachedResolver{
		rev:     rev,
		maxTTL:  cfg.MaxTTL,
		entries: memcache.NewLRUTTL[cacheKey, Resolved](cfg.MaxEntries, 0, cfg.MaxTTL),
	}
}

// GetOrLoad returns a copy of the cached response or calls load. Errors are
// never cached.
func (c *CachedResolver) GetOrLoad(ctx context.Context, key Key, load LoadFunc) (Resolved, error) {
	ck := cacheKey{Key: key, revision: c.rev.Current()}
	if hit, ok := c.entries.Get(ck); ok {
		return clone(hit), nil
	}
	res, err := load(ctx)
	if err != nil {
		return Resolved{}, err
	}
	if res.Config != nil {
		stored := clone(res)
		c.entries.SetWithTTL(ck, stored, 0, c.ttlFor(stored.Config))
	}
	return clone(res), nil
}

// Purge drops every entry for a screen regardless of revision.
func (c *CachedResolver) Purge(screenName string) int {
	return c.entries.DeleteFunc(func(k cacheKey) bool { return k.Screen == screenName })
}

func (c *CachedResolver) Len() int {
	return c.entries.Len()
}

func (c *CachedResolver) ttlFor(cfg *model.ScreenConfig) time.Duration {
	ttl := time.Duration(cfg.Metadata.CacheTTL) * time.Second
	if ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	return ttl
}

func clone(r Resolved) Resolved {
	return Resolved{Config: r.Config.Clone(), Variant: r.Variant}
}
