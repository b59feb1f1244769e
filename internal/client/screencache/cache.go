// Package screencache keeps fetched screen configs on the client for as long
// as each config's own cacheTTL allows.
package screencache

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"sdui/internal/cache/disk"
	memcache "sdui/internal/cache/memory"
	"sdui/internal/screen"
)

const defaultMaxEntries = 64

type Key struct {
	Screen  string
	Variant string
	UserID  string
}

// diskKey is the persisted form of k. The screen name leads so a whole
// screen can be dropped by prefix.
func (k Key) diskKey() string {
	return k.Screen + "|" + k.Variant + "|" + k.UserID
}

type Entry struct {
	Config        *screen.ScreenConfig `json:"config"`
	Variant       string               `json:"variant"`
	ConfigVersion int64                `json:"configVersion"`
}

// Cache is an in-memory LRU with an optional on-disk tier that keeps
// last-known configs across restarts.
type Cache struct {
	entries *memcache.LRUTTL[Key, Entry]
	disk    *disk.Store
	now     func() time.Time
}

type Option func(*Cache)

// WithDisk adds a persistent tier. Disk failures are logged and treated as
// misses.
func WithDisk(store *disk.Store) Option {
	return func(c *Cache) { c.disk = store }
}

func New(maxEntries int, opts ...Option) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	c := &Cache{
		entries: memcache.NewLRUTTL[Key, Entry](maxEntries, 0, time.Minute),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithClock replaces the time source. Intended for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	c.entries.WithClock(now)
	if c.disk != nil {
		c.disk.WithClock(now)
	}
	return c
}

// Get returns a live entry; expired entries are misses.
func (c *Cache) Get(k Key) (Entry, bool) {
	if e, ok := c.entries.Get(k); ok {
		return e, true
	}
	if c.disk == nil {
		return Entry{}, false
	}
	raw, deadline, ok, err := c.disk.Get(context.Background(), k.diskKey())
	if err != nil {
		log.Printf("screencache: disk read %s: %v", k.Screen, err)
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Config == nil {
		log.Printf("screencache: dropping unreadable entry for %s", k.Screen)
		_ = c.disk.Delete(context.Background(), k.diskKey())
		return Entry{}, false
	}
	c.entries.SetWithTTL(k, e, 1, deadline.Sub(c.now()))
	return e, true
}

// Put stores e for metadata.cacheTTL seconds. A zero TTL drops the key.
func (c *Cache) Put(k Key, e Entry) {
	if e.Config == nil {
		c.Invalidate(k)
		return
	}
	ttl := time.Duration(e.Config.Metadata.CacheTTL) * time.Second
	c.entries.SetWithTTL(k, e, 1, ttl)
	if c.disk == nil {
		return
	}
	if ttl <= 0 {
		_ = c.disk.Delete(context.Background(), k.diskKey())
		return
	}
	raw, err := json.Marshal(e)
	if err == nil {
		err = c.disk.Put(context.Background(), k.diskKey(), raw, ttl)
	}
	if err != nil {
		log.Printf("screencache: disk write %s: %v", k.Screen, err)
	}
}

func (c *Cache) Invalidate(k Key) {
	c.entries.Delete(k)
	if c.disk != nil {
		_ = c.disk.Delete(context.Background(), k.diskKey())
	}
}

// InvalidateScreen drops every variant and user entry of a screen.
func (c *Cache) InvalidateScreen(name string) int {
	n := c.entries.DeleteFunc(func(k Key) bool { return k.Screen == name })
	if c.disk != nil {
		prefix := name + "|"
		m, err := c.disk.DeleteFunc(context.Background(), func(key string) bool { return strings.HasPrefix(key, prefix) })
		if err != nil {
			log.Printf("screencache: disk invalidate %s: %v", name, err)
		}
		if m > n {
			n = m
		}
	}
	return n
}

func (c *Cache) Clear() {
	c.entries.Clear()
	if c.disk != nil {
		_ = c.disk.Clear(context.Background())
	}
}

func (c *Cache) Len() int {
	return c.entries.Len()
}
