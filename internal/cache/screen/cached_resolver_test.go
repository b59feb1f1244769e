package screen

import (
	"context"
	"errors"
	"testing"

	"sdui/internal/gateway/revision"
	model "sdui/internal/screen"
)

func loader(calls *int, ttl int) LoadFunc {
	return func(context.Context) (Resolved, error) {
		*calls++
		return Resolved{
			Config:  &model.ScreenConfig{Metadata: model.Metadata{Name: "home", Version: int64(*calls), CacheTTL: ttl}},
			Variant: model.DefaultVariant,
		}, nil
	}
}

func TestCachedResolverHitsUntilRevisionChanges(t *testing.T) {
	rev := revision.New()
	c := NewCachedResolver(rev, CacheConfig{})
	key := Key{Screen: "home", Platform: "ios"}
	calls := 0

	first, err := c.GetOrLoad(context.Background(), key, loader(&calls, 60))
	if err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	second, _ := c.GetOrLoad(context.Background(), key, loader(&calls, 60))
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if first.Config.Metadata.Version != second.Config.Metadata.Version {
		t.Fatalf("hit returned a different config")
	}

	second.Config.Metadata.Name = "mutated"
	third, _ := c.GetOrLoad(context.Background(), key, loader(&calls, 60))
	if third.Config.Metadata.Name != "home" {
		t.Fatalf("cache leaked a caller mutation")
	}

	rev.Bump()
	fourth, _ := c.GetOrLoad(context.Background(), key, loader(&calls, 60))
	if calls != 2 || fourth.Config.Metadata.Version != 2 {
		t.Fatalf("revision bump did not invalidate: calls=%d", calls)
	}
}

func TestCachedResolverZeroTTLNotCached(t *testing.T) {
	c := NewCachedResolver(revision.New(), CacheConfig{})
	calls := 0
	key := Key{Screen: "live"}
	c.GetOrLoad(context.Background(), key, loader(&calls, 0))
	c.GetOrLoad(context.Background(), key, loader(&calls, 0))
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestCachedResolverDoesNotCacheErrors(t *testing.T) {
	c := NewCachedResolver(revision.New(), CacheConfig{})
	calls := 0
	fail := func(context.Context) (Resolved, error) {
		calls++
		return Resolved{}, errors.New("down")
	}
	key := Key{Screen: "home"}
	if _, err := c.GetOrLoad(context.Background(), key, fail); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := c.GetOrLoad(context.Background(), key, fail); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestCachedResolverPurge(t *testing.T) {
	c := NewCachedResolver(revision.New(), CacheConfig{})
	calls := 0
	c.GetOrLoad(context.Background(), Key{Screen: "home"}, loader(&calls, 60))
	c.GetOrLoad(context.Background(), Key{Screen: "sports"}, loader(&calls, 60))
	if n := c.Purge("home"); n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
}
