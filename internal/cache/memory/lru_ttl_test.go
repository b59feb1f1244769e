package memory

import (
	"testing"
	"time"
)

func TestLRUTTLPerEntryExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewLRUTTL[string, int](8, 0, time.Minute).WithClock(func() time.Time { return now })

	c.SetWithTTL("short", 1, 0, 5*time.Second)
	c.SetWithTTL("long", 2, 0, time.Hour)
	c.Set("default", 3, 0)

	now = now.Add(5 * time.Second)
	if _, ok := c.Get("short"); ok {
		t.Fatalf("short entry should expire exactly at its deadline")
	}
	if v, ok := c.Get("long"); !ok || v != 2 {
		t.Fatalf("long = %v, %v", v, ok)
	}
	if _, ok := c.Get("default"); !ok {
		t.Fatalf("default ttl entry expired early")
	}

	now = now.Add(time.Minute)
	if _, ok := c.Get("default"); ok {
		t.Fatalf("default ttl entry should have expired")
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
}

func TestLRUTTLZeroTTLRemoves(t *testing.T) {
	c := NewLRUTTL[string, int](8, 0, time.Minute)
	c.Set("k", 1, 0)
	c.SetWithTTL("k", 2, 0, 0)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("zero ttl must not be cached")
	}
}

func TestLRUTTLEvictsLeastRecent(t *testing.T) {
	c := NewLRUTTL[string, int](2, 0, time.Minute)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Get("a")
	c.Set("c", 3, 0)
	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("a should survive")
	}
}

func TestLRUTTLByteBudget(t *testing.T) {
	c := NewLRUTTL[string, int](10, 10, time.Minute)
	c.Set("a", 1, 6)
	c.Set("b", 2, 6)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("a should be evicted over byte budget")
	}
}

func TestLRUTTLDeleteFunc(t *testing.T) {
	c := NewLRUTTL[string, int](10, 0, time.Minute)
	c.Set("home|a", 1, 0)
	c.Set("home|b", 2, 0)
	c.Set("sports|a", 3, 0)
	if n := c.DeleteFunc(func(k string) bool { return len(k) > 4 && k[:5] == "home|" }); n != 2 {
		t.Fatalf("deleted %d, want 2", n)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d", c.Len())
	}
}
