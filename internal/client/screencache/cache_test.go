package screencache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdui/internal/cache/disk"
	"sdui/internal/screen"
)

func cfg(ttl int) *screen.ScreenConfig {
	return &screen.ScreenConfig{Metadata: screen.Metadata{Name: "Home", CacheTTL: ttl}}
}

func TestEntryLivesForCacheTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := New(8).WithClock(func() time.Time { return now })
	k := Key{Screen: "home", Variant: "default", UserID: "u1"}

	c.Put(k, Entry{Config: cfg(60)})
	_, ok := c.Get(k)
	assert.True(t, ok)

	now = now.Add(59 * time.Second)
	_, ok = c.Get(k)
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get(k)
	assert.False(t, ok, "expired read is a miss")
}

func TestZeroTTLIsNotCached(t *testing.T) {
	c := New(8)
	k := Key{Screen: "home"}
	c.Put(k, Entry{Config: cfg(60)})
	c.Put(k, Entry{Config: cfg(0)})
	_, ok := c.Get(k)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestKeysAreIndependent(t *testing.T) {
	c := New(8)
	c.Put(Key{Screen: "home", UserID: "a"}, Entry{Config: cfg(60), Variant: "default"})
	c.Put(Key{Screen: "home", UserID: "b"}, Entry{Config: cfg(60), Variant: "compact"})
	c.Put(Key{Screen: "casino", UserID: "a"}, Entry{Config: cfg(60)})

	e, ok := c.Get(Key{Screen: "home", UserID: "b"})
	assert.True(t, ok)
	assert.Equal(t, "compact", e.Variant)

	assert.Equal(t, 2, c.InvalidateScreen("home"))
	_, ok = c.Get(Key{Screen: "casino", UserID: "a"})
	assert.True(t, ok)
}

func TestDiskTierSurvivesRestart(t *testing.T) {
	root := t.TempDir()
	// reopening sweeps with the wall clock, so stay near it
	now := time.Now()
	clock := func() time.Time { return now }

	store, err := disk.Open(disk.Config{Root: root})
	require.NoError(t, err)
	first := New(8, WithDisk(store)).WithClock(clock)
	k := Key{Screen: "home", Variant: "default", UserID: "u1"}
	first.Put(k, Entry{Config: cfg(60), Variant: "default", ConfigVersion: 9})

	reopened, err := disk.Open(disk.Config{Root: root})
	require.NoError(t, err)
	second := New(8, WithDisk(reopened)).WithClock(clock)
	now = now.Add(30 * time.Second)

	e, ok := second.Get(k)
	require.True(t, ok)
	assert.EqualValues(t, 9, e.ConfigVersion)
	assert.Equal(t, "Home", e.Config.Metadata.Name)
	assert.Equal(t, 1, second.Len(), "promoted into memory")

	now = now.Add(31 * time.Second)
	_, ok = second.Get(k)
	assert.False(t, ok, "memory copy keeps the disk deadline")

	assert.Equal(t, 0, second.InvalidateScreen("home"))
}
