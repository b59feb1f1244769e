package disk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestPerEntryDeadline(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	s, err := Open(Config{Root: t.TempDir(), MaxEntries: 10})
	require.NoError(t, err)
	s.WithClock(clk.now)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "short", []byte("a"), time.Second))
	require.NoError(t, s.Put(ctx, "long", []byte("b"), time.Minute))

	clk.t = clk.t.Add(2 * time.Second)
	_, _, ok, err := s.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)

	raw, deadline, ok, err := s.Get(ctx, "long")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", string(raw))
	assert.Equal(t, time.Unix(1_700_000_060, 0), deadline)
}

func TestZeroTTLRemoves(t *testing.T) {
	s, err := Open(Config{Root: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, s.Put(ctx, "k", []byte("v2"), 0))
	assert.Equal(t, 0, s.Len())
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	s, err := Open(Config{Root: t.TempDir(), MaxEntries: 2})
	require.NoError(t, err)
	s.WithClock(clk.now)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", []byte("1"), time.Hour))
	clk.t = clk.t.Add(time.Second)
	require.NoError(t, s.Put(ctx, "b", []byte("2"), time.Hour))
	clk.t = clk.t.Add(time.Second)
	_, _, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	clk.t = clk.t.Add(time.Second)
	require.NoError(t, s.Put(ctx, "c", []byte("3"), time.Hour))

	_, _, ok, _ = s.Get(ctx, "b")
	assert.False(t, ok)
	_, _, ok, _ = s.Get(ctx, "a")
	assert.True(t, ok)
}

func TestSurvivesReopen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	s, err := Open(Config{Root: root})
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "screen|home", []byte(`{"x":1}`), time.Hour))

	again, err := Open(Config{Root: root})
	require.NoError(t, err)
	raw, _, ok, err := again.Get(ctx, "screen|home")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"x":1}`, string(raw))

	n, err := again.DeleteFunc(ctx, func(k string) bool { return k == "screen|home" })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
