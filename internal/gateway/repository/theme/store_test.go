package theme

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdui/internal/gateway/revision"
	"sdui/internal/screen"
)

func TestPutBumpsVersions(t *testing.T) {
	rev := revision.New()
	s := New(rev)

	_, err := s.Get(context.Background(), "dark")
	assert.ErrorIs(t, err, screen.ErrNotFound)

	first, err := s.Put(context.Background(), "dark", map[string]any{"primary": "#000"})
	require.NoError(t, err)
	second, err := s.Put(context.Background(), "dark", map[string]any{"primary": "#111"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)
	assert.Equal(t, int64(2), second.Version)
	assert.Equal(t, int64(2), rev.Current())

	got, err := s.Get(context.Background(), "dark")
	require.NoError(t, err)
	assert.Equal(t, "#111", got.Values["primary"])

	got.Values["primary"] = "mutated"
	again, _ := s.Get(context.Background(), "dark")
	assert.Equal(t, "#111", again.Values["primary"])
}

func TestEmptyVariantIsDefault(t *testing.T) {
	s := New(revision.New())
	_, err := s.Put(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{screen.DefaultVariant}, s.Variants())
}
