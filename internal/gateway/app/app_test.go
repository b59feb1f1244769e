package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdui/internal/gateway/config"
	screenrepo "sdui/internal/gateway/repository/screen"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:  ":0",
		Env:   "test",
		Store: config.StoreConfig{Backend: "memory"},
	}
}

func TestInitStoresSelectsBackend(t *testing.T) {
	cfg := testConfig(t)
	stores, err := initStores(cfg)
	require.NoError(t, err)
	assert.Nil(t, stores.backend)
	assert.IsType(t, &screenrepo.MemoryArchive{}, stores.archive)

	cfg.Store = config.StoreConfig{Backend: "bolt", BoltPath: filepath.Join(t.TempDir(), "db", "screens.db")}
	stores, err = initStores(cfg)
	require.NoError(t, err)
	assert.IsType(t, &screenrepo.BoltBackend{}, stores.backend)
	require.NoError(t, stores.Close())

	cfg.Store = config.StoreConfig{Backend: "postgres"}
	_, err = initStores(cfg)
	assert.Error(t, err)

	cfg.Store = config.StoreConfig{Backend: "cassandra"}
	_, err = initStores(cfg)
	assert.Error(t, err)
}

func TestNewWithConfigSeedsAndRestores(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = config.StoreConfig{Backend: "bolt", BoltPath: filepath.Join(t.TempDir(), "screens.db")}

	a, err := NewWithConfig(cfg)
	require.NoError(t, err)
	home, err := a.Service().Store().Get(context.Background(), "home", "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, home.Metadata.Version)
	require.NoError(t, a.Shutdown(context.Background()))

	b, err := NewWithConfig(cfg)
	require.NoError(t, err)
	defer b.Shutdown(context.Background())
	home, err = b.Service().Store().Get(context.Background(), "home", "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, home.Metadata.Version, "restored state is not reseeded")
	assert.Positive(t, b.Service().ConfigVersion())
}
