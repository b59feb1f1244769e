package screen

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sdui/internal/screen"
)

type MemoryArchive struct {
	mu   sync.RWMutex
	data map[variantKey]map[int64]*screen.ScreenConfig
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		data: make(map[variantKey]map[int64]*screen.ScreenConfig),
	}
}

func (a *MemoryArchive) Put(_ context.Context, rec Record) error {
	if rec.Config == nil {
		return fmt.Errorf("config is required")
	}
	k := variantKey{screen: rec.Screen, variant: rec.Variant}
	a.mu.Lock()
	defer a.mu.Unlock()
	versions := a.data[k]
	if versions == nil {
		versions = make(map[int64]*screen.ScreenConfig)
		a.data[k] = versions
	}
	versions[rec.Config.Metadata.Version] = rec.Config.Clone()
	return nil
}

func (a *MemoryArchive) Get(_ context.Context, screenName, variant string, version int64) (*screen.ScreenConfig, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cfg, ok := a.data[variantKey{screen: screenName, variant: variant}][version]
	if !ok {
		return nil, screen.NotFound("version", fmt.Sprintf("%s/%s@%d", screenName, variant, version))
	}
	return cfg.Clone(), nil
}

func (a *MemoryArchive) List(_ context.Context, screenName, variant string) ([]int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	versions := a.data[variantKey{screen: screenName, variant: variant}]
	out := make([]int64, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
