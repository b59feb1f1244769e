package screen

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdui/internal/gateway/revision"
	"sdui/internal/screen"
)

func strPtr(s string) *string { return &s }

func featuredStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(revision.New())
	_, err := s.Replace(context.Background(), "casino", screen.DefaultVariant, &screen.ScreenConfig{
		Layout: &screen.Layout{
			Type: screen.LayoutSections,
			Sections: []*screen.Section{
				{ID: "hero", Type: screen.SectionHero, Components: screen.NodeList{{ID: "banner", Type: "Banner"}}},
				{ID: "featured", Type: screen.SectionGrid, Components: screen.NodeList{{ID: "g1", Type: "GameTile"}}},
			},
		},
		Metadata: screen.Metadata{Name: "Casino", CacheTTL: 60},
	})
	require.NoError(t, err)
	return s
}

func TestUpdateCreatesMissingScreen(t *testing.T) {
	rev := revision.New()
	s := NewStore(rev)
	before := rev.Current()

	cfg, err := s.Update(context.Background(), "home", screen.DefaultVariant, ConfigPatch{
		Metadata: &MetadataPatch{Name: strPtr("Home")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.Metadata.Version)
	assert.Equal(t, "Home", cfg.Metadata.Name)
	assert.Equal(t, defaultCacheTTL, cfg.Metadata.CacheTTL)
	assert.Greater(t, rev.Current(), before)

	got, err := s.Get(context.Background(), "home", "")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestUpdateMissingVariantIsNotFound(t *testing.T) {
	s := featuredStore(t)
	rev := s.Revision().Current()

	_, err := s.Update(context.Background(), "casino", "B", ConfigPatch{Metadata: &MetadataPatch{Name: strPtr("x")}})
	require.ErrorIs(t, err, screen.ErrNotFound)
	assert.Equal(t, rev, s.Revision().Current())
	assert.Len(t, s.List(context.Background())[0].Variants, 1)
}

func TestGetUnknownScreen(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Get(context.Background(), "nope", "")
	assert.ErrorIs(t, err, screen.ErrNotFound)
}

func TestGetReturnsCopies(t *testing.T) {
	s := featuredStore(t)
	a, err := s.Get(context.Background(), "casino", "")
	require.NoError(t, err)
	a.Layout.Sections[0].Components[0].Type = "Mutated"
	a.Metadata.Name = "Mutated"

	b, err := s.Get(context.Background(), "casino", "")
	require.NoError(t, err)
	assert.Equal(t, "Banner", b.Layout.Sections[0].Components[0].Type)
	assert.Equal(t, "Casino", b.Metadata.Name)
}

func TestPatchRejectsBothShapes(t *testing.T) {
	s := featuredStore(t)
	_, err := s.Update(context.Background(), "casino", "", ConfigPatch{
		Layout:     &LayoutPatch{},
		Components: &screen.NodeList{},
	})
	assert.True(t, screen.IsValidation(err))
}

func TestPatchSwitchesShape(t *testing.T) {
	s := featuredStore(t)
	cfg, err := s.Update(context.Background(), "casino", "", ConfigPatch{
		Components: &screen.NodeList{{ID: "only", Type: "Text"}},
	})
	require.NoError(t, err)
	assert.Nil(t, cfg.Layout)
	assert.Equal(t, screen.ShapeComponents, cfg.Shape())
	assert.Equal(t, "Casino", cfg.Metadata.Name)
}

func TestResolveVariantPrecedence(t *testing.T) {
	s := featuredStore(t)
	_, err := s.CreateVariant(context.Background(), "casino", "B", nil, 50)
	require.NoError(t, err)

	_, served, err := s.Resolve(context.Background(), "casino", Target{ExperimentGroup: "B"})
	require.NoError(t, err)
	assert.Equal(t, "B", served)

	_, served, err = s.Resolve(context.Background(), "casino", Target{Variant: "default", ExperimentGroup: "B"})
	require.NoError(t, err)
	assert.Equal(t, "default", served)

	_, served, err = s.Resolve(context.Background(), "casino", Target{ExperimentGroup: "Z"})
	require.NoError(t, err)
	assert.Equal(t, "default", served)
}

func TestCreateVariant(t *testing.T) {
	s := featuredStore(t)
	cfg, err := s.CreateVariant(context.Background(), "casino", "B", nil, 25)
	require.NoError(t, err)
	assert.True(t, cfg.Metadata.IsVariant)
	assert.Equal(t, 25.0, cfg.Metadata.TrafficSplit)
	assert.Equal(t, int64(1), cfg.Metadata.Version)
	assert.NotNil(t, cfg.FindNode("g1"))

	_, err = s.CreateVariant(context.Background(), "casino", "C", nil, 101)
	assert.True(t, screen.IsValidation(err))
	_, err = s.CreateVariant(context.Background(), "missing", "B", nil, 10)
	assert.ErrorIs(t, err, screen.ErrNotFound)
	_, err = s.CreateVariant(context.Background(), "casino", screen.DefaultVariant, nil, 10)
	assert.True(t, screen.IsValidation(err))
}

func TestAddAndRemoveComponentInSection(t *testing.T) {
	s := featuredStore(t)
	ctx := context.Background()
	before, err := s.Get(ctx, "casino", "")
	require.NoError(t, err)

	added, err := s.AddComponent(ctx, "casino", "", &screen.ComponentNode{ID: "X", Type: "GameTile"}, PositionHint{SectionID: "featured"})
	require.NoError(t, err)
	assert.Equal(t, "X", added.ID)

	cfg, err := s.Get(ctx, "casino", "")
	require.NoError(t, err)
	assert.Equal(t, before.Metadata.Version+1, cfg.Metadata.Version)
	featured := cfg.Layout.Sections[1].Components
	require.Len(t, featured, 2)
	assert.Equal(t, "X", featured[1].ID)

	removed, err := s.RemoveComponent(ctx, "casino", "", "X")
	require.NoError(t, err)
	assert.True(t, removed)
	cfg, err = s.Get(ctx, "casino", "")
	require.NoError(t, err)
	assert.Equal(t, before.Metadata.Version+2, cfg.Metadata.Version)
	assert.Nil(t, cfg.FindNode("X"))

	removed, err = s.RemoveComponent(ctx, "casino", "", "X")
	require.NoError(t, err)
	assert.False(t, removed)
	cfg, err = s.Get(ctx, "casino", "")
	require.NoError(t, err)
	assert.Equal(t, before.Metadata.Version+2, cfg.Metadata.Version)
}

func TestAddComponentFallsBackToFirstSection(t *testing.T) {
	s := featuredStore(t)
	added, err := s.AddComponent(context.Background(), "casino", "", &screen.ComponentNode{Type: "Text"}, PositionHint{SectionID: "nope"})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)

	cfg, err := s.Get(context.Background(), "casino", "")
	require.NoError(t, err)
	assert.Len(t, cfg.Layout.Sections[0].Components, 2)
}

func TestAddComponentRejectsDuplicateID(t *testing.T) {
	s := featuredStore(t)
	_, err := s.AddComponent(context.Background(), "casino", "", &screen.ComponentNode{ID: "g1", Type: "Text"}, PositionHint{})
	assert.True(t, screen.IsValidation(err))
}

func TestAddComponentCreatesMainSection(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Update(context.Background(), "empty", "", ConfigPatch{})
	require.NoError(t, err)
	_, err = s.AddComponent(context.Background(), "empty", "", &screen.ComponentNode{ID: "a", Type: "Text"}, PositionHint{})
	require.NoError(t, err)

	cfg, err := s.Get(context.Background(), "empty", "")
	require.NoError(t, err)
	require.Len(t, cfg.Layout.Sections, 1)
	assert.Equal(t, "main", cfg.Layout.Sections[0].ID)
}

func TestUpdateComponentProps(t *testing.T) {
	s := featuredStore(t)
	_, err := s.UpdateComponentProps(context.Background(), "casino", "", "g1", map[string]any{"title": "Roulette", "badge": "new"})
	require.NoError(t, err)
	n, err := s.UpdateComponentProps(context.Background(), "casino", "", "g1", map[string]any{"badge": nil})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Roulette"}, n.Props)

	_, err = s.UpdateComponentProps(context.Background(), "casino", "", "missing", map[string]any{"a": 1})
	assert.ErrorIs(t, err, screen.ErrNotFound)
}

type failingBackend struct{}

func (failingBackend) Load(context.Context) ([]Record, error) { return nil, nil }
func (failingBackend) Save(context.Context, Record) error     { return errors.New("disk full") }
func (failingBackend) Close() error                           { return nil }

func TestBackendFailureLeavesStoreUnchanged(t *testing.T) {
	rev := revision.New()
	s := NewStore(rev, WithBackend(failingBackend{}))
	_, err := s.Update(context.Background(), "home", "", ConfigPatch{})
	require.Error(t, err)
	assert.Equal(t, int64(0), rev.Current())
	_, err = s.Get(context.Background(), "home", "")
	assert.ErrorIs(t, err, screen.ErrNotFound)
}

func TestArchiveKeepsHistory(t *testing.T) {
	archive := NewMemoryArchive()
	s := NewStore(nil, WithArchive(archive))
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		_, err := s.Update(ctx, "home", "", ConfigPatch{Metadata: &MetadataPatch{Name: strPtr(name)}})
		require.NoError(t, err)
	}
	versions, err := s.History(ctx, "home", "")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, versions)

	old, err := s.Version(ctx, "home", "", 2)
	require.NoError(t, err)
	assert.Equal(t, "b", old.Metadata.Name)
}

func TestBoltBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screens.db")
	b, err := NewBoltBackend(path)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(nil, WithBackend(b), WithClock(func() time.Time { return now }))
	_, err = s.AddComponent(context.Background(), "home", "", &screen.ComponentNode{ID: "a", Type: "Text"}, PositionHint{})
	require.ErrorIs(t, err, screen.ErrNotFound)
	_, err = s.Update(context.Background(), "home", "", ConfigPatch{Metadata: &MetadataPatch{Name: strPtr("Home")}})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = NewBoltBackend(path)
	require.NoError(t, err)
	defer b.Close()
	restored := NewStore(nil, WithBackend(b))
	n, err := restored.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	cfg, err := restored.Get(context.Background(), "home", "")
	require.NoError(t, err)
	assert.Equal(t, "Home", cfg.Metadata.Name)
	assert.Equal(t, now, cfg.Metadata.LastUpdated)
}

func TestConcurrentUpdatesSerializePerVariant(t *testing.T) {
	s := featuredStore(t)
	start, err := s.Get(context.Background(), "casino", "")
	require.NoError(t, err)

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateComponentProps(context.Background(), "casino", "", "g1", map[string]any{"n": 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cfg, err := s.Get(context.Background(), "casino", "")
	require.NoError(t, err)
	assert.Equal(t, start.Metadata.Version+writers, cfg.Metadata.Version)
}

// n successful updates on a fresh screen end at version n and the global
// counter never goes backwards.
func TestVersionMonotonicProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("each update bumps by one", prop.ForAll(
		func(n int) bool {
			rev := revision.New()
			s := NewStore(rev)
			last := rev.Current()
			for i := 0; i < n; i++ {
				cfg, err := s.Update(context.Background(), "p", "", ConfigPatch{})
				if err != nil || cfg.Metadata.Version != int64(i+1) {
					return false
				}
				if rev.Current() <= last {
					return false
				}
				last = rev.Current()
			}
			return true
		},
		gen.IntRange(1, 20),
	))
	properties.TestingRun(t)
}
