package screen

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sdui/internal/gateway/revision"
	"sdui/internal/screen"
)

const defaultCacheTTL = 300

type variantKey struct {
	screen  string
	variant string
}

// Target selects a config for a client.
type Target struct {
	Variant         string
	UserID          string
	ExperimentGroup string
}

// PositionHint says where AddComponent should place a node.
type PositionHint struct {
	SectionID string `json:"sectionId,omitempty"`
}

type VariantSummary struct {
	Name         string    `json:"name"`
	Version      int64     `json:"version"`
	LastUpdated  time.Time `json:"lastUpdated"`
	IsVariant    bool      `json:"isVariant,omitempty"`
	TrafficSplit float64   `json:"trafficSplit,omitempty"`
}

type Summary struct {
	Name     string           `json:"name"`
	Variants []VariantSummary `json:"variants"`
}

// Store holds screen configs per screen and variant. Mutations to the same
// (screen, variant) are serialized; different keys proceed independently.
// Reads and writes exchange deep copies only.
type Store struct {
	mu      sync.RWMutex
	screens map[string]map[string]*screen.ScreenConfig
	locks   map[variantKey]*sync.Mutex

	rev     *revision.Counter
	backend Backend
	archive Archive
	now     func() time.Time
}

type Option func(*Store)

func WithBackend(b Backend) Option {
	return func(s *Store) { s.backend = b }
}

func WithArchive(a Archive) Option {
	return func(s *Store) { s.archive = a }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(rev *revision.Counter, opts ...Option) *Store {
	if rev == nil {
		rev = revision.New()
	}
	s := &Store{
		screens: make(map[string]map[string]*screen.ScreenConfig),
		locks:   make(map[variantKey]*sync.Mutex),
		rev:     rev,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads every record from the backend. It is meant to run once at
// startup before the store is shared.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s == nil || s.backend == nil {
		return 0, nil
	}
	recs, err := s.backend.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load screens: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range recs {
		if rec.Config == nil || strings.TrimSpace(rec.Screen) == "" {
			continue
		}
		variants := s.screens[rec.Screen]
		if variants == nil {
			variants = make(map[string]*screen.ScreenConfig)
			s.screens[rec.Screen] = variants
		}
		variants[normalizeVariant(rec.Variant)] = rec.Config.Clone()
		n++
	}
	if n > 0 {
		s.rev.Bump()
	}
	return n, nil
}

func (s *Store) Revision() *revision.Counter {
	return s.rev
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", screen.Invalid("screenName", "screen name is required")
	}
	return name, nil
}

func normalizeVariant(variant string) string {
	variant = strings.TrimSpace(variant)
	if variant == "" {
		return screen.DefaultVariant
	}
	return variant
}

// Get returns the config for the variant, falling back to the default
// variant when the screen has no such variant.
func (s *Store) Get(_ context.Context, name, variant string) (*screen.ScreenConfig, error) {
	cfg, _, err := s.get(name, variant)
	return cfg, err
}

func (s *Store) get(name, variant string) (*screen.ScreenConfig, string, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, "", err
	}
	variant = normalizeVariant(variant)

	s.mu.RLock()
	defer s.mu.RUnlock()
	variants, ok := s.screens[name]
	if !ok {
		return nil, "", screen.NotFound("screen", name)
	}
	if cfg, ok := variants[variant]; ok {
		return cfg.Clone(), variant, nil
	}
	if cfg, ok := variants[screen.DefaultVariant]; ok {
		return cfg.Clone(), screen.DefaultVariant, nil
	}
	return nil, "", screen.NotFound("variant", name+"/"+variant)
}

// Resolve picks the variant for a target: the explicit variant, else the
// experiment group, else the default. It returns the variant actually served.
func (s *Store) Resolve(_ context.Context, name string, t Target) (*screen.ScreenConfig, string, error) {
	variant := strings.TrimSpace(t.Variant)
	if variant == "" {
		variant = strings.TrimSpace(t.ExperimentGroup)
	}
	return s.get(name, variant)
}

// Update merges a partial config into (name, variant). A missing screen is
// created with a synthesized default variant; a missing non-default variant
// is NotFound.
func (s *Store) Update(ctx context.Context, name, variant string, patch ConfigPatch) (*screen.ScreenConfig, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	variant = normalizeVariant(variant)
	return s.mutate(ctx, name, variant, variant == screen.DefaultVariant, func(cfg *screen.ScreenConfig) error {
		patch.apply(cfg)
		return nil
	})
}

// Replace swaps the whole config of (name, variant). The version continues
// from the stored one.
func (s *Store) Replace(ctx context.Context, name, variant string, cfg *screen.ScreenConfig) (*screen.ScreenConfig, error) {
	if cfg == nil {
		return nil, screen.Invalid("config", "config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	variant = normalizeVariant(variant)
	return s.mutate(ctx, name, variant, true, func(cur *screen.ScreenConfig) error {
		next := cfg.Clone()
		cur.Layout = next.Layout
		cur.Components = next.Components
		next.Metadata.Version = cur.Metadata.Version
		cur.Metadata = next.Metadata
		return nil
	})
}

// CreateVariant stores a variant of an existing screen with its traffic
// weight. Bucketing is left to the caller.
func (s *Store) CreateVariant(ctx context.Context, name, variantName string, cfg *screen.ScreenConfig, trafficSplit float64) (*screen.ScreenConfig, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	variantName = strings.TrimSpace(variantName)
	if variantName == "" {
		return nil, screen.Invalid("variantName", "variant name is required")
	}
	if variantName == screen.DefaultVariant {
		return nil, screen.Invalid("variantName", "%q is reserved", screen.DefaultVariant)
	}
	if trafficSplit < 0 || trafficSplit > 100 {
		return nil, screen.Invalid("trafficSplit", "must be between 0 and 100")
	}
	if cfg != nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	variants, ok := s.screens[name]
	var base *screen.ScreenConfig
	if ok {
		base = variants[screen.DefaultVariant].Clone()
	}
	s.mu.RUnlock()
	if !ok {
		return nil, screen.NotFound("screen", name)
	}
	if cfg == nil {
		cfg = base
	}
	if cfg == nil {
		cfg = &screen.ScreenConfig{}
	}

	return s.mutate(ctx, name, variantName, true, func(cur *screen.ScreenConfig) error {
		next := cfg.Clone()
		cur.Layout = next.Layout
		cur.Components = next.Components
		next.Metadata.Version = cur.Metadata.Version
		if next.Metadata.Name == "" {
			next.Metadata.Name = cur.Metadata.Name
		}
		cur.Metadata = next.Metadata
		cur.Metadata.IsVariant = true
		cur.Metadata.TrafficSplit = trafficSplit
		return nil
	})
}

// AddComponent appends node into the section named by the hint, else the
// first section. Flat configs append to their component list.
func (s *Store) AddComponent(ctx context.Context, name, variant string, node *screen.ComponentNode, hint PositionHint) (*screen.ComponentNode, error) {
	if node == nil {
		return nil, screen.Invalid("component", "component is required")
	}
	if strings.TrimSpace(node.Type) == "" {
		return nil, screen.Invalid("component.type", "type is required")
	}
	if err := (&screen.ScreenConfig{Components: screen.NodeList{node}}).Validate(); err != nil {
		return nil, err
	}
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	variant = normalizeVariant(variant)
	added := node.Clone()
	if strings.TrimSpace(added.ID) == "" {
		added.ID = uuid.NewString()
	}

	if _, err := s.mutateExisting(ctx, name, variant, func(cfg *screen.ScreenConfig) error {
		if cfg.FindNode(added.ID) != nil {
			return screen.Invalid("component.id", "id %q already exists", added.ID)
		}
		insertNode(cfg, added, hint)
		return nil
	}); err != nil {
		return nil, err
	}
	return added.Clone(), nil
}

func insertNode(cfg *screen.ScreenConfig, node *screen.ComponentNode, hint PositionHint) {
	if cfg.Shape() == screen.ShapeComponents {
		cfg.Components = append(cfg.Components, node)
		return
	}
	if cfg.Layout == nil {
		cfg.Layout = &screen.Layout{Type: screen.LayoutSections}
	}
	if len(cfg.Layout.Sections) > 0 {
		target := cfg.Layout.Sections[0]
		if id := strings.TrimSpace(hint.SectionID); id != "" {
			for _, sec := range cfg.Layout.Sections {
				if sec.ID == id {
					target = sec
					break
				}
			}
		}
		target.Components = append(target.Components, node)
		return
	}
	if len(cfg.Layout.Tabs) > 0 {
		cfg.Layout.Tabs[0].Components = append(cfg.Layout.Tabs[0].Components, node)
		return
	}
	cfg.Layout.Sections = []*screen.Section{{
		ID:         "main",
		Type:       screen.SectionDefault,
		Components: screen.NodeList{node},
	}}
}

// RemoveComponent deletes the first node with the id anywhere in the tree.
// It reports whether a node was removed; nothing is bumped otherwise.
func (s *Store) RemoveComponent(ctx context.Context, name, variant, componentID string) (bool, error) {
	name, err := normalizeName(name)
	if err != nil {
		return false, err
	}
	variant = normalizeVariant(variant)
	_, err = s.mutateExisting(ctx, name, variant, func(cfg *screen.ScreenConfig) error {
		if !cfg.RemoveNode(componentID) {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateComponentProps merges patch into the node's props. A nil value
// deletes the key.
func (s *Store) UpdateComponentProps(ctx context.Context, name, variant, componentID string, patch map[string]any) (*screen.ComponentNode, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	variant = normalizeVariant(variant)
	var updated *screen.ComponentNode
	_, err = s.mutateExisting(ctx, name, variant, func(cfg *screen.ScreenConfig) error {
		n := cfg.FindNode(componentID)
		if n == nil {
			return screen.NotFound("component", componentID)
		}
		if n.Props == nil {
			n.Props = make(map[string]any, len(patch))
		}
		for k, v := range patch {
			if v == nil {
				delete(n.Props, k)
				continue
			}
			n.Props[k] = screen.CloneValue(v)
		}
		updated = n.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// List returns every screen with its variants, sorted by name.
func (s *Store) List(_ context.Context) []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.screens))
	for name, variants := range s.screens {
		sum := Summary{Name: name}
		for vname, cfg := range variants {
			sum.Variants = append(sum.Variants, VariantSummary{
				Name:         vname,
				Version:      cfg.Metadata.Version,
				LastUpdated:  cfg.Metadata.LastUpdated,
				IsVariant:    cfg.Metadata.IsVariant,
				TrafficSplit: cfg.Metadata.TrafficSplit,
			})
		}
		sort.Slice(sum.Variants, func(i, j int) bool { return sum.Variants[i].Name < sum.Variants[j].Name })
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History lists archived versions of (name, variant).
func (s *Store) History(ctx context.Context, name, variant string) ([]int64, error) {
	if s.archive == nil {
		return nil, nil
	}
	return s.archive.List(ctx, strings.TrimSpace(name), normalizeVariant(variant))
}

// Version returns an archived version of (name, variant).
func (s *Store) Version(ctx context.Context, name, variant string, version int64) (*screen.ScreenConfig, error) {
	if s.archive == nil {
		return nil, screen.NotFound("version", fmt.Sprintf("%s/%s@%d", name, variant, version))
	}
	return s.archive.Get(ctx, strings.TrimSpace(name), normalizeVariant(variant), version)
}

var errNoChange = errors.New("no change")

func (s *Store) lockFor(k variantKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[k]
	if !ok {
		m = &sync.Mutex{}
		s.locks[k] = m
	}
	return m
}

// mutateExisting is mutate for operations that never create.
func (s *Store) mutateExisting(ctx context.Context, name, variant string, fn func(*screen.ScreenConfig) error) (*screen.ScreenConfig, error) {
	return s.mutate(ctx, name, variant, false, fn)
}

// mutate runs a read-modify-write on one (screen, variant) under its lock.
// The change is validated and persisted before it becomes visible; any error
// leaves the store unchanged.
func (s *Store) mutate(ctx context.Context, name, variant string, create bool, fn func(*screen.ScreenConfig) error) (*screen.ScreenConfig, error) {
	k := variantKey{screen: name, variant: variant}
	lock := s.lockFor(k)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	variants, screenExists := s.screens[name]
	cur, variantExists := variants[variant]
	s.mu.RUnlock()

	var working *screen.ScreenConfig
	switch {
	case variantExists:
		working = cur.Clone()
	case !screenExists && create && variant == screen.DefaultVariant:
		working = synthesize(name)
	case screenExists && create && variant != screen.DefaultVariant:
		working = synthesize(name)
	case !screenExists:
		return nil, screen.NotFound("screen", name)
	default:
		return nil, screen.NotFound("variant", name+"/"+variant)
	}

	if err := fn(working); err != nil {
		return nil, err
	}
	if err := working.Validate(); err != nil {
		return nil, err
	}
	working.Metadata.Version++
	working.Metadata.LastUpdated = s.now().UTC()
	if working.Metadata.Name == "" {
		working.Metadata.Name = name
	}

	rec := Record{Screen: name, Variant: variant, Config: working}
	if s.backend != nil {
		if err := s.backend.Save(ctx, rec); err != nil {
			return nil, fmt.Errorf("persist %s/%s: %w", name, variant, err)
		}
	}

	s.mu.Lock()
	variants = s.screens[name]
	if variants == nil {
		variants = make(map[string]*screen.ScreenConfig)
		s.screens[name] = variants
	}
	variants[variant] = working
	s.mu.Unlock()
	s.rev.Bump()

	if s.archive != nil {
		if err := s.archive.Put(ctx, rec); err != nil {
			log.Printf("screen store: archive %s/%s v%d failed: %v", name, variant, working.Metadata.Version, err)
		}
	}
	return working.Clone(), nil
}

func synthesize(name string) *screen.ScreenConfig {
	return &screen.ScreenConfig{
		Layout: &screen.Layout{
			Type:     screen.LayoutSections,
			Sections: []*screen.Section{},
		},
		Metadata: screen.Metadata{
			Name:     name,
			Version:  0,
			CacheTTL: defaultCacheTTL,
		},
	}
}
