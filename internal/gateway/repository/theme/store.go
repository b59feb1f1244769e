package theme

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"sdui/internal/gateway/revision"
	"sdui/internal/screen"
)

type Theme struct {
	Variant   string         `json:"variant"`
	Version   int64          `json:"version"`
	Values    map[string]any `json:"values"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type Store struct {
	mu     sync.RWMutex
	themes map[string]Theme
	rev    *revision.Counter
	now    func() time.Time
}

func New(rev *revision.Counter) *Store {
	return &Store{
		themes: make(map[string]Theme),
		rev:    rev,
		now:    time.Now,
	}
}

func (s *Store) Get(_ context.Context, variant string) (Theme, error) {
	variant = normalize(variant)
	s.mu.RLock()
	t, ok := s.themes[variant]
	s.mu.RUnlock()
	if !ok {
		return Theme{}, screen.NotFound("theme", variant)
	}
	t.Values = screen.CloneMap(t.Values)
	return t, nil
}

// Put replaces the theme values for a variant.
func (s *Store) Put(_ context.Context, variant string, values map[string]any) (Theme, error) {
	variant = normalize(variant)
	s.mu.Lock()
	cur := s.themes[variant]
	next := Theme{
		Variant:   variant,
		Version:   cur.Version + 1,
		Values:    screen.CloneMap(values),
		UpdatedAt: s.now().UTC(),
	}
	if next.Values == nil {
		next.Values = map[string]any{}
	}
	s.themes[variant] = next
	s.mu.Unlock()
	s.rev.Bump()

	next.Values = screen.CloneMap(next.Values)
	return next, nil
}

func (s *Store) Variants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.themes))
	for v := range s.themes {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func normalize(variant string) string {
	variant = strings.TrimSpace(variant)
	if variant == "" {
		return screen.DefaultVariant
	}
	return variant
}
