package component

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"sdui/internal/gateway/revision"
	"sdui/internal/screen"
)

// Entry describes one component type: its props contract and where it may
// be used. It is informational; renderers never consult it.
type Entry struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Schema        json.RawMessage `json:"schema,omitempty"`
	DefaultProps  map[string]any  `json:"defaultProps,omitempty"`
	Category      string          `json:"category,omitempty"`
	Variants      []string        `json:"variants,omitempty"`
	Platforms     []string        `json:"platforms,omitempty"`
	MinAppVersion string          `json:"minAppVersion,omitempty"`
	Description   string          `json:"description,omitempty"`
	RegisteredAt  time.Time       `json:"registeredAt"`
}

func (e Entry) clone() Entry {
	e.Schema = append(json.RawMessage(nil), e.Schema...)
	e.DefaultProps = screen.CloneMap(e.DefaultProps)
	e.Variants = append([]string(nil), e.Variants...)
	e.Platforms = append([]string(nil), e.Platforms...)
	return e
}

type Filter struct {
	Category   string
	Platform   string
	AppVersion string
}

type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry

	schemas *lru.Cache[string, *jsonschema.Schema]
	rev     *revision.Counter
	now     func() time.Time
}

func New(rev *revision.Counter) *Registry {
	cache, err := lru.New[string, *jsonschema.Schema](256)
	if err != nil {
		panic(err)
	}
	return &Registry{
		entries: make(map[string]Entry),
		schemas: cache,
		rev:     rev,
		now:     time.Now,
	}
}

// Register upserts by name. The whole entry is replaced.
func (r *Registry) Register(_ context.Context, e Entry) (Entry, error) {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return Entry{}, screen.Invalid("name", "component name is required")
	}
	if e.MinAppVersion != "" {
		if _, err := semver.NewVersion(e.MinAppVersion); err != nil {
			return Entry{}, screen.Invalid("minAppVersion", "invalid version %q", e.MinAppVersion)
		}
	}
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}
	if e.RegisteredAt.IsZero() {
		e.RegisteredAt = r.now().UTC()
	}
	if len(bytes.TrimSpace(e.Schema)) > 0 {
		compiled, err := compile(e)
		if err != nil {
			return Entry{}, screen.Invalid("schema", "%v", err)
		}
		r.schemas.Add(cacheKey(e), compiled)
	}

	stored := e.clone()
	r.mu.Lock()
	r.entries[e.Name] = stored
	r.mu.Unlock()
	r.rev.Bump()
	return stored.clone(), nil
}

func (r *Registry) Get(_ context.Context, name string) (Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		return Entry{}, screen.NotFound("component", name)
	}
	return e.clone(), nil
}

// List returns entries matching every non-empty filter field, sorted by name.
// An entry without MinAppVersion matches any app version.
func (r *Registry) List(_ context.Context, f Filter) ([]Entry, error) {
	var appVersion *semver.Version
	if v := strings.TrimSpace(f.AppVersion); v != "" {
		parsed, err := semver.NewVersion(v)
		if err != nil {
			return nil, screen.Invalid("appVersion", "invalid version %q", v)
		}
		appVersion = parsed
	}

	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if f.Category != "" && !strings.EqualFold(e.Category, f.Category) {
			continue
		}
		if f.Platform != "" && len(e.Platforms) > 0 && !containsFold(e.Platforms, f.Platform) {
			continue
		}
		if appVersion != nil && e.MinAppVersion != "" {
			min, err := semver.NewVersion(e.MinAppVersion)
			if err == nil && appVersion.LessThan(min) {
				continue
			}
		}
		out = append(out, e.clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ValidateProps checks props against the entry's schema. An entry without a
// schema accepts anything.
func (r *Registry) ValidateProps(ctx context.Context, name string, props map[string]any) error {
	e, err := r.Get(ctx, name)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(e.Schema)) == 0 {
		return nil
	}
	key := cacheKey(e)
	compiled, ok := r.schemas.Get(key)
	if !ok {
		compiled, err = compile(e)
		if err != nil {
			return fmt.Errorf("compile schema for %s: %w", name, err)
		}
		r.schemas.Add(key, compiled)
	}

	var doc any = map[string]any{}
	if props != nil {
		// round-trip so typed values (ints, structs) match JSON semantics
		raw, err := json.Marshal(props)
		if err != nil {
			return screen.Invalid("props", "%v", err)
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return screen.Invalid("props", "%v", err)
		}
	}
	if err := compiled.Validate(doc); err != nil {
		return schemaError(err)
	}
	return nil
}

func cacheKey(e Entry) string {
	return e.Name + "|" + e.ID + "|" + e.RegisteredAt.Format(time.RFC3339Nano)
}

func compile(e Entry) (*jsonschema.Schema, error) {
	url := "mem://components/" + e.Name + ".json"
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, bytes.NewReader(e.Schema)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

func schemaError(err error) error {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return screen.Invalid("props", "%v", err)
	}
	out := &screen.ValidationError{}
	for _, leaf := range leaves(ve) {
		path := strings.TrimPrefix(leaf.InstanceLocation, "/")
		path = strings.ReplaceAll(path, "/", ".")
		if path == "" {
			path = "props"
		} else {
			path = "props." + path
		}
		out.Errors = append(out.Errors, screen.FieldError{Path: path, Message: leaf.Message})
	}
	if len(out.Errors) == 0 {
		out.Errors = append(out.Errors, screen.FieldError{Path: "props", Message: ve.Message})
	}
	return out
}

func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
