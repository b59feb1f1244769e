package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"sdui/internal/gateway/repository/component"
	screenrepo "sdui/internal/gateway/repository/screen"
	modulesvc "sdui/internal/gateway/service/module"
	screensvc "sdui/internal/gateway/service/screen"
	"sdui/internal/gateway/validate"
	"sdui/internal/screen"
)

//go:embed default.yaml
var defaultYAML []byte

// Document is a seed file after YAML has been converted to JSON.
type Document struct {
	Screens    []ScreenSeed              `json:"screens"`
	Components []component.Entry         `json:"components"`
	Themes     map[string]map[string]any `json:"themes"`
	Modules    []modulesvc.Module        `json:"modules"`
}

type ScreenSeed struct {
	Name         string          `json:"name"`
	Variant      string          `json:"variant,omitempty"`
	TrafficSplit float64         `json:"trafficSplit,omitempty"`
	Config       json.RawMessage `json:"config"`
}

func (s ScreenSeed) isDefault() bool {
	v := strings.TrimSpace(s.Variant)
	return v == "" || v == screen.DefaultVariant
}

// Default returns the embedded seed.
func Default() (*Document, error) {
	return Parse(defaultYAML)
}

func LoadFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes YAML through JSON so seeds land in the same boundary types
// as API payloads. Every screen config is schema-checked.
func Parse(raw []byte) (*Document, error) {
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("parse seed yaml: %w", err)
	}
	js, err := json.Marshal(normalize(tree))
	if err != nil {
		return nil, fmt.Errorf("convert seed to json: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(js, &doc); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	for i, s := range doc.Screens {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("seed screen %d: name is required", i)
		}
		if err := validate.ScreenConfig(s.Config); err != nil {
			return nil, fmt.Errorf("seed screen %s: %w", s.Name, err)
		}
	}
	return &doc, nil
}

// normalize turns the map[any]any yaml can produce for non-string keys into
// JSON-encodable maps.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalize(child)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = normalize(child)
		}
		return out
	case []any:
		for i, child := range t {
			t[i] = normalize(child)
		}
		return t
	default:
		return v
	}
}

type ApplyOptions struct {
	// Overwrite replaces screens that already exist. Without it only
	// missing screens are written, so restored state wins.
	Overwrite bool
}

// Apply pushes the document through the service: components, themes and
// modules first, then screens, each mutation broadcast as usual.
func Apply(ctx context.Context, svc *screensvc.Service, doc *Document, opts ApplyOptions) error {
	var errs []error
	for _, e := range doc.Components {
		if _, err := svc.RegisterComponent(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("component %s: %w", e.Name, err))
		}
	}
	for variant, values := range doc.Themes {
		if _, err := svc.Themes().Get(ctx, variant); err == nil && !opts.Overwrite {
			continue
		}
		if _, err := svc.PutTheme(ctx, variant, values); err != nil {
			errs = append(errs, fmt.Errorf("theme %s: %w", variant, err))
		}
	}
	for _, m := range doc.Modules {
		if _, err := svc.Modules().Get(ctx, m.ID); err == nil && !opts.Overwrite {
			continue
		}
		if err := svc.Modules().Register(m); err != nil {
			errs = append(errs, fmt.Errorf("module %s: %w", m.ID, err))
		}
	}

	// defaults before variants: a variant needs its screen
	for _, pass := range []bool{true, false} {
		for _, s := range doc.Screens {
			if s.isDefault() != pass {
				continue
			}
			if err := applyScreen(ctx, svc, s, opts); err != nil {
				errs = append(errs, fmt.Errorf("screen %s/%s: %w", s.Name, s.Variant, err))
			}
		}
	}
	return errors.Join(errs...)
}

func applyScreen(ctx context.Context, svc *screensvc.Service, s ScreenSeed, opts ApplyOptions) error {
	cfg, err := screen.Decode(s.Config)
	if err != nil {
		return err
	}
	want := screen.DefaultVariant
	if !s.isDefault() {
		want = strings.TrimSpace(s.Variant)
	}
	_, served, rerr := svc.Store().Resolve(ctx, s.Name, screenrepo.Target{Variant: want})
	if rerr == nil && served == want && !opts.Overwrite {
		return nil
	}
	if s.isDefault() {
		_, err = svc.ReplaceScreen(ctx, s.Name, want, cfg)
		return err
	}
	_, err = svc.CreateVariant(ctx, s.Name, want, cfg, s.TrafficSplit)
	return err
}

// Run loads the embedded seed, or path when set, and applies it without
// overwriting restored state.
func Run(ctx context.Context, svc *screensvc.Service, path string) error {
	var (
		doc *Document
		err error
	)
	if strings.TrimSpace(path) != "" {
		doc, err = LoadFile(path)
	} else {
		doc, err = Default()
	}
	if err != nil {
		return err
	}
	if err := Apply(ctx, svc, doc, ApplyOptions{}); err != nil {
		return err
	}
	RegisterHandlers(svc.Modules())
	log.Printf("seed: applied %d screen(s), %d component(s), %d theme(s), %d module(s)",
		len(doc.Screens), len(doc.Components), len(doc.Themes), len(doc.Modules))
	return nil
}
