package screen

import (
	"context"
	"log"
	"strings"
	"time"

	screencache "sdui/internal/cache/screen"
	"sdui/internal/condition"
	"sdui/internal/gateway/push"
	"sdui/internal/gateway/repository/component"
	screenrepo "sdui/internal/gateway/repository/screen"
	"sdui/internal/gateway/repository/theme"
	"sdui/internal/gateway/revision"
	modulesvc "sdui/internal/gateway/service/module"
	model "sdui/internal/screen"
)

// Request is everything a client sends when pulling a screen.
type Request struct {
	Screen          string
	Variant         string
	UserID          string
	ExperimentGroup string
	Platform        string
	Segment         string
	Geo             string
	AppVersion      string
}

func (r Request) conditionContext() condition.Context {
	return condition.Context{
		Platform:        r.Platform,
		UserSegment:     r.Segment,
		GeoLocation:     r.Geo,
		ExperimentGroup: r.ExperimentGroup,
		UserID:          r.UserID,
		AppVersion:      r.AppVersion,
	}
}

type Resolved struct {
	Config        *model.ScreenConfig `json:"config"`
	Variant       string              `json:"variant"`
	ConfigVersion int64               `json:"configVersion"`
}

type ScreenUpdated struct {
	ScreenName string              `json:"screenName"`
	Variant    string              `json:"variant"`
	Config     *model.ScreenConfig `json:"config"`
}

type ThemeUpdated struct {
	Variant string      `json:"variant"`
	Theme   theme.Theme `json:"theme"`
}

type ComponentUpdated struct {
	Name      string          `json:"name"`
	Component component.Entry `json:"component"`
}

type ModuleChanged struct {
	ModuleID string         `json:"moduleId"`
	Config   map[string]any `json:"config,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

type FlagUpdated struct {
	ModuleID string         `json:"moduleId"`
	Flag     modulesvc.Flag `json:"flag"`
}

type ForceRefresh struct {
	Reason string `json:"reason,omitempty"`
}

type Deps struct {
	Store      *screenrepo.Store
	Themes     *theme.Store
	Components *component.Registry
	Modules    *modulesvc.Service
	Hub        *push.Hub
	Evaluator  *condition.Evaluator
	Cache      *screencache.CachedResolver
	Revision   *revision.Counter
}

// Service ties the stores to the push channel: each successful mutation is
// broadcast once it is committed.
type Service struct {
	store      *screenrepo.Store
	themes     *theme.Store
	components *component.Registry
	modules    *modulesvc.Service
	hub        *push.Hub
	eval       *condition.Evaluator
	cache      *screencache.CachedResolver
	rev        *revision.Counter
}

func New(d Deps) *Service {
	return &Service{
		store:      d.Store,
		themes:     d.Themes,
		components: d.Components,
		modules:    d.Modules,
		hub:        d.Hub,
		eval:       d.Evaluator,
		cache:      d.Cache,
		rev:        d.Revision,
	}
}

func (s *Service) Store() *screenrepo.Store { return s.store }
func (s *Service) Themes() *theme.Store { return s.themes }
func (s *Service) Components() *component.Registry { return s.components }
func (s *Service) Modules() *modulesvc.Service { return s.modules }
func (s *Service) ConfigVersion() int64 { return s.rev.Current() }

// GetScreen resolves the variant for the request. When the client names its
// platform the config is filtered against the request context before it is
// returned; otherwise the client filters on its side.
func (s *Service) GetScreen(ctx context.Context, req Request) (Resolved, error) {
	req.Screen = strings.TrimSpace(req.Screen)
	load := func(ctx context.Context) (screencache.Resolved, error) {
		cfg, variant, err := s.store.Resolve(ctx, req.Screen, screenrepo.Target{
			Variant:         req.Variant,
			UserID:          req.UserID,
			ExperimentGroup: req.ExperimentGroup,
		})
		if err != nil {
			return screencache.Resolved{}, err
		}
		if req.Platform != "" && s.eval != nil {
			cfg = s.eval.FilterConfig(ctx, cfg, req.conditionContext())
		}
		return screencache.Resolved{Config: cfg, Variant: variant}, nil
	}

	var (
		res screencache.Resolved
		err error
	)
	if s.cache != nil {
		res, err = s.cache.GetOrLoad(ctx, screencache.Key(req), load)
	} else {
		res, err = load(ctx)
	}
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{Config: res.Config, Variant: res.Variant, ConfigVersion: s.rev.Current()}, nil
}

func (s *Service) UpdateScreen(ctx context.Context, name, variant string, patch screenrepo.ConfigPatch) (*model.ScreenConfig, error) {
	cfg, err := s.store.Update(ctx, name, variant, patch)
	if err != nil {
		return nil, err
	}
	s.screenUpdated(ctx, name, variant, cfg)
	return cfg, nil
}

func (s *Service) ReplaceScreen(ctx context.Context, name, variant string, cfg *model.ScreenConfig) (*model.ScreenConfig, error) {
	out, err := s.store.Replace(ctx, name, variant, cfg)
	if err != nil {
		return nil, err
	}
	s.screenUpdated(ctx, name, variant, out)
	return out, nil
}

func (s *Service) CreateVariant(ctx context.Context, name, variant string, cfg *model.ScreenConfig, trafficSplit float64) (*model.ScreenConfig, error) {
	out, err := s.store.CreateVariant(ctx, name, variant, cfg, trafficSplit)
	if err != nil {
		return nil, err
	}
	s.screenUpdated(ctx, name, variant, out)
	return out, nil
}

func (s *Service) AddComponent(ctx context.Context, name, variant string, node *model.ComponentNode, hint screenrepo.PositionHint) (*model.ComponentNode, error) {
	added, err := s.store.AddComponent(ctx, name, variant, node, hint)
	if err != nil {
		return nil, err
	}
	s.rebroadcast(ctx, name, variant)
	return added, nil
}

func (s *Service) RemoveComponent(ctx context.Context, name, variant, id string) (bool, error) {
	removed, err := s.store.RemoveComponent(ctx, name, variant, id)
	if err != nil || !removed {
		return removed, err
	}
	s.rebroadcast(ctx, name, variant)
	return true, nil
}

func (s *Service) UpdateComponentProps(ctx context.Context, name, variant, id string, patch map[string]any) (*model.ComponentNode, error) {
	node, err := s.store.UpdateComponentProps(ctx, name, variant, id, patch)
	if err != nil {
		return nil, err
	}
	s.rebroadcast(ctx, name, variant)
	return node, nil
}

func (s *Service) PutTheme(ctx context.Context, variant string, values map[string]any) (theme.Theme, error) {
	t, err := s.themes.Put(ctx, variant, values)
	if err != nil {
		return theme.Theme{}, err
	}
	s.broadcast(ctx, push.All(), push.EventThemeUpdated, ThemeUpdated{Variant: t.Variant, Theme: t})
	return t, nil
}

func (s *Service) RegisterComponent(ctx context.Context, e component.Entry) (component.Entry, error) {
	out, err := s.components.Register(ctx, e)
	if err != nil {
		return component.Entry{}, err
	}
	s.broadcast(ctx, push.All(), push.EventComponentUpdated, ComponentUpdated{Name: out.Name, Component: out})
	return out, nil
}

func (s *Service) EnableModule(ctx context.Context, scope push.Scope, moduleID string) (modulesvc.Module, error) {
	m, err := s.modules.SetEnabled(ctx, moduleID, true)
	if err != nil {
		return modulesvc.Module{}, err
	}
	s.rev.Bump()
	s.broadcast(ctx, scope, push.EventModuleEnabled, ModuleChanged{ModuleID: m.ID, Config: m.Config})
	return m, nil
}

func (s *Service) DisableModule(ctx context.Context, scope push.Scope, moduleID, reason string) (modulesvc.Module, error) {
	m, err := s.modules.SetEnabled(ctx, moduleID, false)
	if err != nil {
		return modulesvc.Module{}, err
	}
	s.rev.Bump()
	s.broadcast(ctx, scope, push.EventModuleDisabled, ModuleChanged{ModuleID: m.ID, Reason: reason})
	return m, nil
}

func (s *Service) UpdateModuleConfig(ctx context.Context, scope push.Scope, moduleID string, patch map[string]any) (modulesvc.Module, error) {
	m, err := s.modules.UpdateConfig(ctx, moduleID, patch)
	if err != nil {
		return modulesvc.Module{}, err
	}
	s.rev.Bump()
	s.broadcast(ctx, scope, push.EventModuleConfigUpdated, ModuleChanged{ModuleID: m.ID, Config: m.Config})
	return m, nil
}

func (s *Service) SetFlag(ctx context.Context, moduleID string, f modulesvc.Flag) (modulesvc.Module, error) {
	m, err := s.modules.SetFlag(ctx, moduleID, f)
	if err != nil {
		return modulesvc.Module{}, err
	}
	s.rev.Bump()
	s.broadcast(ctx, push.All(), push.EventFeatureFlagUpdated, FlagUpdated{ModuleID: m.ID, Flag: m.Flags[f.Name]})
	return m, nil
}

// ForceRefresh tells every client in scope to drop caches and re-pull.
func (s *Service) ForceRefresh(ctx context.Context, scope push.Scope, reason string) int {
	return s.broadcast(ctx, scope, push.EventForceRefresh, ForceRefresh{Reason: reason})
}

func (s *Service) rebroadcast(ctx context.Context, name, variant string) {
	cfg, err := s.store.Get(ctx, name, variant)
	if err != nil {
		log.Printf("screen service: reload %s/%s for broadcast failed: %v", name, variant, err)
		return
	}
	s.screenUpdated(ctx, name, variant, cfg)
}

func (s *Service) screenUpdated(ctx context.Context, name, variant string, cfg *model.ScreenConfig) {
	if strings.TrimSpace(variant) == "" {
		variant = model.DefaultVariant
	}
	s.broadcast(ctx, push.All(), push.EventScreenUpdated, ScreenUpdated{ScreenName: name, Variant: variant, Config: cfg})
}

func (s *Service) broadcast(ctx context.Context, scope push.Scope, t push.EventType, data any) int {
	if s.hub == nil {
		return 0
	}
	return s.hub.Broadcast(ctx, scope, push.Event{Type: t, Data: data, Timestamp: time.Now().UTC()})
}
