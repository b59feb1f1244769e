package module

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sdui/internal/condition"
	"sdui/internal/screen"
)

// ActionHandler runs one module action. Config is a copy of the module's
// current config.
type ActionHandler func(ctx context.Context, config map[string]any, payload map[string]any) (map[string]any, error)

type Flag struct {
	Name       string             `json:"name"`
	Enabled    bool               `json:"enabled"`
	Conditions *screen.Conditions `json:"conditions,omitempty"`
}

// Module is a business feature the UI can call into.
type Module struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Enabled   bool            `json:"enabled"`
	Config    map[string]any  `json:"config,omitempty"`
	Flags     map[string]Flag `json:"flags,omitempty"`
	Actions   []string        `json:"actions,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type entry struct {
	module   Module
	handlers map[string]ActionHandler
}

// Service is the domain action executor and the feature flag store.
type Service struct {
	mu      sync.RWMutex
	modules map[string]*entry

	// flag conditions never reference other flags
	conditions *condition.Evaluator
	now        func() time.Time
}

func New() *Service {
	return &Service{
		modules:    make(map[string]*entry),
		conditions: condition.New(nil),
		now:        time.Now,
	}
}

// Register adds or replaces a module definition. Existing handlers survive.
func (s *Service) Register(m Module) error {
	m.ID = strings.TrimSpace(m.ID)
	if m.ID == "" {
		return screen.Invalid("id", "module id is required")
	}
	if m.Name == "" {
		m.Name = m.ID
	}
	m.Config = screen.CloneMap(m.Config)
	m.Flags = cloneFlags(m.Flags)
	m.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.modules[m.ID]
	if !ok {
		e = &entry{handlers: make(map[string]ActionHandler)}
		s.modules[m.ID] = e
	}
	e.module = m
	return nil
}

// Handle binds an action type of a registered module.
func (s *Service) Handle(moduleID, actionType string, h ActionHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.modules[moduleID]
	if !ok {
		return screen.NotFound("module", moduleID)
	}
	e.handlers[actionType] = h
	return nil
}

func (s *Service) Get(_ context.Context, moduleID string) (Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.modules[strings.TrimSpace(moduleID)]
	if !ok {
		return Module{}, screen.NotFound("module", moduleID)
	}
	return e.snapshot(), nil
}

func (s *Service) List(_ context.Context) []Module {
	s.mu.RLock()
	out := make([]Module, 0, len(s.modules))
	for _, e := range s.modules {
		out = append(out, e.snapshot())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (e *entry) snapshot() Module {
	m := e.module
	m.Config = screen.CloneMap(m.Config)
	m.Flags = cloneFlags(m.Flags)
	m.Actions = make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		m.Actions = append(m.Actions, name)
	}
	sort.Strings(m.Actions)
	return m
}

func (s *Service) SetEnabled(_ context.Context, moduleID string, enabled bool) (Module, error) {
	return s.update(moduleID, func(m *Module) {
		m.Enabled = enabled
	})
}

// UpdateConfig shallow-merges patch into the module config. A nil value
// deletes the key.
func (s *Service) UpdateConfig(_ context.Context, moduleID string, patch map[string]any) (Module, error) {
	return s.update(moduleID, func(m *Module) {
		if m.Config == nil {
			m.Config = make(map[string]any, len(patch))
		}
		for k, v := range patch {
			if v == nil {
				delete(m.Config, k)
				continue
			}
			m.Config[k] = screen.CloneValue(v)
		}
	})
}

// SetFlag creates or replaces a flag on a module.
func (s *Service) SetFlag(_ context.Context, moduleID string, f Flag) (Module, error) {
	if strings.TrimSpace(f.Name) == "" {
		return Module{}, screen.Invalid("name", "flag name is required")
	}
	return s.update(moduleID, func(m *Module) {
		if m.Flags == nil {
			m.Flags = make(map[string]Flag)
		}
		f.Conditions = f.Conditions.Clone()
		m.Flags[f.Name] = f
	})
}

func (s *Service) update(moduleID string, fn func(*Module)) (Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.modules[strings.TrimSpace(moduleID)]
	if !ok {
		return Module{}, screen.NotFound("module", moduleID)
	}
	fn(&e.module)
	e.module.UpdatedAt = s.now().UTC()
	return e.snapshot(), nil
}

// ExecuteModuleAction routes an action to its handler. Unknown or disabled
// modules and unknown actions are NotFound.
func (s *Service) ExecuteModuleAction(ctx context.Context, moduleID, actionType string, payload map[string]any) (map[string]any, error) {
	s.mu.RLock()
	e, ok := s.modules[strings.TrimSpace(moduleID)]
	var (
		h   ActionHandler
		cfg map[string]any
	)
	enabled := false
	if ok {
		enabled = e.module.Enabled
		h = e.handlers[strings.TrimSpace(actionType)]
		cfg = screen.CloneMap(e.module.Config)
	}
	s.mu.RUnlock()

	switch {
	case !ok:
		return nil, screen.NotFound("module", moduleID)
	case !enabled:
		return nil, screen.NotFound("module", moduleID+" (disabled)")
	case h == nil:
		return nil, screen.NotFound("action", moduleID+"/"+actionType)
	}
	out, err := h(ctx, cfg, screen.CloneMap(payload))
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", moduleID, actionType, err)
	}
	return out, nil
}

// ResolveFlag implements condition.FlagResolver. A flag on a disabled module
// is reported disabled. Without a module id every module is searched in id
// order.
func (s *Service) ResolveFlag(ctx context.Context, moduleID, flagName string, ec condition.Context) (condition.FlagResult, error) {
	s.mu.RLock()
	var (
		flag  Flag
		found bool
		on    bool
	)
	if moduleID != "" {
		if e, ok := s.modules[moduleID]; ok {
			flag, found = e.module.Flags[flagName]
			on = e.module.Enabled
		} else {
			s.mu.RUnlock()
			return condition.FlagResult{}, screen.NotFound("module", moduleID)
		}
	} else {
		ids := make([]string, 0, len(s.modules))
		for id := range s.modules {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			e := s.modules[id]
			if f, ok := e.module.Flags[flagName]; ok {
				flag, found, on = f, true, e.module.Enabled
				break
			}
		}
	}
	flag.Conditions = flag.Conditions.Clone()
	s.mu.RUnlock()

	if !found {
		return condition.FlagResult{}, screen.NotFound("flag", flagName)
	}
	res := condition.FlagResult{Enabled: on && flag.Enabled, ConditionsMet: true}
	if flag.Conditions != nil {
		res.ConditionsMet = s.conditions.Allowed(ctx, flag.Conditions, ec)
	}
	return res, nil
}

func cloneFlags(in map[string]Flag) map[string]Flag {
	if in == nil {
		return nil
	}
	out := make(map[string]Flag, len(in))
	for k, f := range in {
		f.Conditions = f.Conditions.Clone()
		if f.Name == "" {
			f.Name = k
		}
		out[k] = f
	}
	return out
}
