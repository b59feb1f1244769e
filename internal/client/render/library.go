package render

import (
	"sort"
	"strings"
	"sync"
)

// Factory builds the render node for one component type. Props arrive as
// the open map from the config; children are already rendered.
type Factory interface {
	Create(props map[string]any, children []*Node) (*Node, error)
}

// Interactive is implemented by factories whose nodes accept a trigger.
type Interactive interface {
	Interactive() bool
}

type FactoryFunc func(props map[string]any, children []*Node) (*Node, error)

func (f FactoryFunc) Create(props map[string]any, children []*Node) (*Node, error) {
	return f(props, children)
}

// Library maps component type names to factories. It is safe for
// concurrent use; render passes read from a snapshot.
type Library struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewLibrary() *Library {
	return &Library{factories: make(map[string]Factory)}
}

// Register binds typeName to f, replacing any previous binding.
func (l *Library) Register(typeName string, f Factory) {
	typeName = strings.TrimSpace(typeName)
	if typeName == "" || f == nil {
		return
	}
	l.mu.Lock()
	l.factories[typeName] = f
	l.mu.Unlock()
}

func (l *Library) Resolve(typeName string) (Factory, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.factories[typeName]
	return f, ok
}

func (l *Library) Types() []string {
	l.mu.RLock()
	out := make([]string, 0, len(l.factories))
	for name := range l.factories {
		out = append(out, name)
	}
	l.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Snapshot is an immutable view of the library at one point in time.
type Snapshot struct {
	factories map[string]Factory
}

func (l *Library) Snapshot() Snapshot {
	if l == nil {
		return Snapshot{}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make(map[string]Factory, len(l.factories))
	for k, v := range l.factories {
		cp[k] = v
	}
	return Snapshot{factories: cp}
}

func (s Snapshot) Resolve(typeName string) (Factory, bool) {
	f, ok := s.factories[typeName]
	return f, ok
}
