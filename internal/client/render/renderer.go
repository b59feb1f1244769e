package render

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"

	"sdui/internal/client/action"
	"sdui/internal/condition"
	"sdui/internal/screen"
)

const gridColumns = 2

// Renderer turns screen configs into render trees. It keeps no per-pass
// state and may be shared.
type Renderer struct {
	lib        *Library
	eval       *condition.Evaluator
	dispatcher ActionDispatcher
}

func NewRenderer(lib *Library, eval *condition.Evaluator, dispatcher ActionDispatcher) *Renderer {
	if lib == nil {
		lib = NewLibrary()
	}
	if eval == nil {
		eval = condition.New(nil)
	}
	return &Renderer{lib: lib, eval: eval, dispatcher: dispatcher}
}

// pass is the state of one render pass.
type pass struct {
	ctx     context.Context
	r       *Renderer
	factory Snapshot
	ec      condition.Context
	ac      action.Context
	onPath  map[*screen.ComponentNode]bool
}

// Render builds the tree for cfg. A nil config yields an empty tree.
func (r *Renderer) Render(ctx context.Context, cfg *screen.ScreenConfig, ec condition.Context) *Tree {
	if cfg == nil {
		return &Tree{}
	}
	p := &pass{
		ctx:     ctx,
		r:       r,
		factory: r.lib.Snapshot(),
		ec:      ec,
		ac:      action.Context{ScreenName: cfg.Metadata.Name, UserID: ec.UserID},
		onPath:  make(map[*screen.ComponentNode]bool),
	}
	return &Tree{
		Root:       p.screen(cfg),
		ScreenName: cfg.Metadata.Name,
		Version:    cfg.Metadata.Version,
	}
}

// RenderScreen is Render with the tree labelled by screen key.
func (r *Renderer) RenderScreen(ctx context.Context, name, variant string, cfg *screen.ScreenConfig, ec condition.Context) *Tree {
	t := r.Render(ctx, cfg, ec)
	t.ScreenName = name
	t.Variant = variant
	if t.Root != nil {
		// actions report the screen key rather than the display name
		relabel(t.Root, name, variant)
	}
	return t
}

func relabel(n *Node, name, variant string) {
	if n.Trigger != nil {
		n.Trigger.Context.ScreenName = name
		n.Trigger.Context.Variant = variant
	}
	for _, c := range n.Children {
		relabel(c, name, variant)
	}
}

// RenderJSON decodes raw and renders it. Anything that is not a JSON
// object is treated as not loaded yet.
func (r *Renderer) RenderJSON(ctx context.Context, raw []byte, ec condition.Context) *Tree {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return &Tree{}
	}
	cfg, err := screen.Decode(trimmed)
	if err != nil {
		log.Printf("render: decode screen config: %v", err)
		return &Tree{}
	}
	return r.Render(ctx, cfg, ec)
}

func (p *pass) screen(cfg *screen.ScreenConfig) *Node {
	if cfg.Shape() == screen.ShapeComponents {
		return container(true, p.list(cfg.Components))
	}
	if cfg.Layout == nil {
		return container(true, nil)
	}
	switch cfg.Layout.Type {
	case screen.LayoutScroll, screen.LayoutSections:
		return container(true, p.sections(cfg.Layout.Sections))
	case screen.LayoutGrid:
		return container(false, p.sections(cfg.Layout.Sections))
	case screen.LayoutTabs:
		// Only the first tab renders. Tab switching is not supported.
		if len(cfg.Layout.Tabs) == 0 || cfg.Layout.Tabs[0] == nil {
			return container(true, nil)
		}
		return container(true, p.list(cfg.Layout.Tabs[0].Components))
	default:
		return placeholder("layout", fmt.Sprintf("Unknown layout type: %s", cfg.Layout.Type))
	}
}

func container(scrollable bool, children []*Node) *Node {
	return &Node{
		Key:        "root",
		Kind:       KindContainer,
		Direction:  Vertical,
		Scrollable: scrollable,
		Children:   children,
	}
}

func placeholder(key, text string) *Node {
	return &Node{Key: key, Kind: KindPlaceholder, Text: text}
}

func (p *pass) sections(sections []*screen.Section) []*Node {
	out := make([]*Node, 0, len(sections))
	for i, s := range sections {
		if s == nil {
			continue
		}
		if n := p.section(s, i); n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (p *pass) section(s *screen.Section, index int) *Node {
	if s.Conditions != nil && !p.r.eval.Allowed(p.ctx, s.Conditions, p.ec) {
		return nil
	}
	key := s.ID
	if key == "" {
		key = fmt.Sprintf("section-%d", index)
	}
	n := &Node{
		Key:       key,
		Kind:      KindSection,
		Type:      string(s.Type),
		Text:      s.Title,
		Props:     sectionProps(s),
		Direction: Vertical,
	}
	switch s.Type {
	case screen.SectionCarousel:
		n.Direction = Horizontal
		n.Scrollable = true
	case screen.SectionGrid:
		n.Columns = gridColumns
	}
	n.Children = p.list(s.Components)
	return n
}

func sectionProps(s *screen.Section) map[string]any {
	if len(s.Style) == 0 {
		return nil
	}
	return map[string]any{"style": screen.CloneMap(s.Style)}
}

func (p *pass) list(nodes screen.NodeList) []*Node {
	out := make([]*Node, 0, len(nodes))
	for i, n := range nodes {
		if n == nil {
			continue
		}
		if rendered := p.node(n, i); rendered != nil {
			out = append(out, rendered)
		}
	}
	return out
}

func (p *pass) node(n *screen.ComponentNode, index int) (out *Node) {
	if n.Conditions != nil && !p.r.eval.Allowed(p.ctx, n.Conditions, p.ec) {
		return nil
	}
	key := n.ID
	if key == "" {
		key = fmt.Sprintf("%s-%d", n.Type, index)
	}
	if p.onPath[n] {
		return placeholder(key, fmt.Sprintf("Cyclic component: %s", key))
	}

	f, ok := p.factory.Resolve(n.Type)
	if !ok {
		return placeholder(key, fmt.Sprintf("Unknown component: %s", n.Type))
	}

	p.onPath[n] = true
	children := p.list(n.Children)
	delete(p.onPath, n)

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("render: component %s (%s) panicked: %v", key, n.Type, rec)
			out = placeholder(key, fmt.Sprintf("Component error: %s", n.Type))
		}
	}()
	built, err := f.Create(n.Props, children)
	if err != nil {
		log.Printf("render: component %s (%s): %v", key, n.Type, err)
		return placeholder(key, fmt.Sprintf("Component error: %s: %v", n.Type, err))
	}
	if built == nil {
		return nil
	}
	built.Key = key
	built.Kind = KindComponent
	if built.Type == "" {
		built.Type = n.Type
	}
	if built.Props == nil {
		built.Props = n.Props
	}
	if built.Children == nil {
		built.Children = children
	}
	if len(n.Actions) > 0 && interactive(f, n.Type) {
		ac := p.ac
		ac.NodeID = n.ID
		built.Trigger = &Trigger{
			Actions:    append([]screen.Action(nil), n.Actions...),
			Context:    ac,
			dispatcher: p.r.dispatcher,
		}
	}
	return built
}

// interactive asks the factory, falling back to button-like type names.
func interactive(f Factory, typeName string) bool {
	if i, ok := f.(Interactive); ok && i.Interactive() {
		return true
	}
	t := strings.ToLower(typeName)
	return strings.Contains(t, "button") || strings.HasSuffix(t, "link") || strings.HasSuffix(t, "card") || strings.HasSuffix(t, "tile")
}
