package render

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdui/internal/client/action"
	"sdui/internal/condition"
	"sdui/internal/screen"
)

type recordingDispatcher struct {
	fired [][]screen.Action
	ctx   []action.Context
}

func (d *recordingDispatcher) DispatchAll(_ context.Context, actions []screen.Action, ac action.Context) error {
	d.fired = append(d.fired, actions)
	d.ctx = append(d.ctx, ac)
	return nil
}

func leaf(typeName string) Factory {
	return FactoryFunc(func(props map[string]any, children []*Node) (*Node, error) {
		return &Node{Type: typeName, Props: props, Children: children}, nil
	})
}

func testLibrary() *Library {
	lib := NewLibrary()
	for _, name := range []string{"Button", "Text", "Banner", "Card"} {
		lib.Register(name, leaf(name))
	}
	return lib
}

func newTestRenderer(d ActionDispatcher) *Renderer {
	return NewRenderer(testLibrary(), condition.New(nil), d)
}

func TestConditionGatedButton(t *testing.T) {
	d := &recordingDispatcher{}
	r := newTestRenderer(d)
	cfg := &screen.ScreenConfig{Components: screen.NodeList{{
		ID:         "cta",
		Type:       "Button",
		Props:      map[string]any{"label": "Bet now"},
		Conditions: &screen.Conditions{Platform: []string{"ios", "android"}},
		Actions:    []screen.Action{{Type: screen.ActionNavigate, Payload: map[string]any{"route": "/bet"}}},
	}}}

	web := r.Render(context.Background(), cfg, condition.Context{Platform: "web"})
	require.False(t, web.Empty())
	assert.Empty(t, web.Root.Children)

	ios := r.Render(context.Background(), cfg, condition.Context{Platform: "ios"})
	btn := ios.Find("cta")
	require.NotNil(t, btn)
	assert.Equal(t, KindComponent, btn.Kind)
	assert.Equal(t, "Bet now", btn.Props["label"])
	require.NotNil(t, btn.Trigger)

	require.NoError(t, btn.Trigger.Fire(context.Background()))
	require.Len(t, d.fired, 1)
	assert.Equal(t, screen.ActionNavigate, d.fired[0][0].Type)
	assert.Equal(t, "cta", d.ctx[0].NodeID)
}

func TestUnknownComponentPlaceholder(t *testing.T) {
	r := newTestRenderer(nil)
	cfg := &screen.ScreenConfig{Components: screen.NodeList{
		{ID: "a", Type: "Text"},
		{ID: "games", Type: "GameCarousel"},
		{ID: "b", Type: "Text"},
	}}
	tree := r.Render(context.Background(), cfg, condition.Context{})
	require.Len(t, tree.Root.Children, 3)
	ph := tree.Root.Children[1]
	assert.Equal(t, KindPlaceholder, ph.Kind)
	assert.Contains(t, ph.Text, "Unknown component: GameCarousel")
	assert.Equal(t, "b", tree.Root.Children[2].Key)
}

func TestEmptyTreeForMissingConfig(t *testing.T) {
	r := newTestRenderer(nil)
	assert.True(t, r.Render(context.Background(), nil, condition.Context{}).Empty())
	for _, raw := range []string{"", "null", "[1,2]", `"home"`, "42", "{broken"} {
		assert.True(t, r.RenderJSON(context.Background(), []byte(raw), condition.Context{}).Empty(), raw)
	}
}

func TestRenderJSONSkipsNonObjectEntries(t *testing.T) {
	r := newTestRenderer(nil)
	tree := r.RenderJSON(context.Background(), []byte(`{"components":[{"id":"a","type":"Text"}, 7, "x", {"id":"b","type":"Card","children":[null,{"id":"c","type":"Text"}]}]}`), condition.Context{})
	require.Len(t, tree.Root.Children, 2)
	card := tree.Find("b")
	require.NotNil(t, card)
	require.Len(t, card.Children, 1)
	assert.Equal(t, "c", card.Children[0].Key)
}

func TestLayouts(t *testing.T) {
	r := newTestRenderer(nil)
	ctx := context.Background()

	sections := []*screen.Section{
		{ID: "promo", Type: screen.SectionCarousel, Title: "Promos", Components: screen.NodeList{{ID: "p1", Type: "Banner"}}},
		{ID: "tiles", Type: screen.SectionGrid, Components: screen.NodeList{{ID: "t1", Type: "Card"}, {ID: "t2", Type: "Card"}}},
		{ID: "vip", Conditions: &screen.Conditions{UserSegment: []string{"vip"}}, Components: screen.NodeList{{ID: "v1", Type: "Text"}}},
		{ID: "list", Type: screen.SectionList, Components: screen.NodeList{{ID: "l1", Type: "Text"}}},
	}
	tree := r.Render(ctx, &screen.ScreenConfig{Layout: &screen.Layout{Type: screen.LayoutSections, Sections: sections}}, condition.Context{})
	require.True(t, tree.Root.Scrollable)
	require.Len(t, tree.Root.Children, 3, "vip section is skipped")
	promo := tree.Root.Children[0]
	assert.Equal(t, Horizontal, promo.Direction)
	assert.True(t, promo.Scrollable)
	assert.Equal(t, "Promos", promo.Text)
	assert.Equal(t, gridColumns, tree.Root.Children[1].Columns)
	assert.Equal(t, Vertical, tree.Root.Children[2].Direction)
	assert.Nil(t, tree.Find("v1"))

	grid := r.Render(ctx, &screen.ScreenConfig{Layout: &screen.Layout{Type: screen.LayoutGrid, Sections: sections}}, condition.Context{UserSegment: "vip"})
	assert.False(t, grid.Root.Scrollable)
	assert.Len(t, grid.Root.Children, 4)

	tabs := r.Render(ctx, &screen.ScreenConfig{Layout: &screen.Layout{Type: screen.LayoutTabs, Tabs: []*screen.Tab{
		{ID: "first", Components: screen.NodeList{{ID: "f", Type: "Text"}}},
		{ID: "second", Components: screen.NodeList{{ID: "s", Type: "Text"}}},
	}}}, condition.Context{})
	assert.NotNil(t, tabs.Find("f"))
	assert.Nil(t, tabs.Find("s"))

	unknown := r.Render(ctx, &screen.ScreenConfig{Layout: &screen.Layout{Type: "spiral"}}, condition.Context{})
	assert.Equal(t, KindPlaceholder, unknown.Root.Kind)
	assert.Equal(t, "Unknown layout type: spiral", unknown.Root.Text)
}

func TestFactoryFailuresBecomePlaceholders(t *testing.T) {
	lib := testLibrary()
	lib.Register("Boom", FactoryFunc(func(map[string]any, []*Node) (*Node, error) { panic("kaboom") }))
	lib.Register("Bad", FactoryFunc(func(map[string]any, []*Node) (*Node, error) { return nil, errors.New("bad props") }))
	r := NewRenderer(lib, nil, nil)

	tree := r.Render(context.Background(), &screen.ScreenConfig{Components: screen.NodeList{
		{ID: "x", Type: "Boom"},
		{ID: "y", Type: "Bad"},
		{ID: "z", Type: "Text"},
	}}, condition.Context{})
	require.Len(t, tree.Root.Children, 3)
	assert.Equal(t, KindPlaceholder, tree.Root.Children[0].Kind)
	assert.Contains(t, tree.Root.Children[1].Text, "bad props")
	assert.Equal(t, KindComponent, tree.Root.Children[2].Kind)
}

func TestCycleGuard(t *testing.T) {
	r := newTestRenderer(nil)
	a := &screen.ComponentNode{ID: "a", Type: "Card"}
	a.Children = screen.NodeList{a}
	tree := r.Render(context.Background(), &screen.ScreenConfig{Components: screen.NodeList{a}}, condition.Context{})
	card := tree.Find("a")
	require.NotNil(t, card)
	require.Len(t, card.Children, 1)
	assert.Equal(t, KindPlaceholder, card.Children[0].Kind)
}

func TestNonInteractiveNodeHasNoTrigger(t *testing.T) {
	r := newTestRenderer(&recordingDispatcher{})
	tree := r.Render(context.Background(), &screen.ScreenConfig{Components: screen.NodeList{
		{ID: "t", Type: "Text", Actions: []screen.Action{{Type: screen.ActionNavigate}}},
		{ID: "c", Type: "Card", Actions: []screen.Action{{Type: screen.ActionNavigate}}},
	}}, condition.Context{})
	assert.Nil(t, tree.Find("t").Trigger)
	assert.NotNil(t, tree.Find("c").Trigger)
}

func TestPassUsesSnapshot(t *testing.T) {
	lib := testLibrary()
	registered := false
	lib.Register("Hook", FactoryFunc(func(map[string]any, []*Node) (*Node, error) {
		if !registered {
			registered = true
			lib.Register("Later", leaf("Later"))
		}
		return &Node{}, nil
	}))
	r := NewRenderer(lib, nil, nil)
	cfg := &screen.ScreenConfig{Components: screen.NodeList{{ID: "h", Type: "Hook"}, {ID: "l", Type: "Later"}}}

	first := r.Render(context.Background(), cfg, condition.Context{})
	assert.Equal(t, KindPlaceholder, first.Find("l").Kind)
	second := r.Render(context.Background(), cfg, condition.Context{})
	assert.Equal(t, KindComponent, second.Find("l").Kind)
}

func TestRenderIsIdempotent(t *testing.T) {
	r := newTestRenderer(&recordingDispatcher{})
	raw := []byte(`{
	  "layout": {"type": "sections", "sections": [
	    {"id": "hero", "type": "hero", "title": "Hi", "components": [
	      {"id": "b1", "type": "Banner", "props": {"title": "x", "style": {"color": "red"}, "future": [1,2]}},
	      {"id": "btn", "type": "Button", "actions": [{"type": "navigate", "payload": {"route": "/a"}}]}
	    ]},
	    {"id": "more", "type": "grid", "components": [{"type": "Mystery"}]}
	  ]},
	  "metadata": {"name": "Home", "version": 3}
	}`)
	a := r.RenderJSON(context.Background(), raw, condition.Context{})
	b := r.RenderJSON(context.Background(), raw, condition.Context{})
	if diff := cmp.Diff(a, b, cmpopts.IgnoreUnexported(Trigger{})); diff != "" {
		t.Fatalf("render not idempotent (-first +second):\n%s", diff)
	}
	assert.Equal(t, map[string]any{"color": "red"}, a.Find("b1").Props["style"], "props pass through verbatim")
	assert.EqualValues(t, 3, a.Version)
}

func TestFprint(t *testing.T) {
	r := newTestRenderer(&recordingDispatcher{})
	tree := r.RenderScreen(context.Background(), "home", "default", &screen.ScreenConfig{
		Layout: &screen.Layout{Type: screen.LayoutSections, Sections: []*screen.Section{
			{ID: "hero", Title: "Welcome", Components: screen.NodeList{
				{ID: "go", Type: "Button", Props: map[string]any{"label": "Go"}, Actions: []screen.Action{{Type: screen.ActionNavigate}}},
				{ID: "q", Type: "Quantum"},
			}},
		}},
	}, condition.Context{})
	var buf bytes.Buffer
	require.NoError(t, Fprint(&buf, tree))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "# home [default]"))
	assert.Contains(t, out, `== hero "Welcome"`)
	assert.Contains(t, out, "Button#go {label=Go} -> 1 action(s)")
	assert.Contains(t, out, "! Unknown component: Quantum")
	assert.Equal(t, "home", tree.Find("go").Trigger.Context.ScreenName)
}
