package render

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"sdui/internal/client/action"
	"sdui/internal/screen"
)

type Kind string

const (
	KindContainer   Kind = "container"
	KindSection     Kind = "section"
	KindComponent   Kind = "component"
	KindPlaceholder Kind = "placeholder"
)

type Direction string

const (
	Vertical   Direction = "vertical"
	Horizontal Direction = "horizontal"
)

// Node is one element of a render tree.
type Node struct {
	Key        string
	Kind       Kind
	Type       string
	Props      map[string]any
	Children   []*Node
	Direction  Direction
	Scrollable bool
	Columns    int
	Text       string
	Trigger    *Trigger
}

// Tree is the output of one render pass. A nil Root means nothing to show.
type Tree struct {
	Root       *Node
	ScreenName string
	Variant    string
	Version    int64
}

func (t *Tree) Empty() bool {
	return t == nil || t.Root == nil
}

// Find returns the first node with the given key.
func (t *Tree) Find(key string) *Node {
	if t == nil {
		return nil
	}
	return find(t.Root, key)
}

func find(n *Node, key string) *Node {
	if n == nil {
		return nil
	}
	if n.Key == key {
		return n
	}
	for _, c := range n.Children {
		if hit := find(c, key); hit != nil {
			return hit
		}
	}
	return nil
}

// ActionDispatcher runs a node's action list.
type ActionDispatcher interface {
	DispatchAll(ctx context.Context, actions []screen.Action, ac action.Context) error
}

// Trigger fires a node's actions through the dispatcher, in order.
type Trigger struct {
	Actions []screen.Action
	Context action.Context

	dispatcher ActionDispatcher
}

func (t *Trigger) Fire(ctx context.Context) error {
	if t == nil || t.dispatcher == nil {
		return nil
	}
	return t.dispatcher.DispatchAll(ctx, t.Actions, t.Context)
}

// Fprint writes an indented text dump of the tree.
func Fprint(w io.Writer, t *Tree) error {
	if t.Empty() {
		_, err := fmt.Fprintln(w, "(empty)")
		return err
	}
	if _, err := fmt.Fprintf(w, "# %s [%s] v%d\n", t.ScreenName, t.Variant, t.Version); err != nil {
		return err
	}
	return fprintNode(w, t.Root, 0)
}

func fprintNode(w io.Writer, n *Node, depth int) error {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	switch n.Kind {
	case KindPlaceholder:
		fmt.Fprintf(&b, "! %s", n.Text)
	case KindContainer:
		fmt.Fprintf(&b, "[%s", n.Direction)
		if n.Scrollable {
			b.WriteString(" scroll")
		}
		b.WriteString("]")
	case KindSection:
		fmt.Fprintf(&b, "== %s", n.Key)
		if n.Text != "" {
			fmt.Fprintf(&b, " %q", n.Text)
		}
		fmt.Fprintf(&b, " (%s", n.Direction)
		if n.Scrollable {
			b.WriteString(", scroll")
		}
		if n.Columns > 0 {
			fmt.Fprintf(&b, ", %d cols", n.Columns)
		}
		b.WriteString(")")
	default:
		b.WriteString(n.Type)
		if n.Key != "" {
			fmt.Fprintf(&b, "#%s", n.Key)
		}
		if n.Text != "" {
			fmt.Fprintf(&b, " %q", n.Text)
		} else if len(n.Props) > 0 {
			b.WriteString(" " + propsSummary(n.Props))
		}
		if n.Trigger != nil {
			fmt.Fprintf(&b, " -> %d action(s)", len(n.Trigger.Actions))
		}
	}
	b.WriteString("\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := fprintNode(w, c, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func propsSummary(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, props[k]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
