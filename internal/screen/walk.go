package screen

import "fmt"

// RootLists returns pointers to every top-level node list of the config in
// document order: the flat components list, each section, then each tab.
func (c *ScreenConfig) RootLists() []*NodeList {
	if c == nil {
		return nil
	}
	var out []*NodeList
	if c.Components != nil {
		out = append(out, &c.Components)
	}
	if c.Layout != nil {
		for _, s := range c.Layout.Sections {
			if s != nil {
				out = append(out, &s.Components)
			}
		}
		for _, t := range c.Layout.Tabs {
			if t != nil {
				out = append(out, &t.Components)
			}
		}
	}
	return out
}

// WalkFunc is called for every node. Returning false stops the walk.
type WalkFunc func(node *ComponentNode, owner *NodeList, index int) bool

// Walk visits nodes depth-first in document order. A node already on the
// current path is not entered again.
func (c *ScreenConfig) Walk(fn WalkFunc) {
	onPath := map[*ComponentNode]bool{}
	for _, list := range c.RootLists() {
		if !walkList(list, fn, onPath) {
			return
		}
	}
}

func walkList(list *NodeList, fn WalkFunc, onPath map[*ComponentNode]bool) bool {
	for i, n := range *list {
		if n == nil || onPath[n] {
			continue
		}
		if !fn(n, list, i) {
			return false
		}
		onPath[n] = true
		ok := walkList(&n.Children, fn, onPath)
		delete(onPath, n)
		if !ok {
			return false
		}
	}
	return true
}

// FindNode returns the first node with the given id.
func (c *ScreenConfig) FindNode(id string) *ComponentNode {
	var found *ComponentNode
	c.Walk(func(n *ComponentNode, _ *NodeList, _ int) bool {
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// RemoveNode deletes the first node with the given id, wherever it sits.
func (c *ScreenConfig) RemoveNode(id string) bool {
	removed := false
	c.Walk(func(n *ComponentNode, owner *NodeList, index int) bool {
		if n.ID != id {
			return true
		}
		list := *owner
		*owner = append(list[:index:index], list[index+1:]...)
		removed = true
		return false
	})
	return removed
}

// Validate checks tree structure: every node has a type, ids are unique
// within the config, and no node contains itself.
func (c *ScreenConfig) Validate() error {
	if c == nil {
		return Invalid("", "screen config is required")
	}
	var errs []FieldError
	seen := map[string]string{}
	if c.Layout != nil {
		for i, s := range c.Layout.Sections {
			if s == nil {
				errs = append(errs, FieldError{Path: fmt.Sprintf("layout.sections[%d]", i), Message: "section is null"})
			}
		}
	}
	for li, list := range c.RootLists() {
		validateList(*list, fmt.Sprintf("list[%d]", li), seen, map[*ComponentNode]bool{}, &errs)
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func validateList(list NodeList, path string, seen map[string]string, onPath map[*ComponentNode]bool, errs *[]FieldError) {
	for i, n := range list {
		p := fmt.Sprintf("%s[%d]", path, i)
		if n == nil {
			continue
		}
		if onPath[n] {
			*errs = append(*errs, FieldError{Path: p, Message: fmt.Sprintf("node %q contains itself", n.ID)})
			continue
		}
		if n.Type == "" {
			*errs = append(*errs, FieldError{Path: p + ".type", Message: "type is required"})
		}
		if n.ID != "" {
			if prev, dup := seen[n.ID]; dup {
				*errs = append(*errs, FieldError{Path: p + ".id", Message: fmt.Sprintf("duplicate id %q (first at %s)", n.ID, prev)})
			} else {
				seen[n.ID] = p
			}
		}
		onPath[n] = true
		validateList(n.Children, p+".children", seen, onPath, errs)
		delete(onPath, n)
	}
}
