package screen

import "time"

func (c *ScreenConfig) Clone() *ScreenConfig {
	if c == nil {
		return nil
	}
	out := &ScreenConfig{
		Layout:     c.Layout.Clone(),
		Components: c.Components.Clone(),
		Metadata:   c.Metadata.Clone(),
	}
	return out
}

func (m Metadata) Clone() Metadata {
	m.GeoRestrictions = cloneStrings(m.GeoRestrictions)
	return m
}

func (l *Layout) Clone() *Layout {
	if l == nil {
		return nil
	}
	out := &Layout{Type: l.Type}
	if l.Sections != nil {
		out.Sections = make([]*Section, len(l.Sections))
		for i, s := range l.Sections {
			out.Sections[i] = s.Clone()
		}
	}
	if l.Tabs != nil {
		out.Tabs = make([]*Tab, len(l.Tabs))
		for i, t := range l.Tabs {
			out.Tabs[i] = t.Clone()
		}
	}
	return out
}

func (s *Section) Clone() *Section {
	if s == nil {
		return nil
	}
	return &Section{
		ID:         s.ID,
		Type:       s.Type,
		Title:      s.Title,
		Style:      CloneMap(s.Style),
		Conditions: s.Conditions.Clone(),
		Components: s.Components.Clone(),
	}
}

func (t *Tab) Clone() *Tab {
	if t == nil {
		return nil
	}
	return &Tab{ID: t.ID, Title: t.Title, Icon: t.Icon, Components: t.Components.Clone()}
}

func (l NodeList) Clone() NodeList {
	if l == nil {
		return nil
	}
	out := make(NodeList, len(l))
	for i, n := range l {
		out[i] = n.Clone()
	}
	return out
}

// Clone deep-copies a node. It does not guard against cycles; trees accepted
// by Validate never contain one.
func (n *ComponentNode) Clone() *ComponentNode {
	if n == nil {
		return nil
	}
	out := &ComponentNode{
		ID:         n.ID,
		Type:       n.Type,
		Props:      CloneMap(n.Props),
		Children:   n.Children.Clone(),
		Conditions: n.Conditions.Clone(),
	}
	if n.Actions != nil {
		out.Actions = make([]Action, len(n.Actions))
		for i, a := range n.Actions {
			out.Actions[i] = Action{Type: a.Type, Payload: CloneMap(a.Payload)}
		}
	}
	return out
}

func (c *Conditions) Clone() *Conditions {
	if c == nil {
		return nil
	}
	out := &Conditions{
		Platform:        cloneStrings(c.Platform),
		UserSegment:     cloneStrings(c.UserSegment),
		GeoLocation:     cloneStrings(c.GeoLocation),
		ExperimentGroup: cloneStrings(c.ExperimentGroup),
		FeatureFlag:     c.FeatureFlag,
		AppVersion:      c.AppVersion,
		Expression:      c.Expression,
	}
	if c.DateRange != nil {
		dr := &DateRange{}
		if c.DateRange.Start != nil {
			t := *c.DateRange.Start
			dr.Start = &t
		}
		if c.DateRange.End != nil {
			t := *c.DateRange.End
			dr.End = &t
		}
		out.DateRange = dr
	}
	return out
}

// CloneMap deep-copies a JSON-shaped map.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []string:
		return cloneStrings(t)
	case time.Time:
		return t
	default:
		return v
	}
}

func cloneStrings(v []string) []string {
	if v == nil {
		return nil
	}
	return append([]string{}, v...)
}
