package condition

import (
	"context"

	"sdui/internal/screen"
)

// FilterConfig returns a copy of cfg with every section, tab node and
// component whose conditions reject ec removed. Children of a rejected node
// are not evaluated.
func (e *Evaluator) FilterConfig(ctx context.Context, cfg *screen.ScreenConfig, ec Context) *screen.ScreenConfig {
	if cfg == nil {
		return nil
	}
	out := cfg.Clone()
	if out.Components != nil {
		out.Components = e.filterNodes(ctx, out.Components, ec)
	}
	if out.Layout != nil {
		if out.Layout.Sections != nil {
			kept := make([]*screen.Section, 0, len(out.Layout.Sections))
			for _, s := range out.Layout.Sections {
				if s == nil || !e.Allowed(ctx, s.Conditions, ec) {
					continue
				}
				s.Components = e.filterNodes(ctx, s.Components, ec)
				kept = append(kept, s)
			}
			out.Layout.Sections = kept
		}
		for _, t := range out.Layout.Tabs {
			if t != nil {
				t.Components = e.filterNodes(ctx, t.Components, ec)
			}
		}
	}
	return out
}

func (e *Evaluator) filterNodes(ctx context.Context, nodes screen.NodeList, ec Context) screen.NodeList {
	if nodes == nil {
		return nil
	}
	kept := make(screen.NodeList, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || !e.Allowed(ctx, n.Conditions, ec) {
			continue
		}
		n.Children = e.filterNodes(ctx, n.Children, ec)
		kept = append(kept, n)
	}
	return kept
}
