package screen

import (
	"sdui/internal/screen"
)

// ConfigPatch is a partial screen config. A nil field is absent and leaves
// the stored value alone.
type ConfigPatch struct {
	Layout     *LayoutPatch     `json:"layout,omitempty"`
	Components *screen.NodeList `json:"components,omitempty"`
	Metadata   *MetadataPatch   `json:"metadata,omitempty"`
}

type LayoutPatch struct {
	Type     *screen.LayoutType `json:"type,omitempty"`
	Sections *[]*screen.Section `json:"sections,omitempty"`
	Tabs     *[]*screen.Tab     `json:"tabs,omitempty"`
}

type MetadataPatch struct {
	Name            *string   `json:"name,omitempty"`
	CacheTTL        *int      `json:"cacheTTL,omitempty"`
	Personalizable  *bool     `json:"personalizable,omitempty"`
	DynamicContent  *bool     `json:"dynamicContent,omitempty"`
	AgeRestriction  *int      `json:"ageRestriction,omitempty"`
	GeoRestrictions *[]string `json:"geoRestrictions,omitempty"`
}

func (p ConfigPatch) validate() error {
	if p.Layout != nil && p.Components != nil {
		return screen.Invalid("", "layout and components are mutually exclusive")
	}
	if m := p.Metadata; m != nil {
		if m.CacheTTL != nil && *m.CacheTTL < 0 {
			return screen.Invalid("metadata.cacheTTL", "must be >= 0")
		}
		if m.AgeRestriction != nil && *m.AgeRestriction < 0 {
			return screen.Invalid("metadata.ageRestriction", "must be >= 0")
		}
	}
	return nil
}

// apply shallow-merges the patch into cfg. Version and lastUpdated are owned
// by the store and never taken from a patch.
func (p ConfigPatch) apply(cfg *screen.ScreenConfig) {
	if lp := p.Layout; lp != nil {
		if cfg.Layout == nil {
			cfg.Layout = &screen.Layout{Type: screen.LayoutSections}
		}
		if lp.Type != nil {
			cfg.Layout.Type = *lp.Type
		}
		if lp.Sections != nil {
			cfg.Layout.Sections = cloneSections(*lp.Sections)
		}
		if lp.Tabs != nil {
			cfg.Layout.Tabs = cloneTabs(*lp.Tabs)
		}
		cfg.Components = nil
	}
	if p.Components != nil {
		cfg.Components = p.Components.Clone()
		if cfg.Components == nil {
			cfg.Components = screen.NodeList{}
		}
		cfg.Layout = nil
	}
	if m := p.Metadata; m != nil {
		if m.Name != nil {
			cfg.Metadata.Name = *m.Name
		}
		if m.CacheTTL != nil {
			cfg.Metadata.CacheTTL = *m.CacheTTL
		}
		if m.Personalizable != nil {
			cfg.Metadata.Personalizable = *m.Personalizable
		}
		if m.DynamicContent != nil {
			cfg.Metadata.DynamicContent = *m.DynamicContent
		}
		if m.AgeRestriction != nil {
			cfg.Metadata.AgeRestriction = *m.AgeRestriction
		}
		if m.GeoRestrictions != nil {
			cfg.Metadata.GeoRestrictions = append([]string{}, (*m.GeoRestrictions)...)
		}
	}
}

func cloneSections(in []*screen.Section) []*screen.Section {
	out := make([]*screen.Section, 0, len(in))
	for _, s := range in {
		if s != nil {
			out = append(out, s.Clone())
		}
	}
	return out
}

func cloneTabs(in []*screen.Tab) []*screen.Tab {
	out := make([]*screen.Tab, 0, len(in))
	for _, t := range in {
		if t != nil {
			out = append(out, t.Clone())
		}
	}
	return out
}
