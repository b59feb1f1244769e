package screen

import (
	"encoding/json"
	"time"
)

// DefaultVariant is present on every screen.
const DefaultVariant = "default"

type ActionType string

const (
	ActionNavigate       ActionType = "navigate"
	ActionModuleAction   ActionType = "module_action"
	ActionAPICall        ActionType = "api_call"
	ActionAnalyticsTrack ActionType = "analytics_track"
)

// Action is a declarative side effect attached to a node. The renderer never
// looks inside the payload.
type Action struct {
	Type    ActionType     `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ComponentNode is one node of a declarative UI tree.
type ComponentNode struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Props      map[string]any `json:"props,omitempty"`
	Children   NodeList       `json:"children,omitempty"`
	Conditions *Conditions    `json:"conditions,omitempty"`
	Actions    []Action       `json:"actions,omitempty"`
}

type SectionType string

const (
	SectionHero     SectionType = "hero"
	SectionGrid     SectionType = "grid"
	SectionCarousel SectionType = "carousel"
	SectionList     SectionType = "list"
	SectionBanner   SectionType = "banner"
	SectionTabs     SectionType = "tabs"
	SectionDefault  SectionType = "default"
)

type Section struct {
	ID         string         `json:"id"`
	Type       SectionType    `json:"type,omitempty"`
	Title      string         `json:"title,omitempty"`
	Style      map[string]any `json:"style,omitempty"`
	Conditions *Conditions    `json:"conditions,omitempty"`
	Components NodeList       `json:"components"`
}

type Tab struct {
	ID         string   `json:"id"`
	Title      string   `json:"title,omitempty"`
	Icon       string   `json:"icon,omitempty"`
	Components NodeList `json:"components"`
}

type LayoutType string

const (
	LayoutScroll   LayoutType = "scroll"
	LayoutTabs     LayoutType = "tabs"
	LayoutGrid     LayoutType = "grid"
	LayoutSections LayoutType = "sections"
)

type Layout struct {
	Type     LayoutType `json:"type"`
	Sections []*Section `json:"sections,omitempty"`
	Tabs     []*Tab     `json:"tabs,omitempty"`
}

type Metadata struct {
	Name            string    `json:"name"`
	Version         int64     `json:"version"`
	LastUpdated     time.Time `json:"lastUpdated"`
	CacheTTL        int       `json:"cacheTTL"`
	Personalizable  bool      `json:"personalizable"`
	DynamicContent  bool      `json:"dynamicContent"`
	AgeRestriction  int       `json:"ageRestriction,omitempty"`
	GeoRestrictions []string  `json:"geoRestrictions,omitempty"`
	IsVariant       bool      `json:"isVariant,omitempty"`
	TrafficSplit    float64   `json:"trafficSplit,omitempty"`
}

// Shape tells which of the two mutually exclusive top-level forms a config uses.
type Shape int

const (
	ShapeEmpty Shape = iota
	ShapeLayout
	ShapeComponents
)

// ScreenConfig is the versioned unit of delivery and caching.
type ScreenConfig struct {
	Layout     *Layout  `json:"layout,omitempty"`
	Components NodeList `json:"components,omitempty"`
	Metadata   Metadata `json:"metadata"`
}

func (c *ScreenConfig) Shape() Shape {
	switch {
	case c == nil:
		return ShapeEmpty
	case c.Components != nil:
		return ShapeComponents
	case c.Layout != nil:
		return ShapeLayout
	default:
		return ShapeEmpty
	}
}

// Decode parses a screen config. The top level must be a JSON object.
func Decode(raw []byte) (*ScreenConfig, error) {
	if !isObject(raw) {
		return nil, &ValidationError{Errors: []FieldError{{Path: "", Message: "screen config must be a JSON object"}}}
	}
	var cfg ScreenConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, &ValidationError{Errors: []FieldError{{Path: "", Message: err.Error()}}}
	}
	return &cfg, nil
}
