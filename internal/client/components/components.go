// Package components holds the built-in component factories of the client
// library.
package components

import (
	"errors"
	"fmt"
	"strings"

	"sdui/internal/client/render"
	"sdui/internal/util/jsonutil"
)

type builder struct {
	build       func(props map[string]any, children []*render.Node) (*render.Node, error)
	interactive bool
}

func (b builder) Create(props map[string]any, children []*render.Node) (*render.Node, error) {
	return b.build(props, children)
}

func (b builder) Interactive() bool { return b.interactive }

// Builtins returns the default type-name to factory table.
func Builtins() map[string]render.Factory {
	return map[string]render.Factory{
		"Text":      builder{build: BuildText},
		"Image":     builder{build: BuildImage},
		"Spacer":    builder{build: BuildSpacer},
		"Row":       builder{build: BuildStack(render.Horizontal)},
		"Column":    builder{build: BuildStack(render.Vertical)},
		"Card":      builder{build: BuildCard, interactive: true},
		"Button":    builder{build: BuildButton, interactive: true},
		"Banner":    builder{build: BuildBanner, interactive: true},
		"MatchCard": builder{build: BuildMatchCard, interactive: true},
		"GameTile":  builder{build: BuildGameTile, interactive: true},
	}
}

// Register adds every built-in to lib. Existing registrations of the same
// name are replaced.
func Register(lib *render.Library) {
	for name, f := range Builtins() {
		lib.Register(name, f)
	}
}

type TextProps struct {
	Text    string `json:"text"`
	Variant string `json:"variant"`
}

func BuildText(props map[string]any, _ []*render.Node) (*render.Node, error) {
	var p TextProps
	if err := jsonutil.Coerce(props, &p); err != nil {
		return nil, err
	}
	return &render.Node{Text: strings.TrimSpace(p.Text)}, nil
}

type ImageProps struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

func BuildImage(props map[string]any, _ []*render.Node) (*render.Node, error) {
	var p ImageProps
	if err := jsonutil.Coerce(props, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Src) == "" {
		return nil, errors.New("src is required")
	}
	return &render.Node{Text: strings.TrimSpace(p.Alt)}, nil
}

func BuildSpacer(map[string]any, []*render.Node) (*render.Node, error) {
	return &render.Node{}, nil
}

// BuildStack lays its children out along dir.
func BuildStack(dir render.Direction) func(map[string]any, []*render.Node) (*render.Node, error) {
	return func(props map[string]any, children []*render.Node) (*render.Node, error) {
		var p struct {
			Scrollable bool `json:"scrollable"`
		}
		if err := jsonutil.Coerce(props, &p); err != nil {
			return nil, err
		}
		return &render.Node{Direction: dir, Scrollable: p.Scrollable, Children: children}, nil
	}
}

type CardProps struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

func BuildCard(props map[string]any, children []*render.Node) (*render.Node, error) {
	var p CardProps
	if err := jsonutil.Coerce(props, &p); err != nil {
		return nil, err
	}
	return &render.Node{Text: strings.TrimSpace(p.Title), Direction: render.Vertical, Children: children}, nil
}

type ButtonProps struct {
	Label    string         `json:"label"`
	Style    map[string]any `json:"style"`
	Disabled bool           `json:"disabled"`
}

func BuildButton(props map[string]any, _ []*render.Node) (*render.Node, error) {
	var p ButtonProps
	if err := jsonutil.Coerce(props, &p); err != nil {
		return nil, err
	}
	label := strings.TrimSpace(p.Label)
	if label == "" {
		return nil, errors.New("label is required")
	}
	return &render.Node{Text: label}, nil
}

type BannerProps struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	ImageURL string `json:"imageUrl"`
}

func BuildBanner(props map[string]any, _ []*render.Node) (*render.Node, error) {
	var p BannerProps
	if err := jsonutil.Coerce(props, &p); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(p.Title)
	if sub := strings.TrimSpace(p.Subtitle); sub != "" {
		text += " / " + sub
	}
	return &render.Node{Text: text}, nil
}

type MatchCardProps struct {
	Home    string             `json:"home"`
	Away    string             `json:"away"`
	Minute  int                `json:"minute"`
	Kickoff string             `json:"kickoff"`
	Odds    map[string]float64 `json:"odds"`
}

func BuildMatchCard(props map[string]any, _ []*render.Node) (*render.Node, error) {
	var p MatchCardProps
	if err := jsonutil.Coerce(props, &p); err != nil {
		return nil, err
	}
	if p.Home == "" || p.Away == "" {
		return nil, errors.New("home and away are required")
	}
	text := p.Home + " vs " + p.Away
	switch {
	case p.Minute > 0:
		text = fmt.Sprintf("%s %d'", text, p.Minute)
	case p.Kickoff != "":
		text += " @ " + p.Kickoff
	}
	return &render.Node{Text: text}, nil
}

type GameTileProps struct {
	GameID   string `json:"gameId"`
	Title    string `json:"title"`
	Provider string `json:"provider"`
}

func BuildGameTile(props map[string]any, _ []*render.Node) (*render.Node, error) {
	var p GameTileProps
	if err := jsonutil.Coerce(props, &p); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = p.GameID
	}
	if p.Provider != "" {
		title += " (" + p.Provider + ")"
	}
	return &render.Node{Text: title}, nil
}
