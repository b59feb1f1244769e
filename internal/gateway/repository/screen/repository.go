package screen

import (
	"context"

	"sdui/internal/screen"
)

// Record is one stored (screen, variant) config.
type Record struct {
	Screen  string               `json:"screen"`
	Variant string               `json:"variant"`
	Config  *screen.ScreenConfig `json:"config"`
}

// Backend persists the latest config per (screen, variant). The in-memory
// Store stays authoritative; a backend only sees committed writes.
type Backend interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, rec Record) error
	Close() error
}

// Archive keeps every committed version for history lookups.
type Archive interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, screenName, variant string, version int64) (*screen.ScreenConfig, error)
	List(ctx context.Context, screenName, variant string) ([]int64, error)
}
