// Package view mounts one screen on the client: it loads the config, keeps
// the rendered tree current as push events arrive and reports its state.
package view

import (
	"context"
	"errors"
	"log"
	"sync"

	"sdui/internal/client/api"
	"sdui/internal/client/push"
	"sdui/internal/client/render"
	"sdui/internal/client/screencache"
	"sdui/internal/condition"
	"sdui/internal/screen"
)

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

var (
	ErrUnmounted = errors.New("view: unmounted")
	// ErrSuperseded reports a load whose result was discarded because a newer
	// load started or the view was unmounted meanwhile.
	ErrSuperseded = errors.New("view: load superseded")
)

type Fetcher interface {
	FetchScreen(ctx context.Context, name string, q api.Query) (*api.Fetched, error)
}

// State is what the view currently shows. Err is set only in StatusError;
// the last good tree is kept so a failed reload can keep showing it.
type State struct {
	Status  Status
	Tree    *render.Tree
	Variant string
	Version int64
	Err     error
}

type Options struct {
	Screen   string
	Query    api.Query
	Context  condition.Context
	Fetcher  Fetcher
	Renderer *render.Renderer
	Cache    *screencache.Cache
	// OnChange is called after every state change, outside the lock.
	OnChange func(State)
}

type Controller struct {
	opts Options

	mu      sync.Mutex
	mounted bool
	gen     uint64
	cancel  context.CancelFunc
	applied int64
	state   State
}

func New(opts Options) *Controller {
	if opts.Renderer == nil {
		opts.Renderer = render.NewRenderer(nil, nil, nil)
	}
	if opts.Cache == nil {
		opts.Cache = screencache.New(0)
	}
	if opts.Context.UserID == "" {
		opts.Context.UserID = opts.Query.UserID
	}
	return &Controller{opts: opts, mounted: true}
}

func (c *Controller) key() screencache.Key {
	return screencache.Key{Screen: c.opts.Screen, Variant: c.opts.Query.Variant, UserID: c.opts.Query.UserID}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Load shows the cached config when live, otherwise fetches it. A newer Load
// cancels this one.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return ErrUnmounted
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	lctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state.Status = StatusLoading
	c.state.Err = nil
	st := c.state
	c.mu.Unlock()
	c.notify(st)
	defer cancel()

	if e, ok := c.opts.Cache.Get(c.key()); ok {
		return c.finish(ctx, gen, e.Config, e.Variant, nil)
	}
	f, err := c.opts.Fetcher.FetchScreen(lctx, c.opts.Screen, c.opts.Query)
	if err != nil {
		return c.finish(ctx, gen, nil, "", err)
	}
	c.opts.Cache.Put(c.key(), screencache.Entry{Config: f.Config, Variant: f.Variant, ConfigVersion: f.ConfigVersion})
	return c.finish(ctx, gen, f.Config, f.Variant, nil)
}

// Retry reloads after a failed fetch.
func (c *Controller) Retry(ctx context.Context) error {
	return c.Load(ctx)
}

func (c *Controller) finish(ctx context.Context, gen uint64, cfg *screen.ScreenConfig, variant string, fetchErr error) error {
	c.mu.Lock()
	if !c.mounted || gen != c.gen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.cancel = nil
	if fetchErr != nil {
		c.state.Status = StatusError
		c.state.Err = fetchErr
		st := c.state
		c.mu.Unlock()
		log.Printf("view: load %s failed: %v", c.opts.Screen, fetchErr)
		c.notify(st)
		return fetchErr
	}
	if cfg.Metadata.Version < c.applied {
		// a push already delivered something newer
		c.state.Status = StatusReady
		st := c.state
		c.mu.Unlock()
		c.notify(st)
		return nil
	}
	st := c.applyLocked(ctx, cfg, variant)
	c.mu.Unlock()
	c.notify(st)
	return nil
}

func (c *Controller) applyLocked(ctx context.Context, cfg *screen.ScreenConfig, variant string) State {
	if variant == "" {
		variant = screen.DefaultVariant
	}
	c.applied = cfg.Metadata.Version
	c.state = State{
		Status:  StatusReady,
		Tree:    c.opts.Renderer.RenderScreen(ctx, c.opts.Screen, variant, cfg, c.opts.Context),
		Variant: variant,
		Version: cfg.Metadata.Version,
	}
	return c.state
}

// HandleEvent applies one push event. screen_updated for this screen applies
// only when its version is newer than what is shown; theme, component and
// force refresh events invalidate the cache and reload.
func (c *Controller) HandleEvent(ctx context.Context, evt push.Event) error {
	switch evt.Type {
	case "screen_updated":
		var upd push.ScreenUpdate
		if err := evt.Decode(&upd); err != nil {
			return err
		}
		return c.applyUpdate(ctx, upd)
	case "theme_updated", "component_updated", "force_refresh":
		c.opts.Cache.InvalidateScreen(c.opts.Screen)
		err := c.Load(ctx)
		if errors.Is(err, ErrSuperseded) {
			return nil
		}
		return err
	}
	return nil
}

func (c *Controller) applyUpdate(ctx context.Context, upd push.ScreenUpdate) error {
	if upd.ScreenName != c.opts.Screen || upd.Config == nil {
		return nil
	}
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return nil
	}
	shown := c.state.Variant
	if shown == "" {
		shown = c.opts.Query.Variant
	}
	if shown == "" {
		shown = screen.DefaultVariant
	}
	if upd.Variant != "" && upd.Variant != shown {
		c.mu.Unlock()
		return nil
	}
	if upd.Config.Metadata.Version <= c.applied {
		c.mu.Unlock()
		return nil
	}
	c.opts.Cache.Put(c.key(), screencache.Entry{Config: upd.Config, Variant: shown})
	st := c.applyLocked(ctx, upd.Config, shown)
	c.mu.Unlock()
	c.notify(st)
	return nil
}

// Unmount stops the view. In-flight loads are cancelled and their results
// dropped.
func (c *Controller) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mounted = false
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Follow applies events from ch until ctx ends or ch closes.
func (c *Controller) Follow(ctx context.Context, ch <-chan push.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := c.HandleEvent(ctx, evt); err != nil && !errors.Is(err, ErrUnmounted) {
				log.Printf("view: %s event for %s: %v", evt.Type, c.opts.Screen, err)
			}
		}
	}
}

func (c *Controller) notify(st State) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(st)
	}
}
