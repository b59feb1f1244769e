package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	screencache "sdui/internal/cache/screen"
	"sdui/internal/condition"
	"sdui/internal/gateway/analytics"
	"sdui/internal/gateway/config"
	"sdui/internal/gateway/handler"
	"sdui/internal/gateway/push"
	"sdui/internal/gateway/repository/component"
	screenrepo "sdui/internal/gateway/repository/screen"
	"sdui/internal/gateway/repository/theme"
	"sdui/internal/gateway/revision"
	"sdui/internal/gateway/seed"
	"sdui/internal/gateway/server"
	modulesvc "sdui/internal/gateway/service/module"
	screensvc "sdui/internal/gateway/service/screen"
)

type App struct {
	cfg     *config.Config
	server  *server.Server
	svc     *screensvc.Service
	hub     *push.Hub
	stores  *gatewayStores
	relay   *push.RedisRelay
	sink    analytics.Sink
	watcher *seed.Watcher

	cancel context.CancelFunc
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(cfg)
}

func NewWithConfig(cfg *config.Config) (*App, error) {
	stores, err := initStores(cfg)
	if err != nil {
		return nil, err
	}

	// Dependencies
	rev := revision.New()
	store := screenrepo.NewStore(rev, stores.options()...)
	restored, err := store.Restore(context.Background())
	if err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("failed to restore screens: %w", err)
	}
	if restored > 0 {
		log.Printf("screen store: restored %d config(s)", restored)
	}

	modules := modulesvc.New()
	hub := push.NewHub(push.WithStaleAfter(cfg.Push.StaleAfter), push.WithSweepEvery(cfg.Push.SweepEvery))
	svc := screensvc.New(screensvc.Deps{
		Store:      store,
		Themes:     theme.New(rev),
		Components: component.New(rev),
		Modules:    modules,
		Hub:        hub,
		Evaluator:  condition.New(modules),
		Cache: screencache.NewCachedResolver(rev, screencache.CacheConfig{
			MaxTTL:     cfg.Cache.MaxTTL,
			MaxEntries: cfg.Cache.MaxEntries,
		}),
		Revision: rev,
	})

	a := &App{cfg: cfg, svc: svc, hub: hub, stores: stores, sink: analytics.LogSink{}}

	if len(cfg.Analytics.KafkaBrokers) > 0 {
		sink, err := analytics.NewKafkaSink(analytics.KafkaConfig{
			Brokers: cfg.Analytics.KafkaBrokers,
			Topic:   cfg.Analytics.KafkaTopic,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		a.sink = sink
	}
	if cfg.Relay.RedisAddr != "" {
		relay, err := push.NewRedisRelay(cfg.Relay.RedisAddr, cfg.Relay.RedisPassword, cfg.Relay.RedisDB, cfg.Relay.Channel, hub)
		if err != nil {
			a.close()
			return nil, err
		}
		hub.SetRelay(relay)
		a.relay = relay
	}

	if err := seed.Run(context.Background(), svc, cfg.Seed.Path); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to seed: %w", err)
	}
	if cfg.Seed.Watch && cfg.Seed.Path != "" {
		w, err := seed.NewWatcher(cfg.Seed.Path, svc)
		if err != nil {
			a.close()
			return nil, err
		}
		a.watcher = w
	}

	// Routing & Server
	mux := server.NewMux(server.Handlers{
		Screen:    handler.NewScreenHandler(svc),
		Component: handler.NewComponentHandler(svc),
		Theme:     handler.NewThemeHandler(svc),
		Module:    handler.NewModuleHandler(svc),
		System:    handler.NewSystemHandler(svc, hub),
		Push: handler.NewPushHandler(svc, hub,
			handler.WithAnalytics(a.sink),
			handler.WithInboundRate(cfg.Push.InboundRate, cfg.Push.InboundBurst),
		),
	})
	a.server = server.New(cfg.Port, mux)
	return a, nil
}

func (a *App) Service() *screensvc.Service { return a.svc }

// Start runs the background loops and blocks serving HTTP.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.hub.RunSweeper(ctx)
	if a.relay != nil {
		go func() {
			if err := a.relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("push relay stopped: %v", err)
			}
		}()
	}
	if a.watcher != nil {
		go a.watcher.Run(ctx)
	}
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	err := a.server.Shutdown(ctx)
	a.close()
	return err
}

func (a *App) close() {
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			log.Printf("push relay close: %v", err)
		}
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			log.Printf("analytics sink close: %v", err)
		}
	}
	if err := a.stores.Close(); err != nil {
		log.Printf("screen backend close: %v", err)
	}
}
