package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sdui/internal/gateway/app"
	"sdui/internal/gateway/config"
)

func main() {
	cfg, err := config.Load()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("gateway: config: %v", err)
	}

	a, err := app.NewWithConfig(cfg)
	if err != nil {
		log.Fatalf("gateway: init: %v", err)
	}
	seedSource := cfg.Seed.Path
	if seedSource == "" {
		seedSource = "embedded"
	}
	log.Printf("gateway: env=%s store=%s seed=%s watch=%t", cfg.Env, cfg.Store.Backend, seedSource, cfg.Seed.Watch)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.Start() }()

	select {
	case <-ctx.Done():
		log.Println("gateway: shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Printf("gateway: server stopped: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		log.Printf("gateway: forced shutdown: %v", err)
		os.Exit(1)
	}
	log.Println("gateway: stopped")
}
