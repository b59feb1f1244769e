package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"sdui/internal/cache/disk"
	"sdui/internal/client/action"
	"sdui/internal/client/api"
	"sdui/internal/client/components"
	"sdui/internal/client/push"
	"sdui/internal/client/render"
	"sdui/internal/client/screencache"
	"sdui/internal/client/view"
	"sdui/internal/condition"
)

// printNavigator reports navigate actions instead of switching screens.
type printNavigator struct{}

func (printNavigator) Navigate(_ context.Context, payload map[string]any) error {
	fmt.Printf(">> navigate %v\n", payload["route"])
	return nil
}

func main() {
	_ = godotenv.Load()

	gateway := flag.String("gateway", envOr("SDUI_GATEWAY", "http://localhost:8080"), "gateway base URL")
	screenName := flag.String("screen", "home", "screen to preview")
	variant := flag.String("variant", "", "requested variant")
	userID := flag.String("user", "", "user id")
	platform := flag.String("platform", "ios", "client platform")
	segment := flag.String("segment", "", "user segment")
	appVersion := flag.String("app-version", "", "client app version")
	follow := flag.Bool("follow", true, "follow push updates")
	tap := flag.String("tap", "", "fire the actions of this node once after the first load")
	cacheDir := flag.String("cache-dir", os.Getenv("SDUI_CACHE_DIR"), "keep last-known screens on disk in this directory")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base := strings.TrimRight(*gateway, "/")
	pc := push.New(push.Options{
		URL: "ws" + strings.TrimPrefix(base, "http") + "/ws",
		Registration: push.Registration{
			UserID:     *userID,
			Platform:   *platform,
			Segment:    *segment,
			AppVersion: *appVersion,
		},
		OnState: func(s push.State) { log.Printf("push: %s", s) },
	})

	dispatcher := action.New(
		action.WithNavigator(printNavigator{}),
		action.WithModules(pc),
		action.WithAPICaller(action.NewHTTPCaller(base)),
		action.WithAnalytics(pc),
		action.WithResultHandler(func(ac action.Context, moduleID, actionType string, result map[string]any) {
			fmt.Printf(">> %s/%s from %s: %v\n", moduleID, actionType, ac.NodeID, result)
		}),
	)
	lib := render.NewLibrary()
	components.Register(lib)
	renderer := render.NewRenderer(lib, condition.New(pc), dispatcher)

	ctrl := view.New(view.Options{
		Screen: *screenName,
		Query: api.Query{
			Variant:    *variant,
			UserID:     *userID,
			Platform:   *platform,
			Segment:    *segment,
			AppVersion: *appVersion,
		},
		Context: condition.Context{
			Platform:    *platform,
			UserSegment: *segment,
			UserID:      *userID,
			AppVersion:  *appVersion,
		},
		Fetcher:  api.NewClient(base),
		Renderer: renderer,
		Cache:    openCache(*cacheDir),
		OnChange: printState,
	})
	defer ctrl.Unmount()

	if *follow {
		go func() {
			if err := pc.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("push: %v", err)
			}
		}()
		go ctrl.Follow(ctx, pc.Events())
	}

	if err := ctrl.Load(ctx); err != nil {
		log.Printf("load %s: %v", *screenName, err)
		if !*follow {
			os.Exit(1)
		}
	}
	if *tap != "" {
		fire(ctx, ctrl.State().Tree, *tap)
	}
	if !*follow {
		return
	}
	<-ctx.Done()
}

func fire(ctx context.Context, tree *render.Tree, key string) {
	n := tree.Find(key)
	if n == nil || n.Trigger == nil {
		log.Printf("tap: no interactive node %q", key)
		return
	}
	if err := n.Trigger.Fire(ctx); err != nil {
		log.Printf("tap %s: %v", key, err)
	}
}

func printState(st view.State) {
	switch st.Status {
	case view.StatusLoading:
		return
	case view.StatusError:
		fmt.Printf("error: %v (retry on next update)\n", st.Err)
	case view.StatusReady:
		fmt.Println(strings.Repeat("-", 40))
		if err := render.Fprint(os.Stdout, st.Tree); err != nil {
			log.Printf("print: %v", err)
		}
	}
}

func openCache(dir string) *screencache.Cache {
	if strings.TrimSpace(dir) == "" {
		return screencache.New(0)
	}
	store, err := disk.Open(disk.Config{Root: dir})
	if err != nil {
		log.Printf("cache: %v; using memory only", err)
		return screencache.New(0)
	}
	return screencache.New(0, screencache.WithDisk(store))
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
