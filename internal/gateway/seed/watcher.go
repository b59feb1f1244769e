package seed

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	screensvc "sdui/internal/gateway/service/screen"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher re-applies a seed file whenever it changes on disk. Every reload
// overwrites, so each changed screen gets a new version and a broadcast.
type Watcher struct {
	path     string
	svc      *screensvc.Service
	debounce time.Duration
	watcher  *fsnotify.Watcher

	// reloaded is signalled after each apply attempt; tests wait on it
	reloaded chan error
}

func NewWatcher(path string, svc *screensvc.Service) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Editors replace files by rename, so watch the directory.
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:     abs,
		svc:      svc,
		debounce: defaultDebounce,
		watcher:  fw,
		reloaded: make(chan error, 1),
	}, nil
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	log.Printf("seed: watching %s", w.path)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != w.path {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("seed: watcher error: %v", err)
		case <-fire:
			fire = nil
			err := w.reload(ctx)
			if err != nil {
				log.Printf("seed: reload %s failed: %v", w.path, err)
			}
			select {
			case w.reloaded <- err:
			default:
			}
		}
	}
}

func (w *Watcher) reload(ctx context.Context) error {
	doc, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	if err := Apply(ctx, w.svc, doc, ApplyOptions{Overwrite: true}); err != nil {
		return err
	}
	log.Printf("seed: reloaded %s (%d screen(s))", w.path, len(doc.Screens))
	return nil
}
