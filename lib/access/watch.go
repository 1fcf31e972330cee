package access

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events an atomic rename produces
const reloadDelay = 100 * time.Millisecond

// Watch calls reload whenever a file of the API key table changes in dir, so keys
// edited on disk (for example by the keys command) are picked up by a running
// server. The watcher stops when ctx is done.
func Watch(ctx context.Context, dir string, reload func() error) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDelay, func() {
			if err := reload(); err != nil {
				Logger.Errorf("failed to reload API keys: %v", err)
				return
			}
			Logger.Infof("API keys reloaded from %s", dir)
		})
	}

	go func() {
		defer func() {
			_ = w.Close()
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !isKeyTableFile(event.Name) {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					schedule()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				Logger.Warningf("error watching %s: %v", dir, err)
			}
		}
	}()
	return nil
}

// isKeyTableFile matches "api-keys.<ext>" but not temp files of an atomic write
func isKeyTableFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, APIKeysKey+".") && !strings.HasSuffix(name, ".tmp")
}
