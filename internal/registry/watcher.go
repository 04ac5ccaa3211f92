package registry

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a DirRegistry when its directory changes. Filesystem
// events are debounced so an editor save (write + chmod + rename) triggers
// one reload, not three.
type Watcher struct {
	registry *DirRegistry
	cache    *CachedRegistry
	debounce time.Duration
	logger   *log.Logger

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher watches the registry's directory. cache may be nil when the
// registry is used uncached.
func NewWatcher(registry *DirRegistry, cache *CachedRegistry, debounce time.Duration, logger *log.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(registry.dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", registry.dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		registry: registry,
		cache:    cache,
		debounce: debounce,
		logger:   logger,
		watcher:  fsw,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.loop(ctx)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Printf("registry watcher error: %v", err)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.registry.Reload(); err != nil {
				if w.logger != nil {
					w.logger.Printf("registry reload failed: %v", err)
				}
				continue
			}
			if w.cache != nil {
				w.cache.Invalidate()
			}
			if w.logger != nil {
				w.logger.Printf("registry reloaded: %d skills", w.registry.Len())
			}
		}
	}
}

// Close stops watching. Pending debounced reloads are discarded.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	return err
}
