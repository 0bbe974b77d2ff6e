package plugin

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultReloadDebounce coalesces bursts of filesystem events (editors
// often write a file several times in quick succession) into one reload.
const DefaultReloadDebounce = 500 * time.Millisecond

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period required before a reload fires.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher reloads the manager when plugin sources change on disk. Only
// events touching Lua sources count; everything else in the search paths
// is ignored.
type Watcher struct {
	mgr      *Manager
	fsw      *fsnotify.Watcher
	log      zerolog.Logger
	debounce time.Duration

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewWatcher creates a watcher over the given search paths. Paths that do
// not exist are skipped; at least one must be watchable.
func NewWatcher(mgr *Manager, paths []string, log zerolog.Logger, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		mgr:      mgr,
		fsw:      fsw,
		log:      log.With().Str("component", "watcher").Logger(),
		debounce: DefaultReloadDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}

	watched := 0
	for _, dir := range paths {
		if err := fsw.Add(dir); err != nil {
			w.log.Debug().Err(err).Str("path", dir).Msg("search path not watchable")
			continue
		}
		watched++
	}
	if watched == 0 {
		fsw.Close()
		return nil, ErrNoWatchablePaths
	}
	return w, nil
}

// Start launches the watch loop. It is a no-op when already running.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop halts the watch loop and releases the filesystem watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.cancel()
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			w.log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("plugin source changed")
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")

		case <-fire:
			timer = nil
			fire = nil
			w.log.Info().Msg("reloading plugins")
			if err := w.mgr.Reload(ctx); err != nil {
				w.log.Error().Err(err).Msg("reload failed")
			}
		}
	}
}

// relevant reports whether the event can affect a loaded plugin.
func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	return strings.HasSuffix(base, ".lua")
}
