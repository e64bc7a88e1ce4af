// Package watcher reports changes to configuration files.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce coalesces editor save bursts into one callback.
const DefaultDebounce = 250 * time.Millisecond

// Watcher calls onChange when any of its target files is written, created,
// renamed or removed. It watches the parent directories since editors often
// replace files instead of writing them in place.
type Watcher struct {
	targets  map[string]struct{}
	dirs     map[string]struct{}
	onChange func(path string)
	watcher  *fsnotify.Watcher
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	running  bool
	debounce time.Duration
}

// New creates a Watcher for the given files.
func New(onChange func(path string), paths ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		targets:  make(map[string]struct{}, len(paths)),
		dirs:     make(map[string]struct{}, len(paths)),
		onChange: onChange,
		watcher:  fsw,
		ctx:      ctx,
		cancel:   cancel,
		debounce: DefaultDebounce,
	}
	for _, p := range paths {
		clean := filepath.Clean(p)
		w.targets[clean] = struct{}{}
		w.dirs[filepath.Dir(clean)] = struct{}{}
	}
	return w, nil
}

// SetDebounce overrides the debounce interval. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for dir := range w.dirs {
		if _, err := os.Stat(dir); err != nil {
			log.Warn().Err(err).Str("path", dir).Msg("Config directory missing, not watching")
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			log.Warn().Err(err).Str("path", dir).Msg("Failed to add watch")
		}
	}

	go w.watchLoop()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	w.cancel()
	return w.watcher.Close()
}

// watchLoop is the main event loop.
func (w *Watcher) watchLoop() {
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			path := filepath.Clean(event.Name)
			if _, watched := w.targets[path]; !watched || event.Op&relevant == 0 {
				continue
			}

			if t, pending := timers[path]; pending {
				t.Stop()
			}
			timers[path] = time.AfterFunc(w.debounce, func() {
				log.Info().Str("path", path).Msg("Config file changed")
				if w.onChange != nil {
					w.onChange(path)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}
