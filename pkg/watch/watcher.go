package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/wikifeed/pkg/log"
	"github.com/cuemby/wikifeed/pkg/metrics"
	"github.com/cuemby/wikifeed/pkg/types"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce coalesces the burst of events editors emit on save
const DefaultDebounce = 250 * time.Millisecond

// Replacer swaps the full subscription set
type Replacer interface {
	Replace(subs []types.Subscription) error
}

// Watcher reloads a subscriptions file into a registry whenever it changes
type Watcher struct {
	path     string
	registry Replacer
	debounce time.Duration
	onReload func(count int, err error)
	logger   zerolog.Logger

	mu     sync.Mutex
	timer  *time.Timer
	reload chan struct{}
}

// NewWatcher creates a watcher for path
func NewWatcher(path string, registry Replacer) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		registry: registry,
		debounce: DefaultDebounce,
		logger:   log.WithComponent("watch").With().Str("path", path).Logger(),
		reload:   make(chan struct{}, 1),
	}
}

// WithDebounce sets the quiet period before a reload
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// OnReload registers a callback run after every reload attempt
func (w *Watcher) OnReload(fn func(count int, err error)) *Watcher {
	w.onReload = fn
	return w
}

// Load reads the file once and replaces the registry contents
func (w *Watcher) Load() (int, error) {
	subs, err := LoadFile(w.path)
	if err == nil {
		err = w.registry.Replace(subs)
	}
	if w.onReload != nil {
		w.onReload(len(subs), err)
	}
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}

// Run watches the file until ctx is cancelled. The directory is watched
// rather than the file so that atomic replace-by-rename is picked up.
// A bad document is logged and the registry keeps its previous contents.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	metrics.RegisterComponent(metrics.ComponentWatcher, true, "watching")
	w.logger.Info().Msg("Watching subscriptions file")

	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				w.schedule()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
			metrics.UpdateComponent(metrics.ComponentWatcher, false, err.Error())

		case <-w.reload:
			n, err := w.Load()
			if err != nil {
				w.logger.Warn().Err(err).Msg("Subscriptions file rejected, keeping previous set")
				metrics.UpdateComponent(metrics.ComponentWatcher, false, err.Error())
				continue
			}
			w.logger.Info().Int("subscriptions", n).Msg("Subscriptions reloaded")
			metrics.UpdateComponent(metrics.ComponentWatcher, true, "watching")
		}
	}
}

// schedule (re)starts the debounce timer
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.reload <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
