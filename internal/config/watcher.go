package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher monitors the config file and reloads it on change
type Watcher struct {
	config    *Config
	watcher   *fsnotify.Watcher
	callbacks []func(Settings)
	debounce  time.Duration
	stopCh    chan struct{}
	timer     *time.Timer
	mu        sync.Mutex
	running   bool
}

// WatcherOption defines a functional option for Watcher
type WatcherOption func(*Watcher)

// WithDebounce sets how long to wait for writes to settle before reloading
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher creates a watcher for config
func NewWatcher(config *Config, opts ...WatcherOption) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		config:   config,
		watcher:  watcher,
		debounce: defaultDebounce,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// AddCallback registers fn to receive the settings after every reload that
// changed them
func (w *Watcher) AddCallback(fn func(Settings)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start watches the config directory. Editors replace files by rename, so
// the directory rather than the file is watched.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher is already running")
	}
	if err := w.watcher.Add(filepath.Dir(w.config.ConfigFile)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	w.running = true
	go w.watchLoop()
	return nil
}

// Stop stops the watcher, it is safe to call more than once
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)
	if w.timer != nil {
		w.timer.Stop()
	}
	return w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isConfigEvent(event) {
				continue
			}
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(w.debounce, w.reload)
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logrus.WithError(err).Warn("Config watcher error")

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) isConfigEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.config.ConfigFile) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) reload() {
	before := w.config.Settings()
	if err := w.config.load(); err != nil {
		logrus.WithError(err).Warn("Failed to reload configuration, keeping previous settings")
		return
	}
	after := w.config.Settings()
	if after == before {
		return
	}
	logrus.WithField("file", w.config.ConfigFile).Info("Configuration reloaded")

	w.mu.Lock()
	callbacks := make([]func(Settings), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(after)
	}
}
