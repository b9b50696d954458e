package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// TokenWatcher holds the hook token and rereads it whenever the token file
// changes, so the secret can be rotated without a restart. The file is only
// read, never written.
type TokenWatcher struct {
	hooks   HooksConfig
	mu      sync.RWMutex
	token   string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchToken loads the hook token and, when it comes from a file, starts
// observing that file. Close stops the observation.
func (h *HooksConfig) WatchToken() (*TokenWatcher, error) {
	w := &TokenWatcher{hooks: *h, done: make(chan struct{})}
	token, err := h.GetToken()
	if err != nil {
		return nil, err
	}
	w.token = token
	if h.TokenFile == "" {
		close(w.done)
		return w, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	path := filepath.Clean(h.TokenFile)
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch hook token file %s: %w", path, err)
	}
	w.watcher = watcher

	slog.Info("Started watching hook token file", "path", path)
	go w.watch(path)
	return w, nil
}

// Token returns the current hook token.
func (w *TokenWatcher) Token() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.token
}

// Reload rereads the token file. A file that cannot be read or that became
// empty leaves the previous token active.
func (w *TokenWatcher) Reload() error {
	token, err := w.hooks.GetToken()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if token == "" && w.token != "" {
		return fmt.Errorf("hook token file %s is empty", w.hooks.TokenFile)
	}
	w.token = token
	return nil
}

func (w *TokenWatcher) watch(path string) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := w.Reload(); err != nil {
					slog.Error("Failed to reload hook token", "error", err)
					continue
				}
				slog.Info("Hook token reloaded", "path", path)
			}

			// secret mounts replace the file; follow the new one
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				slog.Debug("Hook token file replaced, re-watching", "path", path)
				_ = w.watcher.Add(path)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Hook token watcher error", "error", err)
		}
	}
}

// Close stops watching the token file. The last token stays readable.
func (w *TokenWatcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close hook token watcher: %w", err)
	}
	<-w.done
	return nil
}
