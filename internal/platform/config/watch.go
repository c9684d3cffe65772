package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PolicyHolder publishes the current Policy to concurrent readers.
type PolicyHolder struct {
	current atomic.Pointer[Policy]
}

func NewPolicyHolder(p *Policy) *PolicyHolder {
	h := &PolicyHolder{}
	if p == nil {
		p = DefaultPolicy()
	}
	h.current.Store(p)
	return h
}

// Load returns the active policy. Callers must treat it as read-only.
func (h *PolicyHolder) Load() *Policy {
	return h.current.Load()
}

func (h *PolicyHolder) Store(p *Policy) {
	h.current.Store(p)
}

const reloadDebounce = 500 * time.Millisecond

// Watch reloads the policy file into holder whenever it changes. It blocks
// until ctx is cancelled. A file that fails to parse leaves the previous
// policy in place.
func Watch(ctx context.Context, path string, holder *PolicyHolder, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory and filter by name.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", path, err)
	}
	target := filepath.Clean(path)

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				p, err := LoadPolicy(path)
				if err != nil {
					logger.Warn("policy hot-reload failed", "path", path, "error", err)
					return
				}
				holder.Store(p)
				logger.Info("policy reloaded", "path", path)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("policy watcher error", "error", err)
		}
	}
}
