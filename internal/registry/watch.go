package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces bursts of filesystem events (e.g. an editor
// doing write-then-rename) into a single rediscovery.
const debounceWindow = 300 * time.Millisecond

// Watch rebuilds the registry whenever a plugin directory changes,
// invoking onReload with the fresh Registry. It runs until ctx is
// cancelled. Intended for long-running invocations (jn serve); a
// one-shot CLI invocation never needs it since discovery state isn't
// kept across invocations except via the on-disk cache file.
func Watch(ctx context.Context, dirs []TierDir, opts Options, onReload func(*Registry)) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, d := range dirs {
		if err := w.Add(d.Path); err != nil {
			logger.Warn("registry watch: cannot watch directory", "path", d.Path, "error", err)
		}
	}

	var timer *time.Timer
	rediscover := func() {
		reg, err := Discover(dirs, opts)
		if err != nil {
			logger.Error("registry watch: rediscovery failed", "error", err)
			return
		}
		onReload(reg)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, rediscover)
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("registry watch: watcher error", "error", werr)
		}
	}
}
