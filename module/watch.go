package module

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchForNewManifests watches root for newly created subdirectories after
// boot and logs a notice that a restart is required to load them. The
// worker's handler tables are boot-immutable, so this is an operator
// convenience rather than a hot-reload mechanism.
func WatchForNewManifests(root string, logger *slog.Logger) (stop func(), err error) {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&fsnotify.Create != 0 {
					logger.Info("new entry detected under modules dir; restart required to load it",
						"path", ev.Name)
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("modules dir watch error", "error", werr)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
