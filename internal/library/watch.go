package library

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceInterval is how long Watch waits for changes to settle.
const DebounceInterval = 100 * time.Millisecond

// Watch calls reload whenever a .star file under one of dirs is written,
// created, removed or renamed, debounced by DebounceInterval. Missing
// directories are skipped. Watch returns once the watcher is running; the
// watch stops when ctx is done.
func Watch(ctx context.Context, dirs []string, reload func(), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	watched := 0
	for _, dir := range dirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		watched++
	}
	if watched == 0 {
		_ = watcher.Close()
		return nil
	}

	go watchLoop(ctx, watcher, reload, logger)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, reload func(), logger *slog.Logger) {
	defer func() { _ = watcher.Close() }()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	const ops = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&ops == 0 || filepath.Ext(event.Name) != ".star" {
				continue
			}
			logger.Debug("library file changed", slog.String("file", event.Name), slog.String("op", event.Op.String()))

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(DebounceInterval, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}
