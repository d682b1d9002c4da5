package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultWatchDebounce coalesces the burst of events an editor save emits.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watch reloads the config file at path whenever it changes and passes the
// result to onChange. The parent directory is watched so that editors that
// replace the file on save are still seen. An invalid file is logged and
// skipped. Watch returns once the watcher is running; it stops when ctx is
// canceled.
func Watch(ctx context.Context, path string, debounce time.Duration, logger zerolog.Logger, onChange func(*Config)) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config directory: %w", err)
	}

	name := filepath.Clean(path)
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("ignoring invalid config change")
			return
		}
		logger.Info().Str("path", path).Msg("config reloaded")
		onChange(cfg)
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, reload)
				mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("config watcher error")

			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return
			}
		}
	}()

	return nil
}
