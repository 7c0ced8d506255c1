package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events one save produces.
const reloadDelay = 200 * time.Millisecond

// Watch reloads the config file at path whenever it changes and passes the
// result to onChange. It runs until ctx is cancelled.
//
// The parent directory is watched rather than the file itself so editors
// that save by rename keep being tracked. A reload that fails to parse or
// validate is logged and onChange is not called.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	slog.Info("config: watching for changes", "path", abs)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending = time.After(reloadDelay)

		case <-pending:
			pending = nil
			cfg, err := Load(abs)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config", "path", abs, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", abs)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
