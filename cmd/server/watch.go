package main

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// watchTuning calls reload whenever path is written or replaced. The parent
// directory is watched so editors that save by rename are seen too. Bursts of
// events collapse into one reload.
func watchTuning(ctx context.Context, path string, reload func(context.Context) error, logger *log.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		logger.Printf("tuning watcher disabled: %v", err)
		<-ctx.Done()
		return nil
	}
	target := filepath.Clean(path)

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			fire = time.After(reloadDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Printf("tuning watcher: %v", err)
		case <-fire:
			fire = nil
			rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := reload(rctx); err != nil {
				logger.Printf("tuning reload rejected, keeping current tuning: %v", err)
			}
			cancel()
		}
	}
}
