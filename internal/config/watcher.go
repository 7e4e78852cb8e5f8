package config

import (
	"context"
	"log"

	"github.com/fsnotify/fsnotify"
)

// Watch re-reads the config file on filesystem change and publishes the
// sensor snapshot to the runtime. Threshold changes in the file are
// ignored at runtime: thresholds are immutable after load; only the
// enable flags and rescue mode hot-reload.
func Watch(ctx context.Context, path string, rt *Runtime) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Printf("config: reload of %s rejected: %v", path, err)
					continue
				}
				rt.Publish(cfg.Sensors)
				log.Printf("config: sensor flags reloaded from %s", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("config: watcher error: %v", err)
			}
		}
	}()

	return nil
}
