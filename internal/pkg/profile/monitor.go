package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/zerolag/zerolag/internal/pkg/logger"
)

// Monitor watches dir and emits a freshly validated snapshot whenever a
// profile file is written. Snapshots that fail validation are dropped here,
// the consumer keeps running on its previous configuration.
func Monitor(ctx context.Context, dir string) <-chan Snapshot {
	var updates = make(chan Snapshot)

	go func() {
		defer close(updates)
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			log.Info(fmt.Sprintf("cannot create profile watcher: %v", err), logger.Error)
			return
		}

		go func() {
			<-ctx.Done()
			err := watcher.Close()
			if err != nil {
				log.Info(fmt.Sprintf("closing profile watcher failed: %v", err), logger.Debug)
			}
		}()

		err = watcher.Add(dir)
		if err != nil {
			log.Info(fmt.Sprintf("cannot watch profiles directory: %v", err), logger.Error)
			return
		}

		for event := range watcher.Events {
			if event.Op != fsnotify.Write {
				continue
			}
			if !strings.HasSuffix(strings.ToLower(event.Name), ".toml") {
				continue
			}

			s, err := Load(event.Name)
			if err != nil {
				log.Info(fmt.Sprintf("profile change rejected: %v", err), logger.Warning)
				continue
			}
			log.Info(fmt.Sprintf("profile change detected: %s", event.Name), logger.Info)
			updates <- s
		}
	}()

	return updates
}
