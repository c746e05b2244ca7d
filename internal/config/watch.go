package config

import (
	"context"
	"fmt"
	"os"
	"time"
)

type fileStamp struct {
	mod  time.Time
	size int64
}

func stampOf(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{mod: info.ModTime(), size: info.Size()}, nil
}

// WatchCatalog loads rooms.yaml and hands it to apply, then polls the file
// every interval. A changed file is reloaded and applied; a change that
// fails to load or apply is reported to onError once and skipped until the
// file changes again.
func WatchCatalog(ctx context.Context, path string, interval time.Duration, apply func(*Catalog) error, onError func(error)) error {
	if path == "" {
		path = "configs/rooms.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if onError == nil {
		onError = func(error) {}
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		return err
	}
	if err := apply(cat); err != nil {
		return fmt.Errorf("apply catalog: %w", err)
	}
	last, err := stampOf(path)
	if err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			stamp, err := stampOf(path)
			if err != nil || stamp == last {
				continue
			}
			last = stamp

			cat, err := LoadCatalog(path)
			if err != nil {
				onError(err)
				continue
			}
			if err := apply(cat); err != nil {
				onError(fmt.Errorf("apply catalog: %w", err))
			}
		}
	}()

	return nil
}
