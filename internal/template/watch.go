package template

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the file-backed templates whenever yaml files in dir
// change, debouncing bursts of events. Returns after the watch is
// established; it stops when ctx is canceled.
func (s *Store) Watch(ctx context.Context, dir string) error {
	if dir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isTemplateFile(event.Name) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
					fire = timer.C
				} else {
					timer.Reset(reloadDebounce)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("template watch error", map[string]string{"error": err.Error()})
			case <-fire:
				timer = nil
				fire = nil
				if err := s.LoadDir(dir); err != nil {
					s.logger.Warn("template reload failed", map[string]string{
						"dir":   dir,
						"error": err.Error(),
					})
				}
			}
		}
	}()
	return nil
}

func isTemplateFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
