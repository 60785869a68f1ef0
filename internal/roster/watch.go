package roster

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "rankbot/pkg/logx"
)

const watchDebounce = 250 * time.Millisecond

// Watch re-reads the roster shortly after its file changes. It watches the
// parent directory so editors that replace the file are seen too. Watch
// returns nil on cancellation and an error when the watcher breaks; callers
// are expected to restart it.
func (s *Store) Watch(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	file := filepath.Base(s.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("roster watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("roster watch %s: %w", dir, err)
	}
	s.log.Debug("roster watcher started", logx.String("dir", dir), logx.String("file", file))

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			if ctx.Err() != nil {
				return
			}
			s.Invalidate()
			s.EnsureFresh()
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("roster watch: events closed")
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("roster watch: errors closed")
			}
			if err == nil {
				continue
			}
			// overflow means events were dropped
			if strings.Contains(strings.ToLower(err.Error()), "overflow") {
				s.log.Warn("roster watch overflow", logx.Err(err))
				reload()
				continue
			}
			s.log.Warn("roster watch error", logx.Err(err))
		}
	}
}
