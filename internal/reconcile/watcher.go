package reconcile

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// watcher forwards file system events for one folder to a handler, from a
// single goroutine.
type watcher struct {
	fs       *fsnotify.Watcher
	handle   func(path string)
	logger   *slog.Logger
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func startWatcher(dir string, handle func(path string), logger *slog.Logger) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	w := &watcher{fs: fw, handle: handle, logger: logger, done: make(chan struct{})}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			// Permission changes do not alter record content.
			if ev.Op == fsnotify.Chmod {
				continue
			}
			w.handle(ev.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("status folder watcher error", "error", err)
		}
	}
}

// Close stops the watcher and waits for the handler to return.
func (w *watcher) Close() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fs.Close()
		w.wg.Wait()
	})
}
