package stagecache

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/slighter12/usd-mcp-go/logger"
)

// watcher invalidates cache entries when their backing files change on
// disk. Editors that replace files atomically produce Rename or Remove
// events instead of Write, so all three trigger invalidation.
type watcher struct {
	fs       *fsnotify.Watcher
	onChange func(path string)

	mu      sync.Mutex
	watched map[string]struct{}
	done    chan struct{}
}

func newWatcher(onChange func(path string)) (*watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{
		fs:       fs,
		onChange: onChange,
		watched:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *watcher) add(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[path]; ok {
		return nil
	}
	if err := w.fs.Add(path); err != nil {
		return err
	}
	w.watched[path] = struct{}{}
	return nil
}

func (w *watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[path]; !ok {
		return
	}
	delete(w.watched, path)
	// Remove fails once the file is already gone from disk.
	if err := w.fs.Remove(path); err != nil {
		logger.Debug("Failed to unwatch stage file", "path", path, "error", err)
	}
}

func (w *watcher) close() error {
	close(w.done)
	return w.fs.Close()
}

func (w *watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.Debug("Stage file changed", "path", event.Name, "op", event.Op.String())
				w.onChange(event.Name)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warn("Stage file watcher error", "error", err)
		}
	}
}
