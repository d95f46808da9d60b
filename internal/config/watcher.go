package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the config file and invokes a callback when it changes.
// Only rule-set extensions (banned snippets, meta-line starters) are expected
// to change at runtime; the callback receives the full reloaded Config and
// decides what to apply.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(Config)
	done     chan struct{}
}

// NewWatcher starts watching the config file's directory. Editors replace
// files via rename, so the directory is watched rather than the file itself.
func NewWatcher(onChange func(Config)) (*Watcher, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		path:     path,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	// Debounce bursts of write events from editors that save in chunks.
	var pending *time.Timer
	fire := func() {
		w.onChange(Load())
	}

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(200*time.Millisecond, fire)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
