// Package watch triggers a callback when any of a set of files changes on
// disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"
)

// DefaultDebounce groups the burst of events an editor or a ConfigMap update
// produces into one change.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches the parent directories of Paths, so files that are
// replaced by rename are still seen.
type Watcher struct {
	Paths []string
	// Refresh, when set, is called after every onChange and may name files
	// to watch in addition to the current ones, e.g. a moved inventory.
	Refresh  func() []string
	Debounce time.Duration
	Log      logr.Logger
}

// Run calls onChange once per settled burst of events touching one of the
// watched files. It blocks until ctx is done. onChange runs on the watch
// goroutine; events arriving meanwhile are coalesced into the next call.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create file watcher: %w", err)
	}
	defer watcher.Close()

	files := sets.New[string]()
	dirs := sets.New[string]()
	track := func(paths []string) error {
		for _, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				return fmt.Errorf("unable to resolve %s: %w", p, err)
			}
			if files.Has(abs) {
				continue
			}
			if dir := filepath.Dir(abs); !dirs.Has(dir) {
				if err := watcher.Add(dir); err != nil {
					return fmt.Errorf("unable to watch %s: %w", dir, err)
				}
				dirs.Insert(dir)
			}
			files.Insert(abs)
			w.Log.V(1).Info("watching file", "file", abs)
		}
		return nil
	}
	if err := track(w.Paths); err != nil {
		return err
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(event.Name)
			if !files.Has(abs) || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.Log.V(1).Info("file changed", "file", event.Name, "op", event.Op.String())
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.Log.Error(err, "file watch error")
		case <-timer.C:
			w.Log.Info("watched files changed, running sync")
			onChange(ctx)
			if w.Refresh != nil {
				if err := track(w.Refresh()); err != nil {
					w.Log.Error(err, "unable to watch new files")
				}
			}
		}
	}
}
