// Package watch observes the document root for changes and coalesces bursts
// of filesystem events into single change notifications.
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/1ureka/pageshare/internal/util"
)

// DebounceWindow is how long the watcher waits after the last event before
// firing the callback. Editors tend to emit several events per save.
const DebounceWindow = 200 * time.Millisecond

// Watcher observes a directory tree and invokes a callback when any file
// under it changes.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	onChange func()
}

// New creates a watcher over root. The callback runs on the watcher's own
// goroutine, coalesced over DebounceWindow.
func New(root string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{fsw: fsw, root: root, onChange: onChange}

	// Watch the root and every subdirectory. fsnotify does not recurse.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

// Run processes events until ctx is cancelled. Watcher errors are logged
// and do not stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			util.LogDebug("fs event: %s %s", event.Op, event.Name)

			// Newly created directories need their own watch.
			if event.Has(fsnotify.Create) {
				w.addIfDir(event.Name)
			}

			if timer == nil {
				timer = time.NewTimer(DebounceWindow)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(DebounceWindow)
			}

		case <-fire:
			timer = nil
			fire = nil
			w.onChange()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			util.LogWarning("watcher error: %v", err)

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) addIfDir(path string) {
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // path may be gone already
		}
		if d.IsDir() {
			return w.fsw.Add(p)
		}
		return nil
	})
	if err != nil {
		util.LogDebug("watch %s: %v", path, err)
	}
}
