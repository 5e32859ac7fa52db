package ingest

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Change is what happened to the canonical log file.
type Change int

const (
	Modified Change = iota
	Created
	Removed
)

func (c Change) String() string {
	switch c {
	case Modified:
		return "modified"
	case Created:
		return "created"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Watcher reports changes to one file name inside a directory. The
// directory is watched rather than the file so that a rotated-in
// replacement is seen as a create.
type Watcher struct {
	w    *fsnotify.Watcher
	name string
}

// Watch starts watching dir for changes to name.
func Watch(dir, name string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create watcher")
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "watch %s", dir)
	}
	return &Watcher{w: w, name: name}, nil
}

// Next blocks until the next change to the watched file. ok is false once
// the watcher has been closed.
func (w *Watcher) Next() (Change, bool, error) {
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return 0, false, nil
			}
			if c, match := classify(ev, w.name); match {
				return c, true, nil
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return 0, false, nil
			}
			return 0, true, errors.Wrap(err, "watch")
		}
	}
}

// Close stops the watcher; a blocked Next returns.
func (w *Watcher) Close() error { return w.w.Close() }

func classify(ev fsnotify.Event, name string) (Change, bool) {
	if filepath.Base(ev.Name) != name {
		return 0, false
	}
	switch {
	case ev.Has(fsnotify.Create):
		return Created, true
	case ev.Has(fsnotify.Rename), ev.Has(fsnotify.Remove):
		return Removed, true
	case ev.Has(fsnotify.Write):
		return Modified, true
	}
	return 0, false
}
