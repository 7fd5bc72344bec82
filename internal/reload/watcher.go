// Package reload provides the modules_dir change-notification and
// rescan-on-change machinery referenced by SPEC_FULL.md §4.H. The teacher
// repo watched a single config file by polling stat(2) on a timer; this
// package instead watches a directory of *.plugin.yaml descriptors with
// fsnotify (grounded on the Sentinel-Gate and nabbar-golib examples,
// which use fsnotify for exactly this kind of directory-level
// change-notification), so a plugin dropped into modules_dir is imported
// promptly instead of on the next poll tick.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventType describes the kind of modules_dir change observed.
type EventType string

// Event kinds. Only Create and Write are surfaced — Remove/Rename are
// logged but do not trigger a rescan, since this package's importer
// (module.Importer) only ever adds modules, never evicts one in response
// to a deleted descriptor (spec.md's module lifecycle has no such
// "watch for deletion" operation).
const (
	EventCreated  EventType = "created"
	EventModified EventType = "modified"
)

// Event is a single modules_dir change notification.
type Event struct {
	Type EventType
	Path string
}

const pluginSuffix = ".plugin.yaml"

// Watcher watches a modules_dir for new or changed *.plugin.yaml
// descriptors.
type Watcher struct {
	dir string

	fsw    *fsnotify.Watcher
	events chan Event
	logger *slog.Logger

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewWatcher creates a Watcher rooted at dir. The underlying fsnotify
// watch is not established until Start is called.
func NewWatcher(dir string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("reload: creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		dir:     dir,
		fsw:     fsw,
		events:  make(chan Event, 8),
		logger:  logger,
		stopped: make(chan struct{}),
	}, nil
}

// Start begins watching dir and runs until ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("reload: watching %s: %w", w.dir, err)
	}
	go w.loop(ctx)
	return nil
}

// Events returns the channel of modules_dir change notifications.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop releases the underlying fsnotify watch. Safe to call more than
// once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		_ = w.fsw.Close()
	})
	<-w.stopped
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, pluginSuffix) {
				continue
			}

			var typ EventType
			switch {
			case ev.Has(fsnotify.Create):
				typ = EventCreated
			case ev.Has(fsnotify.Write):
				typ = EventModified
			default:
				continue
			}

			select {
			case w.events <- Event{Type: typ, Path: ev.Name}:
			default:
				w.logger.Warn("reload: events channel full, dropping notification", "path", ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("reload: fsnotify error", "error", err)
		}
	}
}
