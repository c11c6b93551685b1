// Package watch monitors an input tree and triggers a rescan when images
// change.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"cgmatch/internal/imageio"
)

// Event represents an image change under the watched tree.
type Event struct {
	Path      string    `json:"path"`
	Operation string    `json:"operation"` // "created", "modified", "deleted", "renamed"
	Time      time.Time `json:"time"`
}

// Watcher monitors directories for image changes and emits debounced
// triggers. A burst of writes produces one trigger once the tree settles.
type Watcher struct {
	watcher  *fsnotify.Watcher
	Events   chan Event
	Triggers chan struct{}
	root     string
	debounce time.Duration
	log      *slog.Logger
	done     chan bool
}

// New creates a watcher over root and its subdirectories.
func New(root string, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	w := &Watcher{
		watcher:  watcher,
		Events:   make(chan Event, 100),
		Triggers: make(chan struct{}, 1),
		root:     root,
		debounce: debounce,
		log:      log,
		done:     make(chan bool),
	}

	return w, nil
}

// Start begins monitoring and returns immediately.
func (w *Watcher) Start(ctx context.Context) error {
	if err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	}); err != nil {
		return err
	}
	w.log.Info("watching directory", "root", w.root, "debounce", w.debounce)

	go w.processEvents(ctx)

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) processEvents(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			var operation string
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				operation = "created"
				// New directories need their own watch.
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watcher.Add(event.Name)
					continue
				}
			case event.Op&fsnotify.Write == fsnotify.Write:
				operation = "modified"
			case event.Op&fsnotify.Remove == fsnotify.Remove:
				operation = "deleted"
			case event.Op&fsnotify.Rename == fsnotify.Rename:
				operation = "renamed"
			case event.Op&fsnotify.Chmod == fsnotify.Chmod:
				continue
			default:
				continue
			}

			if !imageio.IsImageFile(event.Name) {
				continue
			}

			ev := Event{Path: event.Name, Operation: operation, Time: time.Now()}
			select {
			case w.Events <- ev:
			default:
				w.log.Warn("event buffer full, dropping event", "path", event.Name)
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			select {
			case w.Triggers <- struct{}{}:
			default:
				// A trigger is already pending; the next run picks up
				// everything anyway.
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("filesystem watcher error", "error", err)

		case <-ctx.Done():
			return

		case <-w.done:
			return
		}
	}
}
