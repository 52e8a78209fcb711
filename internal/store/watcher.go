package store

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// WatchEvent is a debounced change event for the durable approval file.
type WatchEvent struct {
	Path string
	Op   fsnotify.Op
	At   time.Time
}

// Watcher observes the durable approval file for out-of-process changes.
//
// The store does no file locking, so another process may rewrite the file at
// any time; the watcher lets long-running consumers notice and reload.
// Editors and atomic-rename writers produce bursts of events, so changes are
// debounced and consolidated before they are emitted through Events().
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *log.Logger

	debounceWindow time.Duration
	events         chan WatchEvent
	errors         chan error
	fire           chan struct{}

	mu      sync.Mutex
	pending fsnotify.Op
	timer   *time.Timer

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewWatcher creates a watcher for the given approval file path. The parent
// directory is watched so the file may be created, replaced, or removed while
// the watcher runs.
func NewWatcher(path string) (*Watcher, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fs watcher: %w", err)
	}

	return &Watcher{
		path:           path,
		watcher:        fsw,
		logger:         log.Default().WithPrefix("watcher"),
		debounceWindow: 200 * time.Millisecond,
		events:         make(chan WatchEvent, 16),
		errors:         make(chan error, 4),
		fire:           make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}, nil
}

// Events returns the debounced event channel. It is closed when the watcher
// stops.
func (w *Watcher) Events() <-chan WatchEvent {
	return w.events
}

// Errors returns the watcher error channel.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start begins watching. It is safe to call once.
func (w *Watcher) Start() error {
	var err error
	w.startOnce.Do(func() {
		dir := filepath.Dir(w.path)
		if addErr := w.watcher.Add(dir); addErr != nil {
			err = fmt.Errorf("watching %s: %w", dir, addErr)
			return
		}
		go w.loop()
	})
	return err
}

// Stop ends watching and closes the event channel.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		<-w.doneCh
	})
}

// loop is the only goroutine that sends on or closes the events channel.
func (w *Watcher) loop() {
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		_ = w.watcher.Close()
		close(w.events)
		close(w.doneCh)
	}()

	for {
		select {
		case <-w.stopCh:
			return
		case <-w.fire:
			w.emit()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			w.logger.Debug("fs event", "op", ev.Op.String(), "path", ev.Name)
			w.accumulate(ev.Op)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// accumulate merges an event into the pending set and (re)arms the debounce
// timer. The timer only signals the loop; the loop performs the emit.
func (w *Watcher) accumulate(op fsnotify.Op) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending |= op
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounceWindow, func() {
		select {
		case w.fire <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) emit() {
	w.mu.Lock()
	op := w.pending
	w.pending = 0
	w.mu.Unlock()

	if op == 0 {
		return
	}
	select {
	case w.events <- WatchEvent{Path: w.path, Op: op, At: time.Now().UTC()}:
	default:
		w.logger.Warn("dropping watch event: consumer not keeping up", "op", op.String())
	}
}
