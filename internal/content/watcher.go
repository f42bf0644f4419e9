package content

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceDelay is the default delay for batching file system events.
const DebounceDelay = 100 * time.Millisecond

// ChangeEvent reports that files under the content tree changed.
type ChangeEvent struct {
	// ChangedDirs contains the directories that had changes.
	ChangedDirs []string
	Timestamp   time.Time
}

// Subscriber receives change notifications.
// Implementations must be safe for concurrent use.
type Subscriber interface {
	OnContentChanged(event ChangeEvent)
}

// Watcher monitors a content tree and notifies subscribers after a quiet
// period. fsnotify is not recursive, so every directory under the root is
// watched and new directories are added as they appear.
//
// Thread-safety: all public methods are safe for concurrent use.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	root        string
	watched     map[string]struct{}
	subscribers []Subscriber

	debounceDelay  time.Duration
	pendingChanges map[string]struct{}
	debounceTimer  *time.Timer
	debounceMu     sync.Mutex

	logger *slog.Logger

	done    chan struct{}
	stopped chan struct{}
}

// NewWatcher creates a watcher for the tree at root.
// Call Start to begin watching and Close when done.
func NewWatcher(root string, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		_ = fw.Close()
		return nil, err
	}

	return &Watcher{
		watcher:        fw,
		root:           abs,
		watched:        make(map[string]struct{}),
		debounceDelay:  DebounceDelay,
		pendingChanges: make(map[string]struct{}),
		logger:         logger,
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}, nil
}

// SetDebounceDelay sets the batching delay for subsequent events.
func (w *Watcher) SetDebounceDelay(d time.Duration) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	w.debounceDelay = d
}

// Subscribe registers a subscriber.
func (w *Watcher) Subscribe(sub Subscriber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, sub)
}

// Start adds watches for the tree and begins the event loop.
func (w *Watcher) Start() error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	go w.eventLoop()
	return nil
}

// Close stops the watcher. After Close returns no more events are delivered.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	<-w.stopped

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()
	return err
}

// WatchedDirCount returns the number of directories being watched.
func (w *Watcher) WatchedDirCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.watched)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if _, ok := w.watched[path]; ok {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.watched[path] = struct{}{}
		return nil
	})
}

func (w *Watcher) eventLoop() {
	defer close(w.stopped)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Content watcher error", "error", err)
		}
	}
}

func isContentFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".mdoc", ".md":
		return true
	}
	return false
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	relevant := isContentFile(path) && (event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) ||
		event.Has(fsnotify.Rename))

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addTree(path); err != nil {
				w.logger.Debug("Failed to watch new directory", "dir", path, "error", err)
			}
			relevant = true
		}
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.mu.Lock()
		if _, ok := w.watched[path]; ok {
			delete(w.watched, path)
			relevant = true
		}
		w.mu.Unlock()
	}

	if !relevant {
		return
	}

	dir := filepath.Dir(path)
	w.logger.Debug("Content changed", "path", path, "op", event.Op.String())

	w.debounceMu.Lock()
	w.pendingChanges[dir] = struct{}{}
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.firePendingChanges)
	w.debounceMu.Unlock()
}

func (w *Watcher) firePendingChanges() {
	w.debounceMu.Lock()
	changes := w.pendingChanges
	w.pendingChanges = make(map[string]struct{})
	w.debounceTimer = nil
	w.debounceMu.Unlock()

	if len(changes) == 0 {
		return
	}

	event := ChangeEvent{
		ChangedDirs: make([]string, 0, len(changes)),
		Timestamp:   time.Now(),
	}
	for dir := range changes {
		event.ChangedDirs = append(event.ChangedDirs, dir)
	}

	w.mu.RLock()
	subs := append([]Subscriber(nil), w.subscribers...)
	w.mu.RUnlock()

	for _, sub := range subs {
		sub.OnContentChanged(event)
	}
}
