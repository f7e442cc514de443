// Package watcher reports edits made to a file-backed preference directory
// by other processes.
//
// The watcher listens to the directory with fsnotify, maps file names back
// to storage keys and coalesces bursts of events per key before calling
// handlers. Writes made through storage.File arrive as create events, since
// the adapter replaces files atomically.
package watcher

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/prefstore/internal/prefs/storage"
)

// ErrRunning is returned by Start when the watcher is already running.
var ErrRunning = errors.New("watcher already running")

// Event describes a change to one stored document.
type Event struct {
	// Key is the storage key of the document.
	Key string

	// Path is the file that changed.
	Path string

	// Op is the coalesced operation.
	Op Operation

	// Time is when the last underlying event arrived.
	Time time.Time
}

// Operation represents the type of file operation.
type Operation int

const (
	// OpWrite indicates the document was modified in place.
	OpWrite Operation = iota

	// OpCreate indicates the document was created or replaced.
	OpCreate

	// OpRemove indicates the document was deleted.
	OpRemove

	// OpRename indicates the document was moved away.
	OpRename
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Handler is called when a document changes.
type Handler func(event Event)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a key must be quiet before its event is
// delivered. Zero delivers every event immediately.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// Watcher monitors the directory of a storage.File adapter.
type Watcher struct {
	mu sync.RWMutex

	store    *storage.File
	handlers []Handler
	debounce time.Duration
	logger   *slog.Logger

	fsw     *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	running bool

	pendingMu sync.Mutex
	pending   map[string]*pendingEvent
}

type pendingEvent struct {
	event Event
	timer *time.Timer
}

// New creates a watcher for the directory of f.
func New(f *storage.File, opts ...Option) *Watcher {
	w := &Watcher{
		store:    f,
		debounce: 100 * time.Millisecond,
		pending:  make(map[string]*pendingEvent),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("component", "prefs.watcher", "dir", f.Dir())

	return w
}

// OnChange registers a handler for document change events.
func (w *Watcher) OnChange(handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Start begins watching the directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrRunning
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.store.Dir()); err != nil {
		_ = fsw.Close()
		return err
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	w.running = true

	w.wg.Add(1)
	go w.loop(fsw, w.done)

	w.logger.Debug("watching preferences directory")
	return nil
}

// Stop stops watching and drops events that have not been delivered.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.done)
	fsw := w.fsw
	w.mu.Unlock()

	w.wg.Wait()

	w.pendingMu.Lock()
	for key, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, key)
	}
	w.pendingMu.Unlock()

	return fsw.Close()
}

// IsRunning returns whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Flush delivers every pending event now.
func (w *Watcher) Flush() {
	w.pendingMu.Lock()
	keys := make([]string, 0, len(w.pending))
	for key, p := range w.pending {
		p.timer.Stop()
		keys = append(keys, key)
	}
	w.pendingMu.Unlock()

	sort.Strings(keys)
	for _, key := range keys {
		w.fire(key)
	}
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, done <-chan struct{}) {
	defer w.wg.Done()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// handle maps a raw event to its key and queues or emits it.
func (w *Watcher) handle(ev fsnotify.Event) {
	op, ok := convertOp(ev.Op)
	if !ok {
		return
	}
	key, ok := w.store.KeyFor(ev.Name)
	if !ok {
		return
	}

	event := Event{Key: key, Path: ev.Name, Op: op, Time: time.Now()}
	if w.debounce == 0 {
		w.emit(event)
		return
	}
	w.queue(event)
}

func convertOp(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Remove):
		return OpRemove, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpWrite, true
	default:
		return 0, false
	}
}

// queue coalesces events per key. The latest create, remove or rename
// wins; a write never downgrades a pending create.
func (w *Watcher) queue(event Event) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	p, exists := w.pending[event.Key]
	if !exists {
		key := event.Key
		w.pending[key] = &pendingEvent{
			event: event,
			timer: time.AfterFunc(w.debounce, func() { w.fire(key) }),
		}
		return
	}

	prev := p.event.Op
	p.event.Time = event.Time
	p.event.Path = event.Path
	switch event.Op {
	case OpRemove, OpRename, OpCreate:
		p.event.Op = event.Op
	case OpWrite:
		if prev != OpCreate {
			p.event.Op = OpWrite
		}
	}
	p.timer.Reset(w.debounce)
}

func (w *Watcher) fire(key string) {
	w.pendingMu.Lock()
	p, exists := w.pending[key]
	if !exists {
		w.pendingMu.Unlock()
		return
	}
	delete(w.pending, key)
	w.pendingMu.Unlock()

	w.emit(p.event)
}

func (w *Watcher) emit(event Event) {
	w.mu.RLock()
	handlers := make([]Handler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.RUnlock()

	for _, h := range handlers {
		w.call(h, event)
	}
}

// call runs a handler, keeping the watcher alive if it panics.
func (w *Watcher) call(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("watch handler panicked", "key", event.Key, "panic", r)
		}
	}()
	h(event)
}
