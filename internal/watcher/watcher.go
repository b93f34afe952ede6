// Package watcher feeds on-disk template changes into the extraction engine.
package watcher

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/bladelsp/internal/config"
	"github.com/standardbeagle/bladelsp/internal/debug"
	"github.com/standardbeagle/bladelsp/internal/filetype"
	"github.com/standardbeagle/bladelsp/internal/security"
	"github.com/standardbeagle/bladelsp/internal/types"
	"github.com/standardbeagle/bladelsp/pkg/pathutil"
)

// Sink receives file content and removals. *engine.Engine satisfies it.
type Sink interface {
	Update(ctx context.Context, file types.FileID, content []byte, version types.FileVersion) error
	CloseFile(file types.FileID)
}

// EventType is the kind of file system change recorded for a path
type EventType int

const (
	EventCreate EventType = iota
	EventWrite
	EventRemove
	EventRename
)

func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventWrite:
		return "write"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	}
	return "unknown"
}

// Watcher monitors a directory tree and pushes every changed Blade or PHP
// file into a Sink with a per-file incrementing version.
type Watcher struct {
	fsw        *fsnotify.Watcher
	cfg        config.Watch
	classifier *filetype.Classifier
	sink       Sink
	validator  *security.FileValidator
	debouncer  *eventDebouncer
	root       string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	versionsMu sync.Mutex
	versions   map[types.FileID]types.FileVersion

	statsMu         sync.RWMutex
	eventsProcessed int64
	errorCount      int64
	lastEventTime   time.Time

	onBatch func(count int, duration time.Duration)
}

// Option configures a Watcher
type Option func(*Watcher)

// WithBatchCallback is invoked after every debounced batch is pushed.
func WithBatchCallback(fn func(count int, duration time.Duration)) Option {
	return func(w *Watcher) { w.onBatch = fn }
}

// New creates a watcher. Nothing is watched until Start.
func New(cfg config.Watch, classifier *filetype.Classifier, sink Sink, opts ...Option) (*Watcher, error) {
	if sink == nil {
		return nil, fmt.Errorf("watcher: nil sink")
	}
	if classifier == nil {
		classifier = filetype.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	debounce := time.Duration(cfg.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		fsw:        fsw,
		cfg:        cfg,
		classifier: classifier,
		sink:       sink,
		validator:  security.NewFileValidator(512),
		debouncer:  newEventDebouncer(debounce),
		ctx:        ctx,
		cancel:     cancel,
		versions:   make(map[types.FileID]types.FileVersion),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start adds watches below root and queues every matching file already
// present so the first batch primes the engine.
func (w *Watcher) Start(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	w.root = abs

	debug.LogWatch("Starting watcher for %s\n", abs)

	if err := w.addWatches(abs); err != nil {
		return fmt.Errorf("failed to add watches starting from %s: %w", abs, err)
	}

	w.wg.Add(2)
	go w.processEvents()
	go w.debouncer.run(w.ctx, &w.wg, w.flush)

	return nil
}

// Stop cancels event processing and waits for it to finish. Events still
// pending in the debouncer are dropped.
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.fsw.Close()
	w.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close fsnotify watcher: %w", err)
	}
	debug.LogWatch("Watcher stopped for %s\n", w.root)
	return nil
}

// addWatches walks root, watching every directory that is not excluded
// and queueing every file the classifier recognises.
func (w *Watcher) addWatches(root string) error {
	visited := make(map[string]bool)

	var walk func(dir string) error
	walk = func(dir string) error {
		return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}

			if info.Mode()&os.ModeSymlink != 0 {
				if !w.cfg.FollowSymlinks {
					return nil
				}
				target, err := os.Stat(path)
				if err != nil {
					return nil
				}
				if target.IsDir() {
					if w.shouldIgnore(path, true) {
						return nil
					}
					return walk(path + string(filepath.Separator))
				}
				info = target
			}

			if !info.IsDir() {
				w.queueFile(path, EventCreate)
				return nil
			}

			realPath, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil
			}
			if visited[realPath] {
				return filepath.SkipDir
			}
			visited[realPath] = true

			if path != root && w.shouldIgnore(path, true) {
				return filepath.SkipDir
			}

			if err := w.fsw.Add(path); err != nil {
				log.Printf("Warning: failed to add watch for %s: %v", path, err)
			}
			return nil
		})
	}
	return walk(root)
}

// shouldIgnore reports whether path matches one of the exclude patterns.
// Patterns are matched against the slash-separated path relative to root.
func (w *Watcher) shouldIgnore(path string, isDir bool) bool {
	rel := pathutil.ToSlashRelative(path, w.root)
	for _, pattern := range w.cfg.Exclude {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
		if isDir {
			if matched, _ := doublestar.Match(pattern, rel+"/"); matched {
				return true
			}
		}
	}
	return false
}

func (w *Watcher) queueFile(path string, ev EventType) {
	if w.shouldIgnore(path, false) {
		return
	}
	if w.classifier.Classify(path) == filetype.Unknown {
		return
	}
	w.debouncer.add(path, ev)
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.incrementStats(0, 1)
			log.Printf("File watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	debug.LogWatch("event %v for %s\n", event.Op, path)

	info, err := os.Stat(path)
	if err != nil {
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			w.queueFile(path, EventRemove)
		}
		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !w.shouldIgnore(path, true) {
			// Files created together with the directory produce no events of
			// their own, so walking it also queues them.
			if err := w.addWatches(path); err != nil {
				log.Printf("Warning: failed to watch new directory %s: %v", path, err)
			}
		}
		return
	}

	var ev EventType
	switch {
	case event.Op&fsnotify.Create != 0:
		ev = EventCreate
	case event.Op&fsnotify.Write != 0:
		ev = EventWrite
	case event.Op&fsnotify.Remove != 0:
		ev = EventRemove
	case event.Op&fsnotify.Rename != 0:
		ev = EventRename
	default:
		return
	}
	w.queueFile(path, ev)
}

// flush pushes a debounced batch: removals first, then content.
func (w *Watcher) flush(events map[string]EventType) {
	start := time.Now()

	var removes, changes []string
	for path, ev := range events {
		if ev == EventRemove {
			removes = append(removes, path)
			continue
		}
		changes = append(changes, path)
	}

	for _, path := range removes {
		w.remove(path)
	}
	for _, path := range changes {
		if w.ctx.Err() != nil {
			return
		}
		w.push(path)
	}

	if w.onBatch != nil {
		w.onBatch(len(events), time.Since(start))
	}
}

func (w *Watcher) push(path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			w.remove(path)
			return
		}
		w.incrementStats(1, 1)
		log.Printf("Warning: failed to read %s: %v", path, err)
		return
	}

	if err := w.validator.Validate(path, content); err != nil {
		w.incrementStats(1, 1)
		log.Printf("Skipping %s: %v", pathutil.ToRelative(path, w.root), err)
		return
	}

	file := types.FileID(path)
	version := w.nextVersion(file)
	if err := w.sink.Update(w.ctx, file, content, version); err != nil {
		w.incrementStats(1, 1)
		debug.LogWatch("update %s@%d failed: %v\n", path, version, err)
		return
	}
	w.incrementStats(1, 0)
}

func (w *Watcher) remove(path string) {
	file := types.FileID(path)
	w.versionsMu.Lock()
	delete(w.versions, file)
	w.versionsMu.Unlock()

	w.sink.CloseFile(file)
	w.incrementStats(1, 0)
}

func (w *Watcher) nextVersion(file types.FileID) types.FileVersion {
	w.versionsMu.Lock()
	defer w.versionsMu.Unlock()
	w.versions[file]++
	return w.versions[file]
}

// Version returns the last version pushed for file, 0 if none.
func (w *Watcher) Version(file types.FileID) types.FileVersion {
	w.versionsMu.Lock()
	defer w.versionsMu.Unlock()
	return w.versions[file]
}

func (w *Watcher) incrementStats(events, errors int64) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.eventsProcessed += events
	w.errorCount += errors
	w.lastEventTime = time.Now()
}

// Stats contains counters about watch mode
type Stats struct {
	EventsProcessed int64
	ErrorCount      int64
	LastEventTime   time.Time
	IsActive        bool
}

// Stats returns current watch statistics
func (w *Watcher) Stats() Stats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return Stats{
		EventsProcessed: w.eventsProcessed,
		ErrorCount:      w.errorCount,
		LastEventTime:   w.lastEventTime,
		IsActive:        w.ctx.Err() == nil,
	}
}

// eventDebouncer coalesces events per path until no new event has arrived
// for the debounce window.
type eventDebouncer struct {
	mu       sync.Mutex
	events   map[string]EventType
	debounce time.Duration
	timer    *time.Timer
	fire     chan struct{}
}

func newEventDebouncer(debounce time.Duration) *eventDebouncer {
	return &eventDebouncer{
		events:   make(map[string]EventType),
		debounce: debounce,
		fire:     make(chan struct{}, 1),
	}
}

func (d *eventDebouncer) add(path string, ev EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A create followed by writes is still a create.
	if prev, ok := d.events[path]; !ok || prev != EventCreate || ev == EventRemove {
		d.events[path] = ev
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, func() {
		select {
		case d.fire <- struct{}{}:
		default:
		}
	})
}

func (d *eventDebouncer) take() map[string]EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	events := d.events
	d.events = make(map[string]EventType)
	return events
}

func (d *eventDebouncer) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

// run delivers batches to flush until ctx is done. Pending events are not
// flushed on shutdown since the sink may already be closing.
func (d *eventDebouncer) run(ctx context.Context, wg *sync.WaitGroup, flush func(map[string]EventType)) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			if d.timer != nil {
				d.timer.Stop()
			}
			d.mu.Unlock()
			return
		case <-d.fire:
			events := d.take()
			if len(events) == 0 {
				continue
			}
			debug.LogWatch("Processing %d debounced file events\n", len(events))
			flush(events)
		}
	}
}
