// Package engine is the incremental extraction and caching core of the
// language server. An Engine owns the pattern and hover caches, collapses
// duplicate work, bounds concurrent extraction and times every operation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/standardbeagle/bladelsp/internal/admission"
	"github.com/standardbeagle/bladelsp/internal/cache"
	"github.com/standardbeagle/bladelsp/internal/config"
	"github.com/standardbeagle/bladelsp/internal/debug"
	"github.com/standardbeagle/bladelsp/internal/dedup"
	blerrors "github.com/standardbeagle/bladelsp/internal/errors"
	"github.com/standardbeagle/bladelsp/internal/extract"
	"github.com/standardbeagle/bladelsp/internal/filetype"
	"github.com/standardbeagle/bladelsp/internal/hover"
	"github.com/standardbeagle/bladelsp/internal/metrics"
	"github.com/standardbeagle/bladelsp/internal/perf"
	"github.com/standardbeagle/bladelsp/internal/types"
)

// followerAttempts bounds how often a caller re-joins in-flight work that
// finished without producing the result it needs.
const followerAttempts = 3

var (
	ErrClosed      = errors.New("engine closed")
	ErrEmptyFileID = errors.New("empty file id")
	ErrUnknownFile = errors.New("no document for file")
)

// Engine is safe for concurrent use. Construct it with New.
type Engine struct {
	cfg        *config.Config
	classifier *filetype.Classifier
	pipeline   *extract.Pipeline
	correlator *cache.Correlator
	docs       *DocumentStore
	flights    *dedup.Registry
	admission  *admission.Controller
	stats      *metrics.Stats
	monitor    *perf.Monitor

	monitorOpts []perf.Option

	// mu orders entry of public operations against Close
	mu     sync.RWMutex
	closed bool
	ops    sync.WaitGroup
}

type Option func(*Engine)

// WithPipeline replaces the extraction pipeline built from configuration
func WithPipeline(p *extract.Pipeline) Option {
	return func(e *Engine) { e.pipeline = p }
}

func WithClassifier(c *filetype.Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithMonitorOptions passes options to the performance monitor
func WithMonitorOptions(opts ...perf.Option) Option {
	return func(e *Engine) { e.monitorOpts = append(e.monitorOpts, opts...) }
}

// New builds an engine. A nil cfg uses defaults. The configuration is
// validated and must not be modified afterwards.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		correlator: cache.NewCorrelator(cfg.Cache),
		docs:       NewDocumentStore(),
		flights:    dedup.NewRegistry(),
		admission:  admission.New(cfg.Admission),
		stats:      metrics.NewStats(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		e.classifier = filetype.NewClassifier(cfg.FileTypes)
	}
	if e.pipeline == nil {
		e.pipeline = extract.NewPipeline(cfg.Extraction)
	}

	monitorOpts := append([]perf.Option{
		perf.WithReportSource(func() string { return e.Stats().FormatAsText() }),
		perf.WithSlowHook(func(string, time.Duration) { e.stats.SlowOp() }),
	}, e.monitorOpts...)
	e.monitor = perf.New(cfg.Performance, monitorOpts...)

	debug.LogEngine("engine ready: patterns=%d hovers=%d extraction permits=%d policy=%s\n",
		cfg.Cache.PatternCapacity, cfg.Cache.HoverCapacity, cfg.Admission.ExtractionPermits, cfg.Cache.VersionPolicy)
	return e, nil
}

func (e *Engine) keepHighest() bool {
	return e.cfg.Cache.VersionPolicy != config.VersionPolicyLast
}

// enter admits one public operation on file. The returned func must be
// called when the operation returns.
func (e *Engine) enter(file types.FileID) (func(), error) {
	if file == "" {
		return nil, ErrEmptyFileID
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	e.ops.Add(1)
	return e.ops.Done, nil
}

// Update records content as version of file and extracts its patterns.
// Repeating an update with the same content and version does no work.
// Extraction problems never surface here; they are visible through
// Diagnostics and Stats. The only errors are ctx errors and invalid use.
func (e *Engine) Update(ctx context.Context, file types.FileID, content []byte, version types.FileVersion) error {
	done, err := e.enter(file)
	if err != nil {
		return err
	}
	defer done()
	return e.monitor.Time(ctx, config.OpUpdate, func(ctx context.Context) error {
		doc := newDocument(file, content, version, e.classifier.Classify(string(file)))
		if !e.docs.Put(doc, e.keepHighest()) {
			e.stats.StaleWrite()
			debug.LogEngine("ignored %s v%d: newer document stored\n", file, version)
			return nil
		}
		return e.update(ctx, doc, false)
	})
}

// Reextract re-runs extraction on the stored document even when its
// patterns are current.
func (e *Engine) Reextract(ctx context.Context, file types.FileID) error {
	done, err := e.enter(file)
	if err != nil {
		return err
	}
	defer done()
	doc, ok := e.docs.Get(file)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, file)
	}
	return e.update(ctx, doc, true)
}

func (e *Engine) update(ctx context.Context, doc *Document, force bool) error {
	if e.current(doc, force) {
		return nil
	}

	key := dedup.Key("extract", doc.File, doc.Version, strconv.FormatUint(doc.FastHash, 16))
	for attempt := 0; attempt < followerAttempts; attempt++ {
		role, err := e.flights.Do(ctx, key, func(ctx context.Context) error {
			return e.lead(ctx, doc, force)
		})
		if role == dedup.Leader || err != nil {
			return err
		}
		e.stats.DedupSave()
		if e.settled(doc) {
			return nil
		}
		debug.LogEngine("%s v%d: leader left no result, retrying\n", doc.File, doc.Version)
	}
	return nil
}

// current reports whether the cache already holds doc's patterns, or a
// newer version that doc must not replace.
func (e *Engine) current(doc *Document, force bool) bool {
	cur, ok := e.correlator.Latest(doc.File)
	if !ok {
		return false
	}
	if !force && cur.Version == doc.Version && cur.ContentHash == doc.FastHash {
		e.stats.Unchanged()
		return true
	}
	if e.keepHighest() && cur.Version > doc.Version {
		e.stats.StaleWrite()
		return true
	}
	return false
}

// lead runs as the single extraction for doc's key. It checks the cache
// again because a previous leader for the same key may have published
// after this caller's first check.
func (e *Engine) lead(ctx context.Context, doc *Document, force bool) error {
	if e.current(doc, force) {
		return nil
	}
	return e.extract(ctx, doc)
}

// settled reports whether the cache holds doc's patterns or a newer version
func (e *Engine) settled(doc *Document) bool {
	cur, ok := e.correlator.Latest(doc.File)
	if !ok {
		return false
	}
	if cur.Version == doc.Version && cur.ContentHash == doc.FastHash {
		return true
	}
	return e.keepHighest() && cur.Version > doc.Version
}

func (e *Engine) extract(ctx context.Context, doc *Document) error {
	release, err := e.admission.Acquire(ctx, admission.Extraction)
	if err != nil {
		return err
	}
	defer release()
	if err := ctx.Err(); err != nil {
		return err
	}

	outcome := e.pipeline.Run(doc.Content, doc.Kind)
	status := outcome.Status()
	e.stats.Extraction(status)

	entry := cache.PatternEntry{
		Version:     doc.Version,
		ContentHash: doc.FastHash,
		Set:         outcome.Patterns(),
		Errors:      outcome.Errors(),
		Status:      status.String(),
		Degraded:    status == extract.StatusFallback || status == extract.StatusFailed,
	}
	stored, purged, ok := e.correlator.Publish(doc.File, entry)
	if !ok {
		e.stats.StaleWrite()
		return nil
	}
	e.stats.HoverPurged(purged)
	debug.LogEngine("%s v%d: %s, %d facts, %d errors, gen %d\n",
		doc.File, doc.Version, status, stored.Set.Len(), len(stored.Errors), stored.Gen)
	return nil
}

// GetPatterns returns a copy of the patterns extracted from exactly
// version of file.
func (e *Engine) GetPatterns(file types.FileID, version types.FileVersion) (types.PatternSet, bool) {
	entry, ok := e.correlator.Patterns(file, version)
	if !ok {
		e.stats.PatternMiss()
		return nil, false
	}
	e.stats.PatternHit()
	return entry.Set, true
}

// GetHover answers a hover query against version of file. It extracts
// first when the stored document matches version but its patterns are not
// cached. A nil answer means nothing to show.
func (e *Engine) GetHover(ctx context.Context, file types.FileID, pos types.Position, version types.FileVersion) (*types.HoverAnswer, error) {
	done, err := e.enter(file)
	if err != nil {
		return nil, err
	}
	defer done()
	return perf.Track(ctx, e.monitor, config.OpHover, func(ctx context.Context) (*types.HoverAnswer, error) {
		return e.hover(ctx, cache.NewHoverKey(file, pos, version))
	})
}

func (e *Engine) hover(ctx context.Context, key cache.HoverKey) (*types.HoverAnswer, error) {
	if answer, ok := e.correlator.Hover(key); ok {
		e.stats.HoverHit()
		return answer, nil
	}
	e.stats.HoverMiss()

	dkey := dedup.Key("hover", key.File, key.Version, key.Line, key.Column)
	for attempt := 0; attempt < followerAttempts; attempt++ {
		var answer *types.HoverAnswer
		role, err := e.flights.Do(ctx, dkey, func(ctx context.Context) error {
			var err error
			answer, err = e.computeHover(ctx, key)
			return err
		})
		if err != nil {
			return nil, err
		}
		if role == dedup.Leader {
			return answer, nil
		}
		e.stats.DedupSave()
		if answer, ok := e.correlator.Hover(key); ok {
			return answer, nil
		}
	}
	return nil, nil
}

func (e *Engine) computeHover(ctx context.Context, key cache.HoverKey) (*types.HoverAnswer, error) {
	entry, ok := e.correlator.Current(key.File)
	if !ok || entry.Version != key.Version {
		e.stats.PatternMiss()
		doc, ok := e.docs.Get(key.File)
		if !ok || doc.Version != key.Version {
			return nil, nil
		}
		if err := e.update(ctx, doc, false); err != nil {
			return nil, err
		}
		entry, ok = e.correlator.Current(key.File)
		if !ok || entry.Version != key.Version {
			return nil, nil
		}
	} else {
		e.stats.PatternHit()
	}

	release, err := e.admission.Acquire(ctx, admission.Hover)
	if err != nil {
		return nil, err
	}
	defer release()

	answer := hover.Resolve(entry.Set, types.Position{Line: key.Line, Column: key.Column})
	if !e.correlator.StoreHover(key, answer, entry.Gen) {
		debug.LogCache("hover for %s v%d computed against superseded patterns\n", key.File, key.Version)
	}
	return answer, nil
}

// Diagnostics converts the parse errors recorded for version of file
func (e *Engine) Diagnostics(file types.FileID, version types.FileVersion) ([]protocol.Diagnostic, bool) {
	entry, ok := e.correlator.Current(file)
	if !ok || entry.Version != version {
		return nil, false
	}
	return blerrors.Diagnostics(entry.Errors), true
}

// Outcome returns the status name and parse errors of the cached
// extraction for version of file.
func (e *Engine) Outcome(file types.FileID, version types.FileVersion) (string, []*blerrors.ParseError, bool) {
	entry, ok := e.correlator.Current(file)
	if !ok || entry.Version != version {
		return "", nil, false
	}
	return entry.Status, entry.Errors, true
}

// Invalidate drops cached patterns and hover answers for file. The stored
// document is kept so the next query can extract again.
func (e *Engine) Invalidate(file types.FileID) {
	e.correlator.Invalidate(file)
	debug.LogEngine("invalidated %s\n", file)
}

// InvalidateAll drops every cached pattern and hover answer
func (e *Engine) InvalidateAll() {
	e.correlator.InvalidateAll()
	debug.LogEngine("invalidated all files\n")
}

// CloseFile forgets file entirely
func (e *Engine) CloseFile(file types.FileID) {
	e.docs.Delete(file)
	e.correlator.Invalidate(file)
}

// Document returns the latest content stored for file
func (e *Engine) Document(file types.FileID) (*Document, bool) {
	return e.docs.Get(file)
}

// IsUnderLoad reports whether either permit pool is below its low-water mark
func (e *Engine) IsUnderLoad() bool {
	under := e.admission.UnderLoad()
	if under {
		e.stats.UnderLoadHit()
	}
	return under
}

// PerformanceReport renders latencies, budgets and counters
func (e *Engine) PerformanceReport() string {
	return e.monitor.Report()
}

// Stats returns counters merged with current cache and permit gauges
func (e *Engine) Stats() metrics.Snapshot {
	snap := e.stats.Snapshot()
	caches := e.correlator.Snapshot()
	load := e.admission.Snapshot()

	snap.PatternEntries = caches.PatternEntries
	snap.PatternEvictions = caches.PatternEvictions
	snap.HoverEntries = caches.HoverEntries
	snap.HoverEvictions = caches.HoverEvictions
	snap.ExtractionInUse = load.Extraction.InUse
	snap.HoverInUse = load.Hover.InUse
	snap.InFlight = e.flights.InFlight()
	snap.LoadNow = load.UnderLoad
	return snap
}

// Monitor exposes the performance monitor for operations timed outside
// the engine, such as definition and completion requests.
func (e *Engine) Monitor() *perf.Monitor { return e.monitor }

// Collectors returns the Prometheus collectors for this engine
func (e *Engine) Collectors() []prometheus.Collector {
	return []prometheus.Collector{metrics.NewCollector(e.Stats), e.monitor.Collector()}
}

// Close rejects new operations and waits for running work to finish
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.ops.Wait()
	e.flights.Wait()
	debug.LogEngine("engine closed, %d documents\n", e.docs.Len())
	return nil
}
